package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tomaasz/update-ultra/pkg/adapters/runner/command"
	"github.com/tomaasz/update-ultra/pkg/domain"
)

// StepRequest describes one update step in a run submission.
type StepRequest struct {
	ID              string   `json:"id" binding:"required"`
	Command         []string `json:"command" binding:"required,min=1"`
	DependsOn       []string `json:"dependsOn"`
	TimeoutSeconds  int      `json:"timeoutSeconds"`
	Retries         int      `json:"retries"`
	RetryOnTimeout  bool     `json:"retryOnTimeout"`
	CacheKey        string   `json:"cacheKey"`
	CacheTTLSeconds int      `json:"cacheTtlSeconds"`
	Dir             string   `json:"dir"`
	Env             []string `json:"env"`
}

// RunOptionsRequest describes run-level options.
type RunOptionsRequest struct {
	Parallel      *bool    `json:"parallel"`
	StopOnFailure bool     `json:"stopOnFailure"`
	NoCache       bool     `json:"noCache"`
	DryRun        bool     `json:"dryRun"`
	SkipSteps     []string `json:"skipSteps"`
}

// RunSubmitRequest represents a run submission request.
type RunSubmitRequest struct {
	Steps   []StepRequest     `json:"steps" binding:"required,min=1"`
	Options RunOptionsRequest `json:"options"`
}

// RunSubmitResponse represents a run submission response.
type RunSubmitResponse struct {
	RunID       string `json:"run_id"`
	Status      string `json:"status"`
	SubmittedAt string `json:"submitted_at"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail represents error details.
type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// toPlan converts the request into a domain plan with command work units.
func (r *RunSubmitRequest) toPlan() *domain.Plan {
	steps := make([]domain.Step, 0, len(r.Steps))
	for _, sr := range r.Steps {
		work := &command.WorkUnit{
			Name: sr.Command[0],
			Args: sr.Command[1:],
			Dir:  sr.Dir,
			Env:  sr.Env,
		}
		steps = append(steps, domain.Step{
			ID:             sr.ID,
			DependsOn:      sr.DependsOn,
			Work:           work,
			Timeout:        time.Duration(sr.TimeoutSeconds) * time.Second,
			Retries:        sr.Retries,
			RetryOnTimeout: sr.RetryOnTimeout,
			CacheKey:       sr.CacheKey,
			CacheTTL:       time.Duration(sr.CacheTTLSeconds) * time.Second,
		})
	}

	parallel := true
	if r.Options.Parallel != nil {
		parallel = *r.Options.Parallel
	}

	return &domain.Plan{
		Steps: steps,
		Options: domain.RunOptions{
			Parallel:      parallel,
			StopOnFailure: r.Options.StopOnFailure,
			NoCache:       r.Options.NoCache,
			DryRun:        r.Options.DryRun,
			SkipSteps:     r.Options.SkipSteps,
		},
	}
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleSubmitRun handles run submission.
func (s *Server) handleSubmitRun(c *gin.Context) {
	var req RunSubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.Error("invalid request", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: ErrorDetail{
				Code:    "INVALID_REQUEST",
				Message: err.Error(),
			},
		})
		return
	}

	runID, err := s.manager.SubmitPlan(c.Request.Context(), req.toPlan())
	if err != nil {
		s.logger.Error("failed to submit run", zap.Error(err))
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error: ErrorDetail{
				Code:    "SUBMISSION_FAILED",
				Message: err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusCreated, RunSubmitResponse{
		RunID:       runID,
		Status:      "submitted",
		SubmittedAt: time.Now().UTC().Format(time.RFC3339),
	})
}

// handleListRuns handles listing stored runs.
func (s *Server) handleListRuns(c *gin.Context) {
	runIDs, err := s.manager.ListRuns(c.Request.Context())
	if err != nil {
		s.logger.Error("failed to list runs", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: ErrorDetail{
				Code:    "STORAGE_ERROR",
				Message: "Failed to list runs",
				Details: err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"runs":  runIDs,
		"total": len(runIDs),
	})
}

// handleGetRun handles getting the finalized run summary.
func (s *Server) handleGetRun(c *gin.Context) {
	runID := c.Param("id")

	summary, err := s.manager.GetSummary(c.Request.Context(), runID)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error: ErrorDetail{
					Code:    "NOT_FOUND",
					Message: "Run not found",
				},
			})
			return
		}
		s.logger.Error("failed to get run summary",
			zap.String("run_id", runID),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: ErrorDetail{
				Code:    "STORAGE_ERROR",
				Message: "Failed to retrieve run",
				Details: err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, summary)
}

// handleGetStatus handles getting run status.
func (s *Server) handleGetStatus(c *gin.Context) {
	runID := c.Param("id")

	status, err := s.manager.GetStatus(c.Request.Context(), runID)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: ErrorDetail{
				Code:    "NOT_FOUND",
				Message: "Run not found",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"run_id": runID,
		"status": status,
	})
}

// handleCancelRun handles run cancellation.
func (s *Server) handleCancelRun(c *gin.Context) {
	runID := c.Param("id")

	if err := s.manager.CancelRun(c.Request.Context(), runID); err != nil {
		status := http.StatusConflict
		if strings.Contains(err.Error(), "not found") {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{
			Error: ErrorDetail{
				Code:    "CANCELLATION_FAILED",
				Message: err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"run_id":       runID,
		"status":       "cancelled",
		"cancelled_at": time.Now().UTC().Format(time.RFC3339),
	})
}
