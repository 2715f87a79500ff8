// Package websocket provides real-time event streaming via WebSocket.
//
// Clients can connect to /api/v1/runs/:id/ws to receive real-time
// updates about run and step execution.
package websocket
