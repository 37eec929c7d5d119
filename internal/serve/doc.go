// Package serve implements the local import service behind "partkit serve".
//
// The service is a thin HTTP front over partkit.Importer:
//
//   - POST /api/imports runs one import synchronously and returns the
//     summary (imports serialize on the project's table store)
//   - GET /api/imports/events upgrades to a WebSocket that streams
//     progress events for every import the service runs
//   - GET /api/tables returns the decoded library table entries
//   - GET /healthz and GET /metrics for liveness and Prometheus
//
// # Event Protocol
//
// Subscribers receive JSON-encoded events:
//
//	{"job": "...", "part": "C2040", "type": "started"}
//	{"job": "...", "part": "C2040", "type": "log", "message": "..."}
//	{"job": "...", "part": "C2040", "type": "done", "message": "LCSC_C2040"}
//	{"job": "...", "part": "C2040", "type": "error", "message": "..."}
//
// The job field correlates events with the POST response, since several
// imports may run while a subscriber is connected.
package serve
