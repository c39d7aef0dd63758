// Package http implements the HTTP handlers of the license gate.
//
// Handlers stay thin: they decode the body, build the caller context from
// the request and hand off to the services layer. Verdicts are written as
// the JSON envelope with the status mapped from the verdict code. A valid
// download streams AEAD frames with the release metadata in headers.
//
// Routes:
//
//	POST /v1/teams/{teamId}/verification
//	POST /v1/teams/{teamId}/downloads
//	GET  /healthz/live
//	GET  /healthz/ready
//	GET  /version
//	GET  /metrics
package http
