// Package server wires the vidmill API handlers into a single HTTP server.
//
// The server builds a consistent middleware chain of logging, request IDs,
// metrics, security headers, CORS, and rate limiting so handlers all share
// common protections and instrumentation. Session enforcement happens per
// route via api.Handler.RequireUser so every protected endpoint runs the
// exact same check.
package server
