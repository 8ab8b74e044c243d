// Package api implements the HTTP handlers for the vidmill JSON API:
// registration and login, session-backed profile access, author channel
// creation, the dashboard statistics endpoint, video metadata uploads, and
// the thumbnail-generation proxy.
package api
