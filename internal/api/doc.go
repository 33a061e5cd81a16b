// Package api serves the Fritz!Presence HTTP API and WebSocket feed.
//
// Routes live under /api/v1. Everything except /health, /auth/login and
// the WebSocket upgrade requires a bearer token from /auth/login. The
// WebSocket endpoint is authenticated with a single-use ticket from
// /auth/ws-ticket so the token never appears in a URL.
//
// Clients subscribe to event channels (presence_changed, device_created,
// device_removed) and receive the bridge's events as they happen.
package api
