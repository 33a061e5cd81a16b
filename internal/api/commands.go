package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/fritz-presence/internal/bridge"
	"github.com/nerrad567/fritz-presence/internal/device"
	"github.com/nerrad567/fritz-presence/internal/presence"
)

// adminActions maps /admin/{action} onto admin selector levels.
var adminActions = map[string]int{
	"wifi":     bridge.LevelWiFi,
	"ethernet": bridge.LevelEthernet,
	"active":   bridge.LevelActive,
	"all":      bridge.LevelAll,
	"remove":   bridge.LevelRemove,
}

// handleAdmin runs an admin selector action as if the level had been
// chosen in Domoticz.
func (s *Server) handleAdmin(w http.ResponseWriter, r *http.Request) {
	action := chi.URLParam(r, "action")
	level, ok := adminActions[action]
	if !ok {
		writeNotFound(w, "unknown admin action: "+action)
		return
	}

	result, err := s.bridge.RunAdmin(r.Context(), level)
	if err != nil {
		s.writeBridgeError(w, "admin action", err)
		return
	}
	s.logger.Info("admin action via API", "action", action, "created", result.Created, "removed", result.Removed)
	writeJSON(w, http.StatusOK, result)
}

// handlePoll reads the router now instead of waiting for the next poll.
func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	result, err := s.bridge.PollNow(r.Context())
	if err != nil {
		s.writeBridgeError(w, "poll", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleWakeDevice sends wake-on-LAN to a mirrored device.
func (s *Server) handleWakeDevice(w http.ResponseWriter, r *http.Request) {
	mac, ok := macParam(w, r)
	if !ok {
		return
	}
	if err := s.bridge.WakeDevice(r.Context(), mac); err != nil {
		s.writeBridgeError(w, "wake", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "sent", "mac": mac})
}

// handleListHosts returns the router's host table through a filter.
//
// Query parameters:
//   - filter: filter name (default "all")
func (s *Server) handleListHosts(w http.ResponseWriter, r *http.Request) {
	filter := r.URL.Query().Get("filter")
	if filter == "" {
		filter = presence.FilterAll
	}

	hosts, err := s.hosts.Hosts(r.Context(), filter)
	if err != nil {
		s.writeBridgeError(w, "listing hosts", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"filter":  filter,
		"filters": s.hosts.FilterNames(),
		"hosts":   hosts,
		"count":   len(hosts),
	})
}

// writeBridgeError maps bridge, registry and router errors to responses.
func (s *Server) writeBridgeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, device.ErrDeviceNotFound), errors.Is(err, bridge.ErrUnknownUnit):
		writeNotFound(w, "device not found")
	case errors.Is(err, presence.ErrUnknownFilter), errors.Is(err, bridge.ErrUnknownLevel):
		writeBadRequest(w, err.Error())
	case errors.Is(err, bridge.ErrNotStarted), errors.Is(err, presence.ErrStopped):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "service is not running")
	default:
		s.logger.Warn(op+" failed", "error", err)
		writeError(w, http.StatusBadGateway, ErrCodeUpstream, op+" failed: "+err.Error())
	}
}
