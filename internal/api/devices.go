package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/fritz-presence/internal/device"
	"github.com/nerrad567/fritz-presence/internal/fritzbox"
)

// handleListDevices returns the mirrored switches.
//
// Query parameters:
//   - kind: "presence" or "admin" to restrict the list
//   - present: "true" or "false" to filter presence switches by state
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	devices := s.registry.List()
	if kind := q.Get("kind"); kind != "" {
		if kind != string(device.KindPresence) && kind != string(device.KindAdmin) {
			writeBadRequest(w, "kind must be presence or admin")
			return
		}
		devices = filterDevices(devices, func(d device.Device) bool { return string(d.Kind) == kind })
	}
	if presentStr := q.Get("present"); presentStr != "" {
		present, err := strconv.ParseBool(presentStr)
		if err != nil {
			writeBadRequest(w, "present must be true or false")
			return
		}
		devices = filterDevices(devices, func(d device.Device) bool {
			return d.Kind == device.KindPresence && d.IsPresent() == present
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"devices":   devices,
		"count":     len(devices),
		"next_poll": s.bridge.NextPoll().UTC().Format(time.RFC3339),
	})
}

func filterDevices(devices []device.Device, keep func(device.Device) bool) []device.Device {
	out := devices[:0:0]
	for _, d := range devices {
		if keep(d) {
			out = append(out, d)
		}
	}
	return out
}

// handleGetDevice returns one switch by MAC address.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	mac, ok := macParam(w, r)
	if !ok {
		return
	}

	dev, err := s.registry.GetByMAC(mac)
	if errors.Is(err, device.ErrDeviceNotFound) {
		writeNotFound(w, "device not found")
		return
	}
	if err != nil {
		writeInternalError(w, "failed to get device")
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

// handleDeviceHistory returns a device's presence transitions, newest first.
//
// Query parameters:
//   - limit: maximum number of events (default 50, max 500)
func (s *Server) handleDeviceHistory(w http.ResponseWriter, r *http.Request) {
	mac, ok := macParam(w, r)
	if !ok {
		return
	}

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	if !s.registry.HasMAC(mac) {
		writeNotFound(w, "device not found")
		return
	}

	events, err := s.registry.History(r.Context(), mac, limit)
	if err != nil {
		s.logger.Error("reading presence history failed", "mac", mac, "error", err)
		writeInternalError(w, "failed to read history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"mac":    mac,
		"events": events,
		"count":  len(events),
	})
}

// macParam normalises the {mac} URL parameter, writing 400 when invalid.
func macParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	mac, err := fritzbox.NormalizeMAC(chi.URLParam(r, "mac"))
	if err != nil {
		writeBadRequest(w, "invalid MAC address")
		return "", false
	}
	return mac, true
}
