package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/upswatch/internal/history"
	"github.com/nerrad567/upswatch/internal/upsd"
)

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.ups.Devices(r.Context())
	if err != nil {
		s.writeUPSError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	dev, err := s.ups.Device(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		s.writeUPSError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

// handleGetVariable serves a single variable. Like GET VAR on the network
// protocol, it fails while the driver is disconnected or stale.
func (s *Server) handleGetVariable(w http.ResponseWriter, r *http.Request) {
	v, err := s.ups.Variable(r.Context(), chi.URLParam(r, "name"), chi.URLParam(r, "var"))
	if err != nil {
		s.writeUPSError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// handleListEvents returns recorded events for a device, newest first.
//
// Query parameters:
//   - kind: one event kind, e.g. device_stale
//   - since: RFC 3339 timestamp
//   - limit: 1..500, default 50
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeHistoryAbsent, "event history is disabled")
		return
	}

	name := chi.URLParam(r, "name")
	if _, err := s.ups.Device(r.Context(), name); err != nil {
		s.writeUPSError(w, r, err)
		return
	}

	f := history.Filter{Device: name, Kind: upsd.EventKind(r.URL.Query().Get("kind"))}
	if v := r.URL.Query().Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeBadRequest(w, "since must be an RFC 3339 timestamp")
			return
		}
		f.Since = since
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		f.Limit = limit
	}

	entries, err := s.history.List(r.Context(), f)
	if err != nil {
		s.logger.Error("listing events", "device", name, "error", err)
		writeInternalError(w, "failed to list events")
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events": entries,
		"count":  len(entries),
	})
}
