package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/upswatch/internal/auth"
)

type setVariableRequest struct {
	Value *string `json:"value"`
}

type instCmdRequest struct {
	Extra string `json:"extra,omitempty"`
}

// handleSetVariable forwards SET to the driver. The driver applies it
// asynchronously, so success is 202 and the new value arrives as an event.
func (s *Server) handleSetVariable(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	if !user.Can(auth.ActionSet) {
		writeForbidden(w, "user may not set variables")
		return
	}

	var req setVariableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Value == nil {
		writeBadRequest(w, `body must be {"value": "..."}`)
		return
	}

	device, name := chi.URLParam(r, "name"), chi.URLParam(r, "var")
	if err := s.ups.SetVar(r.Context(), device, name, *req.Value); err != nil {
		s.writeUPSError(w, r, err)
		return
	}

	s.logger.Info("variable set requested", "user", user.Name, "device", device, "variable", name, "value", *req.Value)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

// handleInstCmd forwards an instant command. The body is optional.
func (s *Server) handleInstCmd(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	device, cmd := chi.URLParam(r, "name"), chi.URLParam(r, "cmd")
	if !user.CanInstCmd(cmd) {
		writeForbidden(w, "user may not run "+cmd)
		return
	}

	var req instCmdRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.ups.InstCmd(r.Context(), device, cmd, req.Extra); err != nil {
		s.writeUPSError(w, r, err)
		return
	}

	s.logger.Info("instant command requested", "user", user.Name, "device", device, "command", cmd)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

// handleFSD raises the forced-shutdown flag. It returns the device so the
// caller sees the FSD status immediately.
func (s *Server) handleFSD(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	if !user.Can(auth.ActionFSD) {
		writeForbidden(w, "user may not force shutdown")
		return
	}

	device := chi.URLParam(r, "name")
	if err := s.ups.SetFSD(r.Context(), device, user.Name); err != nil {
		s.writeUPSError(w, r, err)
		return
	}
	s.logger.Warn("forced shutdown set", "user", user.Name, "device", device)

	dev, err := s.ups.Device(r.Context(), device)
	if err != nil {
		s.writeUPSError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dev)
}
