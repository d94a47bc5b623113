// Package api is the companion HTTP API over one account's codes and confirmations.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/harrylevesque/steamguard/internal/app"
	"github.com/harrylevesque/steamguard/internal/crypto"
	"github.com/harrylevesque/steamguard/internal/mobileconf"
	"github.com/harrylevesque/steamguard/internal/utils"
)

// Server holds the handler dependencies.
type Server struct {
	app    *app.App
	logger logrus.FieldLogger
	now    func() time.Time
}

type codeResponse struct {
	Code string `json:"code"`
	// ValidFor is the number of seconds left in the current 30s window.
	ValidFor int `json:"valid_for"`
}

type confirmationsResponse struct {
	Confirmations []mobileconf.Confirmation `json:"confirmations"`
}

// ActRequest selects pending confirmations by id.
type ActRequest struct {
	IDs    []string `json:"ids"`
	Accept bool     `json:"accept"`
}

type actResponse struct {
	Success bool                      `json:"success"`
	Acted   []mobileconf.Confirmation `json:"acted"`
	Missing []string                  `json:"missing,omitempty"`
}

// GetTimeHandler returns the server time and the remaining seconds of the code window.
func (s *Server) GetTimeHandler(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	writeJSON(w, http.StatusOK, map[string]any{
		"time":      now.UTC().Format(time.RFC3339),
		"unix":      now.Unix(),
		"valid_for": validFor(now),
	})
}

// GetCodeHandler returns the current auth code.
func (s *Server) GetCodeHandler(w http.ResponseWriter, r *http.Request) {
	g, err := s.app.Guard()
	if err != nil {
		s.writeError(w, err)
		return
	}
	code, err := g.Code()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, codeResponse{Code: code, ValidFor: validFor(s.now())})
}

// GetUniqueCodeHandler blocks until a code different from the last one issued is available.
func (s *Server) GetUniqueCodeHandler(w http.ResponseWriter, r *http.Request) {
	g, err := s.app.Guard()
	if err != nil {
		s.writeError(w, err)
		return
	}
	code, err := g.Next(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, codeResponse{Code: code, ValidFor: validFor(s.now())})
}

// GetDeviceIDHandler returns the confirmation device id and the host fingerprints.
func (s *Server) GetDeviceIDHandler(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"device_fingerprints": []string{}}
	if c, err := s.app.Confirmations(); err == nil {
		resp["device_id"] = c.DeviceID()
	}
	ids, err := utils.GetDeviceFingerprints()
	if err != nil {
		resp["error"] = err.Error()
	} else if len(ids) > 0 {
		resp["device_fingerprints"] = ids
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListConfirmationsHandler returns the pending confirmations.
func (s *Server) ListConfirmationsHandler(w http.ResponseWriter, r *http.Request) {
	c, err := s.app.Confirmations()
	if err != nil {
		s.writeError(w, err)
		return
	}
	confs, err := c.ListPending(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, confirmationsResponse{Confirmations: confs})
}

// AcceptAllHandler accepts every confirmation pending at the time of the call.
func (s *Server) AcceptAllHandler(w http.ResponseWriter, r *http.Request) {
	c, err := s.app.Confirmations()
	if err != nil {
		s.writeError(w, err)
		return
	}
	res, err := c.AcceptAll(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, statusFor(res.Success), res)
}

// ActHandler accepts or denies the pending confirmations named in the body.
func (s *Server) ActHandler(w http.ResponseWriter, r *http.Request) {
	c, err := s.app.Confirmations()
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req ActRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		s.writeError(w, utils.Wrap(utils.CodeInvalidInput, utils.ErrInvalidInput, "decode body: %v", err))
		return
	}
	acted, missing, ok, err := c.ActOnIDs(r.Context(), req.IDs, req.Accept)
	if err != nil {
		s.writeError(w, err)
		return
	}
	status := statusFor(ok)
	if len(acted) == 0 {
		status = http.StatusNotFound
	}
	writeJSON(w, status, actResponse{Success: ok, Acted: acted, Missing: missing})
}

func statusFor(ok bool) int {
	if ok {
		return http.StatusOK
	}
	return http.StatusBadGateway
}

func validFor(now time.Time) int {
	step := int64(crypto.TimeStep / time.Second)
	return int(step - now.Unix()%step)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, app.ErrCodesDisabled), errors.Is(err, app.ErrConfirmationsDisabled):
		status = http.StatusServiceUnavailable
	case errors.Is(err, utils.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, utils.ErrUnsuccessfulResponse), errors.Is(err, utils.ErrMalformedResponse):
		status = http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	if status >= http.StatusInternalServerError {
		s.logger.WithError(err).Warn("request failed")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
