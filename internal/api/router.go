package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/harrylevesque/steamguard/internal/app"
	"github.com/harrylevesque/steamguard/internal/utils"
)

// NewRouter exposes codes and confirmations for a over HTTP.
func NewRouter(a *app.App, logger logrus.FieldLogger) *mux.Router {
	if logger == nil {
		logger = utils.DiscardLogger()
	}
	s := &Server{app: a, logger: logger, now: time.Now}

	r := mux.NewRouter()
	r.Use(s.logRequests)
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if _, err := fmt.Fprintln(w, "OK"); err != nil {
			logger.WithError(err).Debug("write health response")
		}
	}).Methods(http.MethodGet)
	r.HandleFunc("/time", s.GetTimeHandler).Methods(http.MethodGet)
	r.HandleFunc("/code", s.GetCodeHandler).Methods(http.MethodGet)
	r.HandleFunc("/code/unique", s.GetUniqueCodeHandler).Methods(http.MethodGet)
	r.HandleFunc("/deviceid", s.GetDeviceIDHandler).Methods(http.MethodGet)
	r.HandleFunc("/confirmations", s.ListConfirmationsHandler).Methods(http.MethodGet)
	r.HandleFunc("/confirmations/accept-all", s.AcceptAllHandler).Methods(http.MethodPost)
	r.HandleFunc("/confirmations/act", s.ActHandler).Methods(http.MethodPost)
	return r
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rec.status,
			"duration_ms": time.Since(start).Milliseconds(),
		}).Info("request")
	})
}
