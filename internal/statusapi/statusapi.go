// Package statusapi exposes a read-only JSON status surface over the
// mainloop's current state: build status, the latest execution plan, the
// live configuration tree, and an XML export endpoint. Mux-routed with
// JSON responses, trimmed to the endpoints that have a referent here (no log ingest,
// dead-letter queue, or security audit surface: there is no event stream
// flowing through this process).
package statusapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/inivation/caer-mainloop/internal/configtree"
	"github.com/inivation/caer-mainloop/pkg/types"
)

// PlanSource is the subset of *mainloop.Mainloop the status API depends on,
// kept narrow so the API package never imports internal/mainloop directly
// and tests can satisfy it with a stub.
type PlanSource interface {
	LatestPlan() (plan *types.ExecutionPlan, err error, at time.Time)
	Tree() *configtree.Tree
}

// Server serves the status/plan/config HTTP surface.
type Server struct {
	server *http.Server
	logger *logrus.Logger
	source PlanSource
	start  time.Time
}

// NewServer builds a status API server bound to addr.
func NewServer(addr string, source PlanSource, logger *logrus.Logger) *Server {
	router := mux.NewRouter()
	s := &Server{
		server: &http.Server{Addr: addr, Handler: router},
		logger: logger,
		source: source,
		start:  time.Now(),
	}

	router.HandleFunc("/status", s.statusHandler).Methods(http.MethodGet)
	router.HandleFunc("/plan", s.planHandler).Methods(http.MethodGet)
	router.HandleFunc("/config/tree", s.configTreeHandler).Methods(http.MethodGet)
	router.HandleFunc("/config/export", s.configExportHandler).Methods(http.MethodPost)

	return s
}

// Start begins serving in the background.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.server.Addr).Info("starting status server")
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("status server error")
		}
	}()
	return nil
}

// Stop closes the server immediately, without waiting for in-flight
// requests to finish.
func (s *Server) Stop() error {
	s.logger.Info("stopping status server")
	return s.server.Close()
}

// statusHandler reports whether the last build attempt succeeded and when.
func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	_, err, at := s.source.LatestPlan()

	status := "healthy"
	var lastError string
	if err != nil {
		status = "build_failed"
		lastError = err.Error()
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      status,
		"last_build":  at,
		"last_error":  lastError,
		"uptime":      time.Since(s.start).String(),
	})
}

// planHandler serializes the latest built plan, or 503 when no build has
// succeeded yet.
func (s *Server) planHandler(w http.ResponseWriter, r *http.Request) {
	plan, err, at := s.source.LatestPlan()
	if plan == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"error":      "no successful build yet",
			"last_error": errString(err),
			"last_build": at,
		})
		return
	}
	writeJSON(w, http.StatusOK, plan.Snapshot())
}

// configTreeHandler exports the live configuration tree as XML.
func (s *Server) configTreeHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/xml")
	if err := configtree.Export(s.source.Tree().Root(), w); err != nil {
		s.logger.WithError(err).Error("config tree export failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// configExportHandler is the same export, requested as a POST action,
// even though this particular action has no side effect beyond reading the
// tree).
func (s *Server) configExportHandler(w http.ResponseWriter, r *http.Request) {
	s.configTreeHandler(w, r)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logrus.WithError(err).Error("failed to encode JSON response")
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
