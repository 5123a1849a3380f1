// Package web exposes evaluation as a small HTTP trigger service: a call
// names a map file, the configured passes run synchronously, and one summary
// row is appended. A directory watcher can drive the same path when new maps
// appear on disk.
package web

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/edaniels/golog"
	"go.uber.org/atomic"
	"go.viam.com/utils"
	goji "goji.io"
	"goji.io/pat"
)

// MapProcessor runs the configured evaluation passes on one map file.
type MapProcessor interface {
	ProcessMap(ctx context.Context, mapPath string) error
}

// Service is the HTTP trigger front end. At most one evaluation runs at a
// time; overlapping calls are rejected rather than queued.
type Service struct {
	processor MapProcessor
	logger    golog.Logger
	busy      atomic.Bool
}

// NewService returns a trigger service driving the given processor.
func NewService(processor MapProcessor, logger golog.Logger) *Service {
	return &Service{processor: processor, logger: logger}
}

// Handler returns the HTTP routes of the service.
func (s *Service) Handler() http.Handler {
	mux := goji.NewMux()
	mux.Handle(pat.Post("/api/process_map"), http.HandlerFunc(s.handleProcessMap))
	return mux
}

type processMapRequest struct {
	FilePath string `json:"file_path"`
}

type processMapResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func (s *Service) handleProcessMap(w http.ResponseWriter, r *http.Request) {
	var req processMapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.FilePath == "" {
		writeJSON(w, http.StatusBadRequest, processMapResponse{Error: "body must carry a file_path"})
		return
	}
	if !s.busy.CompareAndSwap(false, true) {
		writeJSON(w, http.StatusConflict, processMapResponse{Error: "an evaluation is already running"})
		return
	}
	defer s.busy.Store(false)

	s.logger.Infow("processing map", "path", req.FilePath)
	if err := s.processor.ProcessMap(r.Context(), req.FilePath); err != nil {
		s.logger.Errorw("map processing failed", "path", req.FilePath, "error", err)
		writeJSON(w, http.StatusInternalServerError, processMapResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, processMapResponse{Success: true})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck
	json.NewEncoder(w).Encode(body)
}

// Serve hosts the service on addr until the context is cancelled.
func (s *Service) Serve(ctx context.Context, addr string) error {
	server := &http.Server{Addr: addr, Handler: s.Handler()}
	utils.PanicCapturingGo(func() {
		<-ctx.Done()
		utils.UncheckedError(server.Shutdown(context.Background()))
	})
	s.logger.Infow("serving evaluation trigger", "addr", addr)
	err := server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}
