package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/ritzau/tag-flow/pkg/catalog"
	"github.com/ritzau/tag-flow/pkg/dataset"
	"github.com/ritzau/tag-flow/pkg/logging"
	"github.com/ritzau/tag-flow/pkg/model"
	"github.com/ritzau/tag-flow/pkg/pubsub"
	"github.com/ritzau/tag-flow/pkg/report"
	"github.com/ritzau/tag-flow/pkg/selection"
)

//go:embed static/*
var staticFiles embed.FS

// StatePatch is the body of PATCH /api/state. Absent fields are left unchanged.
type StatePatch struct {
	FactSheetType *string       `json:"factSheetType,omitempty"`
	TagGroupID    *string       `json:"tagGroupId,omitempty"`
	ShowUntagged  *bool         `json:"showUntagged,omitempty"`
	Filter        *model.Filter `json:"filter,omitempty"`
}

// StateResponse is the report state together with the offered tag groups
type StateResponse struct {
	State     report.State      `json:"state"`
	TagGroups []model.TagGroup  `json:"tagGroups"`
	Custom    model.CustomState `json:"customState"`
}

// Server represents the web server
type Server struct {
	router     *mux.Router
	controller *report.Controller
	publisher  pubsub.Publisher
	metrics    http.Handler
	logger     *slog.Logger
}

// Option customizes a Server
type Option func(*Server)

// WithMetrics serves h at /metrics
func WithMetrics(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// NewServer creates a web server for the controller. Applied datasets are
// published on the dataset topic.
func NewServer(controller *report.Controller, publisher pubsub.Publisher, opts ...Option) *Server {
	s := &Server{
		router:     mux.NewRouter(),
		controller: controller,
		publisher:  publisher,
		logger:     logging.New("web"),
	}
	for _, opt := range opts {
		opt(s)
	}
	controller.OnDataset(s.publishDataset)
	s.setupRoutes()
	return s
}

func (s *Server) publishDataset(applied report.Applied) {
	if err := s.publisher.Publish(pubsub.TopicDataset, "applied", applied); err != nil {
		s.logger.Warn("failed to publish dataset", "error", err)
	}
}

// Handler returns the routed handler wrapped in the request id middleware
func (s *Server) Handler() http.Handler {
	return logging.RequestIDMiddleware(s.router)
}

func (s *Server) setupRoutes() {
	// SSE subscription endpoint
	s.router.HandleFunc("/api/subscribe/{topic}", s.handleSubscribe).Methods("GET")

	s.router.HandleFunc("/api/state", s.handleGetState).Methods("GET")
	s.router.HandleFunc("/api/state", s.handlePatchState).Methods("PATCH")
	s.router.HandleFunc("/api/tag-groups", s.handleTagGroups).Methods("GET")
	s.router.HandleFunc("/api/dataset", s.handleDataset).Methods("GET")
	s.router.HandleFunc("/api/selection", s.handleSelection).Methods("POST")

	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics).Methods("GET")
	}

	// Serve static files
	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		logging.Fatal("static files missing", "error", err)
	}
	s.router.PathPrefix("/").Handler(http.FileServer(http.FS(staticFS)))
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	topic := mux.Vars(r)["topic"]
	if !pubsub.KnownTopic(topic) {
		http.Error(w, fmt.Sprintf("Unknown topic: %s", topic), http.StatusNotFound)
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*") // CORS support

	// Send initial comment to establish connection (Safari compatibility)
	fmt.Fprintf(w, ": connected\n\n")
	flush(w)

	// Browsers resend the last id they saw when reconnecting
	since, _ := strconv.Atoi(r.Header.Get("Last-Event-ID"))

	sub, err := s.publisher.Subscribe(r.Context(), topic, since)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer sub.Close()

	// Stream events until the client goes away or the publisher closes
	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := pubsub.WriteSSE(w, event); err != nil {
				logging.DebugContext(r.Context(), "error writing SSE event", "topic", topic, "error", err)
				return
			}
			flush(w)
		}
	}
}

func flush(w http.ResponseWriter) {
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (s *Server) stateResponse() StateResponse {
	state := s.controller.State()
	groups := s.controller.TagGroups()
	if groups == nil {
		groups = []model.TagGroup{}
	}
	return StateResponse{State: state, TagGroups: groups, Custom: state.Custom()}
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.stateResponse())
}

func (s *Server) handlePatchState(w http.ResponseWriter, r *http.Request) {
	var patch StatePatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, fmt.Sprintf("Invalid state patch: %v", err), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if patch.FactSheetType != nil {
		if err := s.controller.SetFactSheetType(ctx, *patch.FactSheetType); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	if patch.TagGroupID != nil {
		if err := s.controller.SetTagGroup(ctx, *patch.TagGroupID); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	if patch.ShowUntagged != nil {
		s.controller.SetShowUntagged(ctx, *patch.ShowUntagged)
	}
	if patch.Filter != nil {
		s.controller.SetFilter(ctx, *patch.Filter)
	}

	writeJSON(w, http.StatusOK, s.stateResponse())
}

func (s *Server) handleTagGroups(w http.ResponseWriter, r *http.Request) {
	groups := s.controller.TagGroups()
	if groups == nil {
		groups = []model.TagGroup{}
	}
	writeJSON(w, http.StatusOK, groups)
}

func (s *Server) handleDataset(w http.ResponseWriter, r *http.Request) {
	applied := s.controller.Applied()
	if applied == nil {
		s.writeError(w, r, report.ErrNoDataset)
		return
	}
	writeJSON(w, http.StatusOK, applied)
}

func (s *Server) handleSelection(w http.ResponseWriter, r *http.Request) {
	var target selection.Target
	if err := json.NewDecoder(r.Body).Decode(&target); err != nil {
		http.Error(w, fmt.Sprintf("Invalid selection target: %v", err), http.StatusBadRequest)
		return
	}

	result, err := s.controller.Select(r.Context(), target)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, catalog.ErrUnknownRecordType),
		errors.Is(err, report.ErrUnknownTagGroup),
		errors.Is(err, selection.ErrUnresolvableInteraction):
		return http.StatusNotFound
	case errors.Is(err, catalog.ErrMissingDimensionCatalog),
		errors.Is(err, dataset.ErrMissingSelection):
		return http.StatusUnprocessableEntity
	case errors.Is(err, report.ErrNoDataset):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= 500 && status != http.StatusServiceUnavailable {
		s.logger.ErrorContext(r.Context(), "request error", "error", err)
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// Start serves on the given port until ctx is cancelled
func (s *Server) Start(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// Cancelling ctx also ends open SSE streams
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "url", fmt.Sprintf("http://localhost:%d", port))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}
