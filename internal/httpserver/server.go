// Package httpserver serves the soapstone XRPC endpoints.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/joelghill/soapstone/internal/config"
	"github.com/joelghill/soapstone/internal/domain"
	"github.com/joelghill/soapstone/internal/geo"
	"github.com/joelghill/soapstone/internal/lexicon"
)

// Server is the HTTP server that serves the soapstone XRPC endpoints.
type Server struct {
	cfg        *config.Config
	service    *domain.PostService
	logger     *slog.Logger
	httpServer *http.Server
}

// NewServer creates a new HTTP server around the post service.
func NewServer(cfg *config.Config, service *domain.PostService, logger *slog.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		service: service,
		logger:  logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /xrpc/social.soapstone.feed.getPosts", s.handleGetPosts)
	mux.HandleFunc("POST /xrpc/social.soapstone.feed.createPost", s.handleCreatePost)
	mux.HandleFunc("POST /xrpc/social.soapstone.feed.createRating", s.handleCreateRating)
	mux.HandleFunc("POST /xrpc/social.soapstone.feed.deleteRating", s.handleDeleteRating)
	mux.HandleFunc("GET /health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      withLogging(logger, mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start begins listening for HTTP requests. It blocks until the server is
// shut down or an error occurs.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the server's handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetPosts(w http.ResponseWriter, r *http.Request) {
	location := r.URL.Query().Get("location")
	if location == "" {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "location parameter is required")
		return
	}

	// An absent radius parameter and an explicit out-of-range value are
	// different requests: the former gets the default, the latter is an error.
	var radius *int
	if v := r.URL.Query().Get("radius"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "InvalidRadius", "radius must be an integer")
			return
		}
		radius = &parsed
	}

	posts, err := s.service.GetPostsByLocation(r.Context(), location, radius)
	if err != nil {
		s.writeServiceError(w, r, err, "failed to get posts")
		return
	}
	if posts == nil {
		posts = []domain.PostView{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"posts": posts})
}

type createPostRequest struct {
	AuthorDID string           `json:"authorDid"`
	Message   lexicon.Message  `json:"message"`
	Location  lexicon.Location `json:"location"`
}

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	var req createPostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "malformed request body")
		return
	}
	if req.AuthorDID == "" {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "authorDid is required")
		return
	}

	result, err := s.service.CreatePost(r.Context(), req.AuthorDID, req.Message, req.Location)
	if err != nil {
		s.writeServiceError(w, r, err, "failed to create post")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type createRatingRequest struct {
	AuthorDID string            `json:"authorDid"`
	Post      lexicon.StrongRef `json:"post"`
	Value     *bool             `json:"value"`
}

func (s *Server) handleCreateRating(w http.ResponseWriter, r *http.Request) {
	var req createRatingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "malformed request body")
		return
	}
	if req.AuthorDID == "" {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "authorDid is required")
		return
	}
	if req.Value == nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "value is required")
		return
	}

	result, err := s.service.CreateRating(r.Context(), req.AuthorDID, req.Post, *req.Value)
	if err != nil {
		s.writeServiceError(w, r, err, "failed to create rating")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type deleteRatingRequest struct {
	AuthorDID string `json:"authorDid"`
	URI       string `json:"uri"`
}

func (s *Server) handleDeleteRating(w http.ResponseWriter, r *http.Request) {
	var req deleteRatingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "malformed request body")
		return
	}
	if req.AuthorDID == "" || req.URI == "" {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "authorDid and uri are required")
		return
	}

	if err := s.service.DeleteRating(r.Context(), req.AuthorDID, req.URI); err != nil {
		s.writeServiceError(w, r, err, "failed to delete rating")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{})
}

// writeServiceError maps service errors onto the XRPC error surface. Client
// mistakes are 400s with a stable error name; a failed repository write is a
// bad gateway since the PDS, not this service, rejected it.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	var invalidRecord *lexicon.InvalidRecordError
	switch {
	case errors.Is(err, domain.ErrInvalidRadius):
		writeError(w, http.StatusBadRequest, "InvalidRadius", err.Error())
	case errors.Is(err, geo.ErrMalformedLocation):
		writeError(w, http.StatusBadRequest, "MalformedLocation", err.Error())
	case errors.As(err, &invalidRecord):
		writeError(w, http.StatusBadRequest, "InvalidRecord", err.Error())
	case errors.Is(err, domain.ErrUpstreamWrite):
		s.logger.Error(msg, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusBadGateway, "UpstreamWriteFailure", "repository write failed")
	default:
		s.logger.Error(msg, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", msg)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, map[string]string{
		"error":   errType,
		"message": message,
	})
}

func withLogging(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration", time.Since(start),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
