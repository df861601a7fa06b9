// Package server exposes a secret store over HTTP: health, a single secret
// lookup, a connectivity status and Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/systmms/secretxfer/internal/logging"
	"github.com/systmms/secretxfer/internal/metrics"
	"github.com/systmms/secretxfer/internal/retry"
	"github.com/systmms/secretxfer/pkg/secretstore"
)

// Config holds configuration for the HTTP server.
type Config struct {
	// Port is the port to listen on.
	Port int

	// SecretName is the secret served by /api/secret.
	SecretName string

	// FetchTimeout bounds a single store call made by a request.
	FetchTimeout time.Duration

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration before timing out writes of the response.
	WriteTimeout time.Duration
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() Config {
	return Config{
		Port:         8080,
		FetchTimeout: 30 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 35 * time.Second,
	}
}

// Server serves one secret store over HTTP.
type Server struct {
	config     Config
	store      secretstore.Store
	logger     *logging.Logger
	recorder   *metrics.Recorder
	classifier *retry.Classifier
	started    time.Time
	server     *http.Server
}

// New creates a server for store. Nothing listens until Run is called.
func New(store secretstore.Store, config Config, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Server{
		config:     config,
		store:      store,
		logger:     logger,
		recorder:   metrics.NewRecorder(),
		classifier: retry.NewClassifier(),
		started:    time.Now(),
	}
}

// Handler returns the request multiplexer.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleHealth)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/secret", s.handleSecret)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/check-secret", s.handleCheckSecret)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Run listens until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.Port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", s.config.Port, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is canceled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.server = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.Serve(ln)
	}()
	s.logger.Info("Serving %s from %s on %s", s.config.SecretName, s.store.Name(), ln.Addr())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/health" {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"message":   "secretxfer is running",
		"store":     s.store.Name(),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleSecret(w http.ResponseWriter, r *http.Request) {
	value, err := s.fetch(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"status":  "failure",
			"message": "Failed to retrieve secret",
			"error":   err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": "You are successful - here's the code.",
		"code":    value,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if _, err := s.fetch(r.Context()); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"status":           "failure",
			"message":          "Failed to connect to " + s.store.Name(),
			"secret_retrieved": false,
			"error":            err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":           "success",
		"message":          "Successfully connected to " + s.store.Name(),
		"secret_retrieved": true,
	})
}

type checkRequest struct {
	Input string `json:"input"`
}

// handleCheckSecret echoes its input, except that the word "secret" reveals
// the configured secret.
func (s *Server) handleCheckSecret(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, map[string]interface{}{"error": "Method not allowed"})
		return
	}

	var req checkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Input == "" {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":   "Input is required",
			"message": "Please provide some text to check",
		})
		return
	}

	now := time.Now().UTC().Format(time.RFC3339)
	if !strings.EqualFold(req.Input, "secret") {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success":   true,
			"input":     req.Input,
			"message":   fmt.Sprintf("You entered: %q. Try entering \"secret\" to see the store integration!", req.Input),
			"timestamp": now,
		})
		return
	}

	value, err := s.fetch(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error":   "Failed to retrieve secret",
			"message": "Could not access " + s.store.Name(),
			"details": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"input":       req.Input,
		"secretValue": value,
		"message":     "Secret retrieved successfully!",
		"timestamp":   now,
	})
}

// fetch makes one store call. An empty value counts as a failure.
func (s *Server) fetch(ctx context.Context) (string, error) {
	if s.config.SecretName == "" {
		return "", errors.New("no secret name configured")
	}
	if s.config.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.FetchTimeout)
		defer cancel()
	}

	rec, err := s.store.Fetch(ctx, s.config.SecretName)
	if err != nil {
		s.recorder.RecordAttempt(s.store.Name(), secretstore.OpFetch, s.classifier.Classify(err).MetricLabel())
		s.logger.Error("Failed to retrieve %s from %s: %v", s.config.SecretName, s.store.Name(), err)
		return "", err
	}
	s.recorder.RecordAttempt(s.store.Name(), secretstore.OpFetch, metrics.OutcomeSuccess)
	if rec.Value() == "" {
		return "", errors.New("secret not found or access denied")
	}
	s.logger.Debug("Retrieved %s from %s: %s", s.config.SecretName, s.store.Name(), logging.Secret(rec.Value()))
	return rec.Value(), nil
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
