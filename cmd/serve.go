package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/project-registry/internal/config"
	"github.com/sells-group/project-registry/internal/extract"
	"github.com/sells-group/project-registry/internal/model"
	"github.com/sells-group/project-registry/internal/pipeline"
	"github.com/sells-group/project-registry/internal/store"
)

// SourceAPI labels observations posted to the HTTP API.
const SourceAPI = "http api"

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the chat webhook and registry API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, cfg, config.ModeServe)
		if err != nil {
			return err
		}
		defer env.Close()

		srvState := newServer(ctx, env.Pipeline, env.Store, cfg.Server)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           srvState.routes(cfg.Server.CORSOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		srvState.Wait()
		return nil
	},
}

// ingester is the part of the pipeline the server drives.
type ingester interface {
	ProcessMessage(ctx context.Context, text, source string) (*pipeline.IngestResult, error)
	Observe(ctx context.Context, obs *model.Observation, source, confidence string) (*pipeline.Outcome, error)
}

// server holds the handler state. Chat deliveries are processed in the
// background; seen maps recently ingested URLs to their first delivery.
type server struct {
	ctx      context.Context
	pipeline ingester
	registry store.Registry
	seen     *expirable.LRU[string, time.Time]
	seenMu   sync.Mutex
	inflight sync.WaitGroup
}

func newServer(ctx context.Context, p ingester, reg store.Registry, sc config.ServerConfig) *server {
	size := sc.DedupeCapacity
	if size <= 0 {
		size = 1024
	}
	ttl := time.Duration(sc.DedupeMinutes) * time.Minute
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &server{
		ctx:      ctx,
		pipeline: p,
		registry: reg,
		seen:     expirable.NewLRU[string, time.Time](size, nil, ttl),
	}
}

// claim records url as being ingested. It reports false when url was
// claimed within the dedupe window.
func (s *server) claim(url string) bool {
	s.seenMu.Lock()
	defer s.seenMu.Unlock()
	if s.seen.Contains(url) {
		return false
	}
	s.seen.Add(url, time.Now())
	return true
}

// release forgets url after a failed ingestion.
func (s *server) release(url string) {
	if url == "" {
		return
	}
	s.seenMu.Lock()
	s.seen.Remove(url)
	s.seenMu.Unlock()
}

// Wait blocks until background ingestions finish.
func (s *server) Wait() { s.inflight.Wait() }

func (s *server) routes(origins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/webhook/message", s.handleMessage)
	r.Post("/webhook/observation", s.handleObservation)
	r.Get("/projects", s.handleListProjects)
	r.Get("/projects/{projectID}", s.handleGetProject)
	return r
}

// messageRequest is either a bare {"text": ...} body or a chat platform
// event callback, whose text is JSON inside message.content.
type messageRequest struct {
	Text      string `json:"text"`
	Source    string `json:"source"`
	Type      string `json:"type"`
	Challenge string `json:"challenge"`
	Event     struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"event"`
}

func (m messageRequest) messageText() string {
	if m.Text != "" {
		return m.Text
	}
	var content struct {
		Text string `json:"text"`
	}
	if json.Unmarshal([]byte(m.Event.Message.Content), &content) == nil {
		return content.Text
	}
	return m.Event.Message.Content
}

func (s *server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Type == "url_verification" {
		respond(w, http.StatusOK, map[string]string{"challenge": req.Challenge})
		return
	}

	text := req.messageText()
	source := req.Source
	if source == "" {
		source = pipeline.SourceChat
	}

	url := pipeline.FirstURL(text)
	if url != "" {
		if !s.claim(url) {
			zap.L().Info("webhook: duplicate delivery skipped", zap.String("url", url))
			respond(w, http.StatusOK, map[string]string{"status": "duplicate", "url": url})
			return
		}
	}

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		if s.pipeline == nil {
			return
		}
		res, err := s.pipeline.ProcessMessage(s.ctx, text, source)
		if err != nil {
			// Let a redelivery of the same URL try again.
			s.release(url)
			zap.L().Error("webhook: message processing failed", zap.String("url", url), zap.Error(err))
			return
		}
		if res != nil {
			zap.L().Info("webhook: message processed",
				zap.String("url", url),
				zap.String("action", string(res.Action)),
				zap.String("project_id", res.Project.ProjectID),
			)
		}
	}()

	if url == "" {
		respond(w, http.StatusOK, map[string]string{"status": "no_url"})
		return
	}
	respond(w, http.StatusAccepted, map[string]string{"status": "accepted", "url": url})
}

func (s *server) handleObservation(w http.ResponseWriter, r *http.Request) {
	var raw map[string]any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if s.pipeline == nil {
		respondError(w, http.StatusServiceUnavailable, "pipeline not configured")
		return
	}
	obs := model.ObservationFromMap(raw)
	if !hasAnyField(&obs.Attributes) {
		respondError(w, http.StatusBadRequest, "observation has no known fields")
		return
	}

	source, _ := raw["_source"].(string)
	if source == "" {
		source = SourceAPI
	}
	out, err := s.pipeline.Observe(r.Context(), &obs, source, extract.ConfidenceMedium)
	if err != nil {
		zap.L().Error("webhook: observation failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "resolve failed")
		return
	}
	respond(w, http.StatusOK, out)
}

func (s *server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.registry.ListProjects(r.Context())
	if err != nil {
		zap.L().Error("api: list projects failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "list projects failed")
		return
	}
	if projects == nil {
		projects = []model.Project{}
	}
	respond(w, http.StatusOK, projects)
}

func (s *server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "projectID")
	p, err := s.registry.GetProject(r.Context(), id)
	if err != nil {
		zap.L().Error("api: get project failed", zap.String("project_id", id), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "get project failed")
		return
	}
	if p == nil {
		respondError(w, http.StatusNotFound, "project not found")
		return
	}
	respond(w, http.StatusOK, p)
}

func hasAnyField(a *model.Attributes) bool {
	for _, f := range model.Fields {
		if a.Has(f.Key) {
			return true
		}
	}
	return false
}

func newSubmission(url, source string) model.Submission {
	return model.Submission{URL: url, Source: source, SubmittedAt: time.Now().UTC()}
}

func respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respond(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
