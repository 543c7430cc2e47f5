package server

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"resume-matcher/internal/db"
	"resume-matcher/internal/matcher"
)

//go:embed templates/index.html
var templateFS embed.FS

var indexTemplate = template.Must(template.New("index.html").Funcs(template.FuncMap{
	"score": func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) },
	"join":  strings.Join,
}).ParseFS(templateFS, "templates/index.html"))

// Config holds server configuration.
type Config struct {
	Addr            string
	UploadDir       string // per-request upload folders are created here
	KeepUploads     bool
	MaxUploadBytes  int64
	RequestTimeout  time.Duration
	AllowAllOrigins bool
}

type Server struct {
	cfg        Config
	matcher    *matcher.Matcher
	store      *db.Store // nil when history is disabled
	router     chi.Router
	httpServer *http.Server
}

// New creates a server. store may be nil.
func New(cfg Config, m *matcher.Matcher, store *db.Store) *Server {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 32 << 20
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	s := &Server{cfg: cfg, matcher: m, store: store}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.cfg.RequestTimeout))

	corsOpts := cors.Options{
		AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}
	if s.cfg.AllowAllOrigins {
		corsOpts.AllowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(corsOpts))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/", s.handleIndex)
	r.Get("/matcher", s.handleIndex)
	r.Post("/matcher", s.handleUpload)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/match", s.handleMatch)
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleGetRun)
	})
	return r
}

// Router returns the HTTP handler.
func (s *Server) Router() http.Handler { return s.router }

// Start listens on the configured address until Shutdown is called.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.cfg.RequestTimeout + 10*time.Second,
		IdleTimeout:       120 * time.Second,
	}
	log.Info().Str("addr", s.cfg.Addr).Msg("Starting HTTP server")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			log.Info().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("HTTP request")
		}()
		next.ServeHTTP(ww, r)
	})
}
