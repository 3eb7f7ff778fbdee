package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"

	"github.com/Hussein-Mazeh/SolarDashboard/auth"
	"github.com/Hussein-Mazeh/SolarDashboard/internal/db"
	"github.com/Hussein-Mazeh/SolarDashboard/internal/portal"
	"github.com/Hussein-Mazeh/SolarDashboard/internal/service"
)

const (
	requestTimeout = 60 * time.Second
	maxRequestBody = 1 << 20 // 1 MiB; credential payloads are tiny
)

// Options configures the HTTP layer.
type Options struct {
	Vault          *service.Service
	Readings       *db.Store
	Logger         *slog.Logger
	AllowedOrigins []string
	StaticDir      string
	SessionTTL     time.Duration

	// HIBP, when set, adds a breach lookup to the passphrase policy applied
	// on setup and migration.
	HIBP *auth.HIBPClient
}

// Server is the session/API layer in front of the vault lifecycle and the
// portal client. It owns the session cookies and the per-session portal
// clients; credentials reach it only through the session cache.
type Server struct {
	vault      *service.Service
	readings   *db.Store
	log        *slog.Logger
	staticDir  string
	sessionTTL time.Duration
	origins    []string
	validate   *validator.Validate
	hibp       *auth.HIBPClient

	mu      sync.Mutex
	clients map[string]*portal.Client
}

// New builds the server from its dependencies.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ttl := opts.SessionTTL
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Server{
		vault:      opts.Vault,
		readings:   opts.Readings,
		log:        logger,
		staticDir:  opts.StaticDir,
		sessionTTL: ttl,
		origins:    opts.AllowedOrigins,
		validate:   validator.New(),
		hibp:       opts.HIBP,
		clients:    make(map[string]*portal.Client),
	}
}

// Router constructs the chi multiplexer with the middleware pipeline and all
// endpoints.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	if len(s.origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.origins,
			AllowedMethods:   []string{"GET", "POST"},
			AllowedHeaders:   []string{"Content-Type"},
			AllowCredentials: true,
		}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(noStore)
		r.Use(maxBytes(maxRequestBody))

		r.Route("/credentials", func(r chi.Router) {
			r.Get("/status", s.handleStatus)
			r.Post("/setup", s.handleSetup)
			r.Post("/unlock", s.handleUnlock)
			r.Post("/reset", s.handleReset)
		})

		r.Route("/data", func(r chi.Router) {
			r.Get("/live", s.handleLiveData)
			r.Get("/history", s.handleHistoryData)
		})

		r.Post("/logout", s.handleLogout)
	})

	if s.staticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(s.staticDir)))
	}

	return r
}

// noStore disables browser caching for API responses.
func noStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
		w.Header().Set("Pragma", "no-cache")
		next.ServeHTTP(w, r)
	})
}

// maxBytes caps the request body size.
func maxBytes(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, n)
			next.ServeHTTP(w, r)
		})
	}
}

// requestLogger logs method, path, status and duration. Request bodies are
// never logged; they can carry passphrases.
func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()))
		})
	}
}

type apiResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, apiResponse{Success: false, Error: msg})
}
