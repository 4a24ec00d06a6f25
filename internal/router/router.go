package router

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/klauspost/compress/gzhttp"
	"github.com/leca/enhance-studio/internal/api"
	"github.com/leca/enhance-studio/internal/config"
	"github.com/leca/enhance-studio/internal/handler"
	"github.com/leca/enhance-studio/internal/logging"
	"github.com/leca/enhance-studio/internal/session"
	"github.com/leca/enhance-studio/internal/web"
	"github.com/rs/zerolog/log"
)

// Server holds the application dependencies and HTTP router.
type Server struct {
	Sessions *session.Controller
	Config   *config.Config
	Router   chi.Router
}

// New creates a new Server with a fully configured chi router.
func New(sessions *session.Controller, svc handler.ServiceProbe, cfg *config.Config) (*Server, error) {
	tmpl, err := web.Templates()
	if err != nil {
		return nil, fmt.Errorf("parsing templates: %w", err)
	}

	s := &Server{Sessions: sessions, Config: cfg}

	h := &handler.Handler{
		Sessions:  sessions,
		Service:   svc,
		Config:    cfg,
		Templates: tmpl,
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(logging.RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler { return gzhttp.GzipHandler(next) })

	// Health check (no session).
	r.Get("/health", s.Health)

	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServerFS(web.Static())))

	// Tool page and form actions.
	r.Group(func(r chi.Router) {
		r.Use(api.SessionMiddleware(cfg.SecureCookies))

		r.Get("/", h.Page)
		r.Post("/file", h.AcceptFile)
		r.Post("/params", h.SetParameters)
		r.Post("/enhance", h.Enhance)
		r.Post("/reenhance", h.Reenhance)
		r.Post("/clear", h.Clear)
		r.Get("/download", h.Download)
		r.Get("/result", h.Result)
		r.Get("/preview/{blob_id}", h.Preview)
	})

	// JSON API.
	r.Route("/api", func(r chi.Router) {
		// CORS must run before the session middleware so preflights are answered.
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Content-Type", "X-Request-Id"},
			ExposedHeaders:   []string{"Content-Length", "Content-Type"},
			AllowCredentials: false,
			MaxAge:           300,
		}))

		r.Get("/service", h.ServiceStatus)
		r.Get("/parameters", h.Parameters)

		r.Group(func(r chi.Router) {
			r.Use(api.SessionMiddleware(cfg.SecureCookies))

			r.Get("/session", h.GetSession)
			r.Post("/session/file", h.AcceptFileJSON)
			r.Post("/session/params", h.SetParametersJSON)
			r.Post("/session/enhance", h.EnhanceJSON)
			r.Post("/session/reenhance", h.ReenhanceJSON)
			r.Post("/session/clear", h.ClearJSON)
		})
	})

	s.Router = r
	return s, nil
}

// Health returns a simple health-check response.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]string{"status": "ok"}); err != nil {
		log.Error().Err(err).Msg("failed to encode health response")
	}
}
