package http

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"ananse-reader/internal/domain"
	"ananse-reader/internal/usecase/bookmarks"
	"ananse-reader/internal/usecase/chapters"
	"ananse-reader/internal/usecase/likes"
	"ananse-reader/internal/usecase/profiles"
	"ananse-reader/internal/usecase/progress"
	"ananse-reader/internal/usecase/settings"
)

// Services groups the application services exposed over HTTP.
type Services struct {
	Chapters  *chapters.Service
	Profiles  *profiles.Service
	Progress  *progress.Service
	Bookmarks *bookmarks.Service
	Likes     *likes.Service
	Settings  *settings.Service
}

// Server is the API gateway.
type Server struct {
	svc      Services
	verifier domain.TokenVerifier
	log      zerolog.Logger
	validate *validator.Validate

	readTimeout    time.Duration
	writeTimeout   time.Duration
	requestTimeout time.Duration

	mu  sync.Mutex
	srv *http.Server
}

type Option func(*Server)

func WithLogger(log zerolog.Logger) Option {
	return func(s *Server) {
		s.log = log
	}
}

// WithTimeouts overrides the connection and per-request timeouts. Zero values keep the defaults.
func WithTimeouts(read, write, request time.Duration) Option {
	return func(s *Server) {
		if read > 0 {
			s.readTimeout = read
		}
		if write > 0 {
			s.writeTimeout = write
		}
		if request > 0 {
			s.requestTimeout = request
		}
	}
}

func NewServer(svc Services, verifier domain.TokenVerifier, opts ...Option) *Server {
	s := &Server{
		svc:            svc,
		verifier:       verifier,
		log:            zerolog.Nop(),
		validate:       newValidator(),
		readTimeout:    15 * time.Second,
		writeTimeout:   15 * time.Second,
		requestTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.observe)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.requestTimeout))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(s.identify)

		r.Get("/me", s.handleMe)
		r.Get("/chapters", s.handleListChapters)
		r.Get("/chapters/{slug}", s.handleGetChapter)
		r.Get("/chapters/{slug}/pages/{page}", s.handleGetChapterPage)
		r.Get("/likes/{chapterId}", s.handleLikeStatus)
		r.Get("/site-settings", s.handleGetSiteSettings)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)

			r.Get("/profile", s.handleGetProfile)
			r.Patch("/profile", s.handleUpdateProfile)

			r.Get("/progress", s.handleListProgress)
			r.Get("/progress/last", s.handleLastProgress)
			r.Post("/progress", s.handleSaveProgress)

			r.Get("/bookmarks", s.handleListBookmarks)
			r.Get("/bookmarks/chapter/{chapterId}", s.handleListChapterBookmarks)
			r.Post("/bookmarks", s.handleCreateBookmark)
			r.Delete("/bookmarks/{id}", s.handleDeleteBookmark)

			r.Post("/likes/{chapterId}", s.handleToggleLike)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.requireAuth)
			r.Use(s.requireAdmin)

			r.Get("/chapters", s.handleAdminListChapters)
			r.Post("/chapters", s.handleCreateChapter)
			r.Patch("/chapters/{id}", s.handleUpdateChapter)
			r.Delete("/chapters/{id}", s.handleDeleteChapter)
			r.Patch("/site-settings", s.handleUpdateSiteSettings)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})
	return r
}

// Start serves until Shutdown is called.
func (s *Server) Start(addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  s.readTimeout,
		WriteTimeout: s.writeTimeout,
	}
	s.mu.Lock()
	s.srv = srv
	s.mu.Unlock()

	s.log.Info().Str("addr", addr).Msg("http server started")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown waits for in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
