package web

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jaminalder/tictactoe-history/internal/app"
)

const defaultHeartbeat = 15 * time.Second

// Option configures the handler built by NewServer.
type Option func(*handlers)

// WithLogger sets the logger used for requests and rendering errors.
func WithLogger(l *slog.Logger) Option {
	return func(h *handlers) {
		if l != nil {
			h.log = l.With("component", "web")
		}
	}
}

// WithHeartbeat sets how often idle event streams get a comment line.
func WithHeartbeat(d time.Duration) Option {
	return func(h *handlers) {
		if d > 0 {
			h.heartbeat = d
		}
	}
}

// NewServer wires routes and returns an http.Handler. It also installs the
// board renderer on s so subscribers receive board fragments.
func NewServer(s *app.Service, opts ...Option) http.Handler {
	h := &handlers{
		svc:       s,
		tpl:       loadTemplates(),
		log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		heartbeat: defaultHeartbeat,
	}
	for _, opt := range opts {
		opt(h)
	}
	s.SetRenderer(h.renderSession)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(h.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/", h.index)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, "ok")
	})
	r.Post("/game", h.create)
	r.Route("/game/{id}", func(r chi.Router) {
		r.Get("/", h.view)
		r.Post("/play", h.play)
		r.Post("/reset", h.reset)
		r.Post("/history", h.history)
		r.Get("/events", h.events)
	})
	return r
}

func (h *handlers) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.log.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
