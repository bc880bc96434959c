package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/JakeFAU/menu-crawler/internal/config"
	iduuid "github.com/JakeFAU/menu-crawler/internal/id/uuid"
	"github.com/JakeFAU/menu-crawler/internal/logging"
	"github.com/JakeFAU/menu-crawler/internal/menu"
	"github.com/JakeFAU/menu-crawler/internal/metrics"
)

const (
	requestTimeout = 30 * time.Second
	pingTimeout    = 2 * time.Second
)

// CatalogReader serves the read projections of crawled data.
type CatalogReader interface {
	ListRestaurants(ctx context.Context) ([]menu.Restaurant, error)
	GetRestaurant(ctx context.Context, id int64) (menu.Restaurant, error)
	ListCategories(ctx context.Context, collection menu.Collection, restaurantID int64) ([]menu.CategorySummary, error)
	ListItems(ctx context.Context, collection menu.Collection, restaurantID int64, categoryID int) ([]menu.CatalogItem, error)
	GetItem(ctx context.Context, collection menu.Collection, id, restaurantID int64) (menu.CatalogItem, error)
}

// CartStore is the bot's write side.
type CartStore interface {
	AddToCart(ctx context.Context, line menu.CartLine) (menu.CartLine, error)
	ListCart(ctx context.Context, userID int64) ([]menu.CartLine, error)
	ClearCart(ctx context.Context, userID int64) error
	Checkout(ctx context.Context, userID int64) (menu.Order, error)
}

// RunLedger lists recorded ingestion runs.
type RunLedger interface {
	ListRuns(ctx context.Context, limit int) ([]menu.RunSummary, error)
}

// Backend is everything the API reads and writes. *postgres.Gateway satisfies it.
type Backend interface {
	CatalogReader
	CartStore
	RunLedger
	Ping(ctx context.Context) error
}

// Trigger wakes the scheduler. *scheduler.Scheduler satisfies it.
type Trigger interface {
	Trigger() bool
	Running() bool
}

// Server wires HTTP handlers to the backend.
type Server struct {
	router  chi.Router
	backend Backend
	trigger Trigger
	logger  *zap.Logger

	progress func() []int64
}

// NewServer constructs a Server with middleware and routes. trigger may be nil,
// in which case POST /v1/runs answers 503.
func NewServer(backend Backend, trigger Trigger, cfg config.Config, logger *zap.Logger) *Server {
	s := &Server{
		backend: backend,
		trigger: trigger,
		logger:  logging.OrNop(logger).Named("api"),
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	if len(cfg.Server.CORSAllowedOrigins) > 0 {
		r.Use(cors.New(cors.Options{
			AllowedOrigins: cfg.Server.CORSAllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
			AllowedHeaders: []string{"Content-Type", "X-API-Key"},
			MaxAge:         300,
		}).Handler)
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Use(timeoutMiddleware(requestTimeout))

		r.Route("/restaurants", func(r chi.Router) {
			r.Get("/", s.listRestaurants)
			r.Route("/{restaurant_id}", func(r chi.Router) {
				r.Get("/", s.getRestaurant)
				r.Get("/{collection}/categories", s.listCategories)
				r.Get("/{collection}/categories/{category_id}/items", s.listItems)
			})
		})
		r.Get("/{collection}/items/{item_id}", s.getItem)

		r.Route("/users/{user_id}", func(r chi.Router) {
			r.Get("/cart", s.listCart)
			r.Post("/cart", s.addToCart)
			r.Delete("/cart", s.clearCart)
			r.Post("/checkout", s.checkout)
		})

		r.Get("/runs", s.listRuns)
		r.Post("/runs", s.triggerRun)
	})

	s.router = r
	return s
}

// SetProgress installs the source of the restaurant ids reported as
// in_progress by GET /v1/runs.
func (s *Server) SetProgress(fn func() []int64) {
	s.progress = fn
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
	defer cancel()
	if err := s.backend.Ping(ctx); err != nil {
		s.logger.Warn("readiness check failed", zap.Error(err))
		s.writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if !iduuid.Valid(reqID) {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("request_id", requestID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered",
					zap.String("request_id", requestID(r.Context())),
					zap.Any("panic", rec),
				)
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeErrorTo(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func writeErrorTo(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func pathInt64(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return 0, errors.New("invalid " + name)
	}
	return v, nil
}

func pathCollection(r *http.Request) (menu.Collection, error) {
	c, err := menu.ParseCollection(chi.URLParam(r, "collection"))
	if err != nil {
		return "", errors.New("collection must be menu or wine")
	}
	return c, nil
}
