// Пакет server — HTTP-сервер плеера с graceful shutdown.
// Без TLS — TLS termination на reverse proxy.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/Sihagjaat/VJ-Video-Player/internal/api/handlers"
	"github.com/Sihagjaat/VJ-Video-Player/internal/api/middleware"
	"github.com/Sihagjaat/VJ-Video-Player/internal/config"
)

// Server — HTTP-сервер плеера.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с настроенными маршрутами и middleware.
func New(cfg *config.Config, logger *slog.Logger, h *handlers.APIHandler) *Server {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           NewRouter(cfg, logger, h),
		ReadHeaderTimeout: cfg.HTTPReadHeaderTimeout,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// NewRouter собирает маршруты.
// Probes и /metrics не ограничиваются по частоте и не пишутся в трассировку.
// /api/v1 монтируется только при заданном секрете JWT.
func NewRouter(cfg *config.Config, logger *slog.Logger, h *handlers.APIHandler) http.Handler {
	router := chi.NewRouter()
	router.Use(chimw.RealIP)
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))

	router.Get("/health/live", h.HealthLive)
	router.Get("/health/ready", h.HealthReady)
	router.Get("/metrics", h.GetMetrics)

	router.Group(func(r chi.Router) {
		if cfg.RateLimitRequests > 0 {
			limiter := middleware.NewIPRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow, cfg.RateLimitBurst)
			r.Use(middleware.RateLimit(limiter, logger))
		}

		r.Get("/", h.Root)
		r.Head("/", h.Root)

		traced(r, http.MethodGet, "/stream/{file_id}", h.StreamPage)
		traced(r, http.MethodHead, "/stream/{file_id}", h.StreamPage)
		traced(r, http.MethodGet, "/quality", h.QualityPage)
		traced(r, http.MethodHead, "/quality", h.QualityPage)
		traced(r, http.MethodGet, "/download/{file_id}", h.Download)
		traced(r, http.MethodHead, "/download/{file_id}", h.Download)

		if cfg.JWTSecret == "" {
			logger.Warn("VP_JWT_SECRET не задан, API статистики /api/v1 отключён")
			return
		}

		auth := middleware.NewJWTAuth(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTLeeway, logger)
		r.Route("/api/v1", func(r chi.Router) {
			r.Use(auth.Middleware())

			traced(r, http.MethodGet, "/files/{file_id}", h.GetFile)
			r.Route("/users/{user_id}", func(r chi.Router) {
				r.Use(middleware.RequireSelfOrAdmin("user_id"))
				traced(r, http.MethodGet, "/stats", h.UserStats)
				traced(r, http.MethodGet, "/earnings", h.UserEarnings)
				traced(r, http.MethodGet, "/files", h.UserFiles)
			})
		})
	})

	return router
}

// traced регистрирует обработчик, обёрнутый в серверный span с именем маршрута.
func traced(r chi.Router, method, pattern string, fn http.HandlerFunc) {
	r.Method(method, pattern, otelhttp.NewHandler(fn, method+" "+pattern))
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
