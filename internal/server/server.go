// Пакет server — HTTP-сервер Consult Portal с graceful shutdown.
// Без TLS — HTTP внутри кластера, TLS termination на ingress.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/consultportal/internal/api/handlers"
	"github.com/bigkaa/consultportal/internal/api/middleware"
	"github.com/bigkaa/consultportal/internal/config"
	"github.com/bigkaa/consultportal/internal/domain/model"
)

// Server — HTTP-сервер Consult Portal.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.ServerConfig
}

// New создаёт HTTP-сервер с настроенными routes и middleware.
// limiter ограничивает запуски диагностики (nil — без ограничения).
// middlewares — общие middleware (metrics, logging, validation, JWT) в порядке применения.
func New(cfg *config.Config, logger *slog.Logger, h *handlers.APIHandler, limiter middleware.Limiter, middlewares ...func(http.Handler) http.Handler) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      NewRouter(h, limiter, middlewares...),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return &Server{
		httpServer: srv,
		logger:     logger.With(slog.String("component", "http_server")),
		cfg:        &cfg.Server,
	}
}

// NewRouter собирает маршруты. Проверка ролей выполняется на уровне маршрута.
func NewRouter(h *handlers.APIHandler, limiter middleware.Limiter, middlewares ...func(http.Handler) http.Handler) chi.Router {
	router := chi.NewRouter()
	for _, mw := range middlewares {
		router.Use(mw)
	}

	router.Get("/health/live", h.HealthLive)
	router.Get("/health/ready", h.HealthReady)
	router.Get("/metrics", h.GetMetrics)

	router.Route("/api/v1", func(r chi.Router) {
		r.With(middleware.RequireRole(model.RoleConsultant)).Post("/consultant-clients", h.ConsultantClients)
		r.With(middleware.RequireRole(model.RoleClient)).Post("/accounting/lookup", h.AccountingLookup)
		r.With(middleware.RequireRole(model.RoleClient)).Post("/messages/list", h.MessagesList)
		r.With(diagnosticsGuard(limiter)...).Get("/diagnostics", h.Diagnostics)
	})
	router.With(diagnosticsGuard(limiter)...).Get("/diagnostics", h.DiagnosticsPage)

	return router
}

func diagnosticsGuard(limiter middleware.Limiter) []func(http.Handler) http.Handler {
	mws := []func(http.Handler) http.Handler{middleware.RequireRole(model.RoleAdmin)}
	if limiter != nil {
		mws = append(mws, middleware.RateLimit(limiter))
	}
	return mws
}

// JWTAuthWithExclusions оборачивает middleware, пропуская указанные пути.
// Запросы к путям, начинающимся с любого из excludePrefixes, проходят без middleware.
func JWTAuthWithExclusions(mw func(http.Handler) http.Handler, excludePrefixes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		wrapped := mw(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, prefix := range excludePrefixes {
				if strings.HasPrefix(r.URL.Path, prefix) {
					next.ServeHTTP(w, r)
					return
				}
			}
			wrapped.ServeHTTP(w, r)
		})
	}
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM)
// или отмены ctx. Затем выполняется graceful shutdown.
func (s *Server) Run(ctx context.Context) error {
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
	case <-ctx.Done():
		s.logger.Info("Контекст сервера отменён")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
