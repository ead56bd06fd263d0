// main.go — точка входа HTTP-сервиса Consult Portal.
// Порядок: config → logger → backend → сервисы → диагностика →
// middleware → HTTP-сервер с graceful shutdown.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/bigkaa/consultportal/internal/api/handlers"
	"github.com/bigkaa/consultportal/internal/api/middleware"
	"github.com/bigkaa/consultportal/internal/api/openapi"
	"github.com/bigkaa/consultportal/internal/app"
	"github.com/bigkaa/consultportal/internal/config"
	"github.com/bigkaa/consultportal/internal/diagnostics"
	"github.com/bigkaa/consultportal/internal/server"
	"github.com/bigkaa/consultportal/internal/service"
)

// Лимитер диагностики: максимум субъектов и время хранения неактивного ключа.
const (
	limiterMaxKeys = 10000
	limiterIdleTTL = 10 * time.Minute
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Consult Portal завершился с ошибкой: %v", err)
	}
}

func run() error {
	// 1. Загрузка конфигурации (YAML + переменные окружения)
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("ошибка загрузки конфигурации: %w", err)
	}
	if err := cfg.ValidateServe(); err != nil {
		return err
	}

	// 2. Настройка логгера
	logger := config.SetupLogger(cfg)
	logger.Info("Consult Portal запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Server.Port),
		slog.String("transport", cfg.Backend.Transport),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Backend
	be, err := app.OpenBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer be.Close()
	if !be.Client.HasElevated() {
		return fmt.Errorf("не задан сервисный доступ к backend (CP_BACKEND_SERVICE_KEY или CP_DB_DSN)")
	}

	// 4. Мониторинг зависимостей (topologymetrics)
	if dephealthSvc, dhErr := service.NewDephealthService(be.DephealthParams(cfg), logger); dhErr != nil {
		logger.Warn("Мониторинг зависимостей не запущен", slog.String("error", dhErr.Error()))
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска мониторинга зависимостей", slog.String("error", startErr.Error()))
	} else {
		defer dephealthSvc.Stop()
	}

	// 5. Аутентификация
	var jwtAuth *middleware.JWTAuth
	var jwksChecker handlers.ReadinessChecker
	if cfg.Auth.Enabled {
		jwtAuth, err = middleware.NewJWTAuth(cfg.Auth, cfg.Backend.CACertPath, logger)
		if err != nil {
			return fmt.Errorf("инициализация JWT: %w", err)
		}
		checker, err := middleware.NewJWKSReadinessChecker(cfg.Auth.JWKSURL, cfg.Backend.CACertPath, cfg.Auth.JWKSClientTimeout)
		if err != nil {
			return err
		}
		jwksChecker = checker
	} else {
		logger.Warn("Проверка подписи JWT отключена (CP_AUTH_ENABLED=false): роль из токена принимается без проверки, только для локальной разработки",
			slog.String("transport", cfg.Backend.Transport),
		)
		jwtAuth = middleware.NewUnverifiedAuth(middleware.AuthOptions{
			RoleClaim: cfg.Auth.RoleClaim,
			Leeway:    cfg.Auth.Leeway,
		}, logger)
	}

	// 6. Диагностика: маршруты API проверяются запросами к самому сервису
	apiBaseURL := cfg.Diagnostics.APIBaseURL
	if apiBaseURL == "" {
		apiBaseURL = fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	}
	prober, err := diagnostics.NewHTTPProber(apiBaseURL, cfg.Backend.CACertPath, cfg.Diagnostics.ProbeTimeout, logger)
	if err != nil {
		return err
	}
	battery, err := app.NewBattery(cfg, be.Client, prober, false, logger)
	if err != nil {
		return err
	}

	// 7. Обработчики
	healthHandler := handlers.NewHealthHandler(be.Checker, jwksChecker)
	apiHandler := handlers.NewAPIHandler(
		healthHandler,
		service.NewResolver(be.Client, logger),
		service.NewAccountingService(be.Client, logger),
		service.NewMessagingService(be.Client, logger),
		battery,
		logger,
	)

	// 8. Middleware: metrics → request id → logger → OpenAPI → JWT
	validator, err := middleware.NewOpenAPIValidator(openapi.Spec, logger)
	if err != nil {
		return err
	}
	middlewares := []func(http.Handler) http.Handler{
		middleware.MetricsMiddleware(),
		middleware.RequestID(),
		middleware.RequestLogger(logger),
		validator.Middleware(),
		server.JWTAuthWithExclusions(jwtAuth.Middleware(), "/health/", "/metrics"),
	}

	limiter := service.NewRateLimiter(cfg.Diagnostics.RateLimitPerMinute, limiterMaxKeys, limiterIdleTTL)

	// 9. HTTP-сервер
	srv := server.New(cfg, logger, apiHandler, limiter, middlewares...)
	if err := srv.Run(ctx); err != nil {
		return err
	}

	logger.Info("Consult Portal остановлен")
	return nil
}
