package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"log-governor/internal/config"
	"log-governor/internal/governor"
	"log-governor/internal/handler"
	"log-governor/internal/logger"
	"log-governor/internal/middleware"
)

func main() {
	// Carregar configurações (falha rápida no startup em ambiente estrito)
	loader := config.NewLoader()
	cfg, err := loader.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Inicializar logger
	appLogger := logger.NewLogger(cfg.LogLevel, cfg.LogFormat)
	appLogger.Info("Starting Log Governor API", map[string]interface{}{
		"version":   "1.0.0",
		"log_level": cfg.LogLevel,
		"port":      cfg.ServerPort,
		"env":       cfg.AppEnv,
	})

	// Montar os subsistemas e registrar a instância padrão do processo
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	gov := governor.New(ctx, loader, appLogger)
	cancel()
	governor.SetDefault(gov)
	defer governor.ResetDefault()

	// Hot reload do arquivo de overrides
	watcher, err := config.NewWatcher(cfg.OverridesFile, &config.WatcherConfig{
		DebounceDuration: 500 * time.Millisecond,
		OnChange: func(overrides *config.Overrides) error {
			limiterCfg := loader.RateLimiterConfig()
			limiterCfg.SamplingRates = overrides.SamplingRates
			gov.Limiter.UpdateConfig(limiterCfg)
			gov.Limiter.SetOverrides(overrides.EndpointLimits)
			appLogger.Info("Overrides applied", map[string]interface{}{
				"sampling_rates":  len(overrides.SamplingRates),
				"endpoint_limits": len(overrides.EndpointLimits),
			})
			return nil
		},
	}, appLogger)
	if err != nil {
		appLogger.Warn("Overrides watcher unavailable", map[string]interface{}{
			"file":  cfg.OverridesFile,
			"error": err.Error(),
		})
	} else {
		watcher.Start()
		defer watcher.Stop()
	}

	// Refresh periódico da configuração remota, com contexto capturado
	refreshInterval := time.Duration(cfg.ConfigCacheTTL) * time.Second
	gov.Timers.SetIntervalWithContext(context.Background(), refreshInterval, func(ctx context.Context) {
		result := gov.Configs.FetchRemoteConfig(ctx, false)
		appLogger.Debug("Remote config refreshed", map[string]interface{}{
			"success": result.Success,
			"source":  result.Source,
		})
	})

	// Configurar Gin
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.NewLogGateMiddleware(gov.Limiter, gov.Configs, gov.Propagator, appLogger, cfg.ServiceName))

	handlers := handler.NewHandlers(gov.Storage, gov.Configs, gov.Limiter, appLogger)
	handlers.SetupRoutes(router)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Iniciar servidor em goroutine
	go func() {
		appLogger.Info("Starting HTTP server", map[string]interface{}{
			"addr": server.Addr,
		})

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Failed to start server", err, nil)
			os.Exit(1)
		}
	}()

	// Aguardar sinais de interrupção
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	appLogger.Info("Log Governor API is running", map[string]interface{}{
		"port": cfg.ServerPort,
		"endpoints": []string{
			"GET  /health",
			"GET  /admin/config",
			"PUT  /admin/config",
			"POST /admin/config/merge",
			"GET  /admin/limiter",
			"GET  /admin/errors",
			"POST /admin/limiter/reset",
		},
	})

	<-quit
	appLogger.Info("Shutting down server...", nil)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown", err, nil)
		os.Exit(1)
	}

	appLogger.Info("Server stopped gracefully", nil)
}
