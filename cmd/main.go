// Promoflow conversation server.
//
// Serves the marketing chatbot turn API over HTTP.
//
// Usage:
//
//	go run ./cmd                          # Default :8080, in-memory store
//	go run ./cmd -addr :9000 -dev
//	go build -o promoflow ./cmd && ./promoflow -overrides handlers.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/bloomline-ai/promoflow/commbus"
	"github.com/bloomline-ai/promoflow/convengine/config"
	"github.com/bloomline-ai/promoflow/convengine/httpapi"
	"github.com/bloomline-ai/promoflow/convengine/llm"
	"github.com/bloomline-ai/promoflow/convengine/logging"
	"github.com/bloomline-ai/promoflow/convengine/observability"
	"github.com/bloomline-ai/promoflow/convengine/session"
	"github.com/bloomline-ai/promoflow/convengine/store"
	"github.com/bloomline-ai/promoflow/convengine/store/postgres"
	"github.com/bloomline-ai/promoflow/convengine/workflow"
)

func main() {
	addr := flag.String("addr", ":8080", "HTTP listen address")
	overridesPath := flag.String("overrides", "", "optional handler overrides YAML file")
	dev := flag.Bool("dev", false, "development mode: console logs at debug level")
	flag.Parse()

	// .env is optional; production uses real environment variables.
	_ = godotenv.Load()

	logCfg := logging.DefaultConfig()
	logCfg.Development = *dev
	if *dev {
		logCfg.Level = "debug"
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		logCfg.Level = v
	}
	logCfg.FilePath = os.Getenv("LOG_FILE")

	logger, err := logging.New(logCfg)
	if err != nil {
		log.Fatalf("init logging: %v", err)
	}
	logger.Info("server starting", "addr", *addr, "dev", *dev)

	handlers := config.DefaultHandlers()
	core := config.DefaultCoreConfig()
	if *overridesPath != "" {
		overrides, err := config.LoadOverridesFile(*overridesPath)
		if err != nil {
			log.Fatalf("load overrides: %v", err)
		}
		if err := overrides.Apply(handlers); err != nil {
			log.Fatalf("apply overrides: %v", err)
		}
		logger.Info("handler overrides applied", "path", *overridesPath)
	}

	ctx := context.Background()

	var st store.Store
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		pg, err := postgres.New(ctx, dsn)
		if err != nil {
			log.Fatalf("connect postgres: %v", err)
		}
		defer pg.Close()
		st = pg
		logger.Info("store ready", "backend", "postgres")
	} else {
		st = store.NewMemory()
		logger.Info("store ready", "backend", "memory")
	}

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		log.Fatal("OPENAI_API_KEY is required")
	}
	gen := llm.NewOpenAIGenerator(apiKey, os.Getenv("OPENAI_MODEL"))

	bus := commbus.NewInMemoryCommBus(5*time.Second, logger)
	bus.AddMiddleware(commbus.NewLoggingMiddleware(logger))
	bus.AddMiddleware(commbus.NewCircuitBreakerMiddleware(5, 30*time.Second, nil, logger))

	limiter := session.NewRateLimiter(session.DefaultRateLimitConfig())

	engine, err := workflow.NewEngine(handlers, core, gen, st, bus, limiter, logger)
	if err != nil {
		log.Fatalf("build engine: %v", err)
	}

	stopCleanup := engine.Sessions().StartCleanupLoop(session.DefaultCleanupConfig(), limiter)
	defer stopCleanup()

	if endpoint := os.Getenv("OTLP_ENDPOINT"); endpoint != "" {
		shutdown, err := observability.InitTracer("promoflow", endpoint)
		if err != nil {
			log.Fatalf("init tracer: %v", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Warn("tracer shutdown failed", "error", err)
			}
		}()
		logger.Info("tracing enabled", "endpoint", endpoint)
	}

	apiCfg := httpapi.DefaultConfig()
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		apiCfg.AllowedOrigins = strings.Split(origins, ",")
	}
	api := httpapi.NewServer(engine, apiCfg, logger)

	server := &http.Server{
		Addr:         *addr,
		Handler:      api.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()
	logger.Info("server ready", "addr", *addr)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve: %v", err)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
	logger.Info("server stopped")
}
