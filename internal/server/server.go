package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/reportwise-ai/reportwise/config"
	"github.com/reportwise-ai/reportwise/internal/cache"
	"github.com/reportwise-ai/reportwise/internal/engine"
	"github.com/reportwise-ai/reportwise/internal/knowledge"
	"github.com/reportwise-ai/reportwise/internal/telemetry"
	openai_provider "github.com/reportwise-ai/reportwise/provider/openai"
)

// Run wires all engine dependencies and serves the HTTP API until the
// process receives SIGINT or SIGTERM. Indexes are persisted on shutdown.
func Run(cfg *config.Config) error {
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := openai_provider.NewClient(cfg.LLM)

	registry, err := knowledge.NewRegistry(cfg.Engine.Domains, client, cfg.LLM.EmbeddingModel, cfg.Storage.IndexDir,
		log.New(log.Writer(), "[REGISTRY] ", log.LstdFlags))
	if err != nil {
		return err
	}
	if err := registry.LoadAll(ctx); err != nil {
		return fmt.Errorf("load indexes: %w", err)
	}
	if cfg.Storage.PersistCron != "" {
		if err := registry.StartPersistLoop(ctx, cfg.Storage.PersistCron); err != nil {
			return err
		}
	}

	var pool *engine.LanePool
	if len(cfg.Lanes) > 0 {
		pool, err = engine.NewLanePool(cfg.Lanes, log.New(log.Writer(), "[LANES] ", log.LstdFlags))
		if err != nil {
			return err
		}
	} else {
		baseLogger.Printf("warn: no lanes configured; deep search is unavailable")
	}

	tele := telemetry.New(cfg.Telemetry, prometheus.DefaultRegisterer, nil)

	var answerCache engine.Cache
	if cfg.Cache.Enabled() {
		c, err := cache.New(ctx, cfg.Cache, nil)
		if err != nil {
			baseLogger.Printf("warn: answer cache unavailable: %v", err)
		} else {
			answerCache = c
			defer c.Close()
		}
	}

	eng, err := engine.New(cfg, client, registry, pool, answerCache, tele,
		log.New(log.Writer(), "[ENGINE] ", log.LstdFlags))
	if err != nil {
		return err
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Authorization"},
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	h := &apiHandler{
		engine:   eng,
		registry: registry,
		pool:     pool,
		logger:   baseLogger,
		stream:   cfg.Server.StreamEnabled,
	}

	api := e.Group("/api")
	if cfg.Server.JWTSecret != "" {
		api.Use(jwtMiddleware([]byte(cfg.Server.JWTSecret)))
	}
	limiter := rate.NewLimiter(rate.Limit(cfg.Server.QueryRate), cfg.Server.QueryRateBurst)
	h.Register(api, limiter)

	go func() {
		if err := e.Start(cfg.Server.Address); err != nil && err != http.ErrServerClosed {
			baseLogger.Printf("server stopped: %v", err)
			stop()
		}
	}()
	baseLogger.Printf("listening on %s", cfg.Server.Address)

	<-ctx.Done()
	baseLogger.Printf("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		baseLogger.Printf("warn: server shutdown: %v", err)
	}
	if err := registry.PersistAll(); err != nil {
		baseLogger.Printf("warn: persist on shutdown: %v", err)
	}
	return nil
}
