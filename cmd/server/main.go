package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"github.com/trailhub/trailsuggest/internal/api"
	"github.com/trailhub/trailsuggest/internal/app"
	"github.com/trailhub/trailsuggest/internal/config"
	"github.com/trailhub/trailsuggest/internal/logger"
	"github.com/trailhub/trailsuggest/internal/session"
	"github.com/trailhub/trailsuggest/obs"
	"github.com/trailhub/trailsuggest/policy"
)

const serviceName = "trailsuggest"

func main() {
	configPath := flag.String("config", "", "path to a TOML config file (default $"+config.EnvConfigPath+")")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("config", "err", err)
	}
	lg := logger.FromConfig(os.Stderr, serviceName, cfg.Log.Level, cfg.Log.Format)

	shutdown, err := obs.InitTracer(serviceName, cfg.Trace.SampleRatio)
	if err != nil {
		lg.Error("tracer init", "err", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(ctx); err != nil {
			lg.Error("tracer shutdown", "err", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, policy.NewMetrics(), lg)
	if err != nil {
		lg.Fatal("startup", "err", err)
	}
	defer a.Close()

	sessionLog := lg.WithPrefix("session")
	registry := session.NewRegistry(a.Controller,
		session.NavigatorFunc(func(query string) {
			sessionLog.Debug("search submitted", "target", api.SearchTarget(query))
		}),
		a.Controller.Index,
		session.RegistryConfig{
			IdleTTL:     config.Ms(cfg.Sessions.IdleTTLMs),
			MaxSessions: cfg.Sessions.MaxSessions,
			Options:     a.SessionOptions(sessionLog),
		})
	defer registry.Close()

	go registry.Run(ctx, config.Ms(cfg.Sessions.SweepMs))
	go a.RunRefresh(ctx, config.Ms(cfg.Trails.RefreshMs), registry)

	router, err := api.NewRouter(a.Controller, registry, api.Options{
		DefaultBudgetMs: cfg.Search.BudgetMs,
		AllowUpload:     cfg.Trails.AllowUpload,
		Logger:          lg.WithPrefix("http"),
	})
	if err != nil {
		lg.Fatal("router", "err", err)
	}

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  config.Ms(cfg.Server.ReadTimeoutMs),
		WriteTimeout: config.Ms(cfg.Server.WriteTimeoutMs),
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		lg.Info("listening", "port", cfg.Server.Port, "trails", a.Controller.Index().Len(), "geocoder", a.Geocoder)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("listen", "err", err)
		}
	}()

	<-ctx.Done()
	lg.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		lg.Error("shutdown", "err", err)
	}
}
