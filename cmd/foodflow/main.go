package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/riandyrn/otelchi"
	"golang.org/x/sync/errgroup"

	"github.com/neomorfeo/foodflow/internal/adapter/auth"
	"github.com/neomorfeo/foodflow/internal/adapter/fsm"
	oteladapter "github.com/neomorfeo/foodflow/internal/adapter/otel"
	riveradapter "github.com/neomorfeo/foodflow/internal/adapter/river"
	"github.com/neomorfeo/foodflow/internal/adapter/sqlite"
	"github.com/neomorfeo/foodflow/internal/app"
	"github.com/neomorfeo/foodflow/internal/config"

	handler "github.com/neomorfeo/foodflow/internal/adapter/http"
)

const serviceName = "foodflow"

func main() {
	if err := run(); err != nil {
		slog.Error("foodflow exited", "error", err)
		os.Exit(1)
	}
}

// run wires every adapter, serves until SIGINT/SIGTERM, then shuts down
// the HTTP server and the job queue.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	otelCfg, err := oteladapter.ConfigFromEnv()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Telemetry ---
	providers, err := oteladapter.Setup(ctx, otelCfg)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.Error("otel shutdown", "error", err)
		}
	}()

	// --- Adapters (out) ---
	db, err := oteladapter.OpenDB(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()

	store, err := sqlite.NewFromDB(db)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}

	sweep := &riveradapter.ExpirySweepWorker{}
	queue, err := riveradapter.Setup(ctx, db, sweep, riveradapter.Config{
		MaxWorkers:    cfg.QueueMaxWorkers,
		SweepSchedule: cfg.SweepSchedule,
	})
	if err != nil {
		return fmt.Errorf("river: %w", err)
	}

	tracedStore := oteladapter.NewTracingStore(store)
	publisher := oteladapter.NewTracingPublisher(riveradapter.NewPublisher(queue))
	validator := fsm.New()

	resolver, err := auth.NewResolver(auth.Config{
		Secret: []byte(cfg.JWTSecret),
		Issuer: cfg.JWTIssuer,
	})
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	// --- Application ---
	engine := app.NewLifecycleEngine(tracedStore, validator, publisher, app.WithLogger(logger))
	feed := app.NewFeedProjector(tracedStore, time.Now)
	sweep.Sweeper = engine

	// --- Adapters (in) ---
	router := chi.NewMux()
	router.Use(otelchi.Middleware(serviceName, otelchi.WithChiRoutes(router)))
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	api := humachi.New(router, huma.DefaultConfig("FoodFlow", otelCfg.ServiceVersion))
	handler.Register(api, handler.Deps{
		Engine:   engine,
		Feed:     feed,
		Resolver: resolver,
		Actions:  validator,
	})

	// --- Server ---
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// The queue outlives the signal context so Stop can drain it.
	if err := queue.Start(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("river start: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("foodflow listening", "addr", srv.Addr, "docs", "http://localhost:"+cfg.Port+"/docs")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		if err := queue.Stop(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("river stop: %w", err))
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("stopped")
	return nil
}
