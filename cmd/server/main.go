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

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/thali-pos/api/internal/analytics"
	"github.com/thali-pos/api/internal/catalog"
	"github.com/thali-pos/api/internal/clock"
	"github.com/thali-pos/api/internal/config"
	"github.com/thali-pos/api/internal/projection"
	"github.com/thali-pos/api/internal/repository"
	"github.com/thali-pos/api/internal/router"
	"github.com/thali-pos/api/internal/service"
	"github.com/thali-pos/api/internal/ws"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("connect database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Error("ping database", "error", err)
		os.Exit(1)
	}

	clk := clock.NewSystem(cfg.Timezone)
	store := repository.New(pool, clk.Location())
	menus := catalog.NewStore(pool)

	hub := ws.NewHub()
	go hub.Run()

	listener := repository.NewListener(cfg.DatabaseURL, store, logger)
	manager := projection.NewManager(listener, clk, logger, func(tenantID uuid.UUID, stats analytics.Stats) {
		if event, ok := ws.NewEvent(ws.EventStatsUpdated, stats); ok {
			hub.BroadcastToTenant(tenantID, event)
		}
	})
	defer manager.Close()

	newStore := func(tx pgx.Tx) service.OrderStore {
		return repository.New(tx, clk.Location())
	}
	svc := service.NewOrderService(pool, newStore, menus, clk, cfg.TaxRatePercent, time.Duration(cfg.PrepSLAMinutes)*time.Minute)
	engine := service.NewTransitionEngine(store, clk)

	r := router.New(cfg, store, svc, engine, manager, clk, hub)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("starting server", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
}
