package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/veilbound/veilbound-backend/internal/auth"
	"github.com/veilbound/veilbound-backend/internal/config"
	"github.com/veilbound/veilbound-backend/internal/httpapi"
	"github.com/veilbound/veilbound-backend/internal/registry"
	"github.com/veilbound/veilbound-backend/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var logger *zap.Logger
	if cfg.Env == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var st store.Store = store.Nop{}
	if cfg.DatabaseDSN != "" {
		gs, err := store.OpenPostgres(cfg.DatabaseDSN)
		if err != nil {
			logger.Fatal("database open failed", zap.Error(err))
		}
		st = gs
	} else {
		logger.Info("no DATABASE_DSN, running without persistence")
	}
	writer := store.NewWriter(ctx, st, logger)

	reg := registry.New(ctx, registry.Config{
		RoomTTL:          cfg.RoomTTL,
		SweepInterval:    cfg.SweepInterval,
		HeartbeatGrace:   cfg.HeartbeatGrace,
		MemberGrace:      cfg.MemberGrace,
		ScenarioMajority: cfg.ScenarioMajority,
		BattleTurnLimit:  cfg.BattleTurnTimeout,
		ScenarioLimit:    cfg.ScenarioChoiceTimeout,
	}, registry.PersistHooks{
		Persist: writer.PersistRoom,
		Audit:   writer.AppendAudit,
	}, logger)

	verifier := auth.NewVerifier(cfg.JWTSecret)
	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: httpapi.SetupRoutes(reg, verifier, logger),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		reg.Stop()
		writer.Close()
		return st.Close()
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}
