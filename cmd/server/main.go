package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rabbitmq/rabbitmq-auth-backend-ldap/internal/backend"
	"github.com/rabbitmq/rabbitmq-auth-backend-ldap/internal/config"
	"github.com/rabbitmq/rabbitmq-auth-backend-ldap/internal/httpserver"
	"github.com/rabbitmq/rabbitmq-auth-backend-ldap/internal/ldap"
	"github.com/rabbitmq/rabbitmq-auth-backend-ldap/internal/logging"
	"github.com/rabbitmq/rabbitmq-auth-backend-ldap/internal/pool"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.LogMode(), cfg.Environment)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	queries, err := config.LoadQueries(cfg.QueriesFile)
	if err != nil {
		logger.Fatal("failed to load query definitions", zap.Error(err))
	}

	opts, err := cfg.LDAPOptions()
	if err != nil {
		logger.Fatal("failed to assemble LDAP options", zap.Error(err))
	}
	if len(cfg.Servers) == 0 {
		logger.Warn("no LDAP servers configured; every operation will fail")
	}

	p := pool.New(cfg.PoolSize, func() *ldap.ConnCache {
		return ldap.NewConnCache(ldap.Dial, opts, logger)
	}, cfg.IdleTimeout, logger)
	defer p.Close()

	be := backend.New(cfg, queries, p, logger)

	srv := &http.Server{
		Addr:    cfg.Addr(),
		Handler: httpserver.NewRouter(be, logger),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Addr()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
