package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bizflow/internal/app"
	"bizflow/internal/auth"
	"bizflow/internal/db"
	"bizflow/internal/events"
	"bizflow/internal/health"
	"bizflow/internal/logger"
	"bizflow/internal/retrier"

	"github.com/jmoiron/sqlx"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	connectAttempts = 5
	connectBackoff  = 2 * time.Second
	shutdownTimeout = 15 * time.Second
)

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(logger.Config{
		LogFile:   cfg.LogFile,
		LogLevel:  cfg.LogLevel,
		AppName:   "bizflow",
		AddCaller: true,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := retrier.Connect(ctx, connectAttempts, connectBackoff, func() (*sqlx.DB, error) {
		return db.OpenPostgres(ctx, cfg.DatabaseURL, cfg.Postgres())
	})
	if err != nil {
		log.Fatal("database unavailable", zap.Error(err))
	}
	defer conn.Close()

	if err := db.Migrate(ctx, conn); err != nil {
		log.Fatal("migration failed", zap.Error(err))
	}

	if cfg.AdminEmail != "" && cfg.AdminPassword != "" {
		authSvc := auth.NewService(conn, auth.ServiceConfig{Secret: cfg.JWTSecret, TokenTTL: cfg.TokenTTL}, log)
		if _, err := authSvc.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword, "Administrator"); err != nil {
			log.Fatal("admin bootstrap failed", zap.Error(err))
		}
		log.Info("admin profile ensured", zap.String("email", cfg.AdminEmail))
	}

	components := []health.Component{{Name: "db", Healther: db.Healther{DB: conn}}}

	var redisClient *redis.Client
	redisComponent := health.Component{Name: "redis", Optional: true}
	if cfg.RedisURL != "" {
		redisClient, err = retrier.Connect(ctx, connectAttempts, connectBackoff, func() (*redis.Client, error) {
			return db.OpenRedis(ctx, cfg.RedisURL)
		})
		if err != nil {
			log.Fatal("redis unavailable", zap.Error(err))
		}
		defer redisClient.Close()
		redisComponent.Healther = db.RedisHealther{Client: redisClient}
	}
	components = append(components, redisComponent)

	var publisher events.Publisher = events.Nop{}
	amqpComponent := health.Component{Name: "amqp", Optional: true}
	if cfg.AMQPURL != "" {
		amqpConn, err := retrier.Connect(ctx, connectAttempts, connectBackoff, func() (*amqp.Connection, error) {
			return amqp.Dial(cfg.AMQPURL)
		})
		if err != nil {
			log.Fatal("amqp unavailable", zap.Error(err))
		}
		p, err := events.NewAMQPPublisher(amqpConn, cfg.AMQPExchange, log)
		if err != nil {
			log.Fatal("amqp publisher failed", zap.Error(err))
		}
		defer p.Close()
		publisher = p
		amqpComponent.Healther = p
	}
	components = append(components, amqpComponent)

	router := app.NewRouter(app.Deps{
		Config: cfg,
		DB:     conn,
		Redis:  redisClient,
		Events: publisher,
		Health: health.NewChecker(log, components...),
		Logger: log,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("bizflow listening", zap.String("addr", cfg.HTTPAddr), zap.String("env", cfg.AppEnv))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		log.Error("server stopped", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
}
