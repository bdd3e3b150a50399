package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lattiq/mailgate/internal/config"
	"github.com/lattiq/mailgate/internal/delivery"
	"github.com/lattiq/mailgate/internal/handler"
	"github.com/lattiq/mailgate/internal/logger"
	"github.com/lattiq/mailgate/internal/queue"
	"github.com/lattiq/mailgate/internal/router"
	"github.com/lattiq/mailgate/internal/transport/sendgrid"
	"github.com/lattiq/mailgate/internal/transport/smtp"
	"github.com/lattiq/mailgate/internal/version"
	"github.com/lattiq/mailgate/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	log.Info().Str("version", version.Get().Version).Msg("starting mailgate")

	// Connect to Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		pingCancel()
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	pingCancel()
	log.Info().Str("addr", cfg.Redis.Addr()).Msg("connected to Redis")

	// Initialize transports
	primary, err := smtp.New(smtp.Config{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		StartTLS: cfg.SMTP.StartTLS,
		SSL:      cfg.SMTP.SSL,
		Timeout:  cfg.Transport.Timeout,
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize SMTP transport")
	}
	defer primary.Close()

	fallback, err := sendgrid.New(cfg.SendGrid.APIKey, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize SendGrid transport")
	}

	coordinator := delivery.New(primary, fallback, log)

	// Initialize broker and workers
	broker := queue.NewRedisBroker(rdb, cfg.Queues.Names(), cfg.Worker.PollTimeout, log)

	deadLetters := worker.NewDeadLetterRouter(broker, cfg.Queues.Error, log)
	executor := worker.NewExecutor(broker, deadLetters, cfg.Worker.RetryDelay, log)
	executor.Register(queue.TaskSendMail, worker.NewSendMailHandler(coordinator, log))
	executor.Register(queue.TaskMailError, worker.NewMailErrorHandler(log))

	sendPool := worker.NewPool(broker, cfg.Queues.Send, executor, cfg.Worker.Concurrency, log)
	errorPool := worker.NewPool(broker, cfg.Queues.Error, executor, 1, log)
	sendPool.Start()
	errorPool.Start()

	// Initialize handlers and router
	h := handler.New(coordinator, broker, cfg.Queues.Send, cfg.Worker.MaxAttempts, log)
	r := router.New(h)

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", cfg.Server.Addr()).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down...")

	// Stop accepting requests first, then drain workers, then the broker.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("HTTP server forced to shutdown")
	}
	if err := sendPool.Stop(ctx); err != nil {
		log.Error().Err(err).Msg("send workers did not stop cleanly")
	}
	if err := errorPool.Stop(ctx); err != nil {
		log.Error().Err(err).Msg("error workers did not stop cleanly")
	}
	if err := broker.Close(); err != nil {
		log.Error().Err(err).Msg("broker close failed")
	}

	log.Info().Msg("stopped")
}
