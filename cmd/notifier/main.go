// Command notifier runs the notification service: an HTTP API for
// triggering the welcome and daily news flows, plus the cron scheduler
// that fires the daily digest.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	openaisdk "github.com/openai/openai-go"

	"github.com/signalist/notifier/api"
	"github.com/signalist/notifier/inference"
	"github.com/signalist/notifier/inference/anthropic"
	"github.com/signalist/notifier/inference/google"
	"github.com/signalist/notifier/inference/openai"
	"github.com/signalist/notifier/mail"
	"github.com/signalist/notifier/news"
	"github.com/signalist/notifier/notify"
	"github.com/signalist/notifier/pipeline"
	"github.com/signalist/notifier/pipeline/emit"
	"github.com/signalist/notifier/pipeline/store"
	"github.com/signalist/notifier/schedule"
	"github.com/signalist/notifier/users"
)

func main() {
	godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("notifier exited with error", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	directory, err := users.OpenPostgres(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer directory.Close()

	var feed news.Feed = news.NewFinnhubFeed(cfg.FinnhubAPIKey)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return err
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		feed = news.NewCachedFeed(feed, rdb, cfg.NewsCacheTTL)
	}
	aggregator := news.NewAggregator(feed)

	model, closeModel, err := openModel(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeModel()

	sender, err := mail.NewSMTPSender(mail.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.MailFrom,
	})
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	runner := pipeline.New(st, emit.NewLogEmitter(os.Stdout, cfg.EmitJSON), pipeline.Options{
		MaxParallel: cfg.MaxParallel,
		Metrics:     pipeline.NewMetrics(registry),
	})

	svc, err := notify.NewService(runner, aggregator, model, sender, directory, logger)
	if err != nil {
		return err
	}

	scheduler, err := schedule.New(svc, logger)
	if err != nil {
		return err
	}
	scheduler.Start()

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: api.NewServer(svc, st, registry, logger).Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := scheduler.Stop(shutdownCtx); err != nil {
		logger.Warn("scheduler did not stop cleanly", "error", err)
	}
	return server.Shutdown(shutdownCtx)
}

func openStore(cfg Config) (store.Store, error) {
	switch cfg.StoreBackend {
	case "memory":
		return store.NewMemStore(), nil
	case "sqlite":
		return store.NewSQLiteStore(cfg.SQLitePath)
	case "mysql":
		return store.NewMySQLStore(cfg.MySQLDSN)
	default:
		// loadConfig validated the backend already.
		return nil, errors.New("unknown store backend")
	}
}

func openModel(ctx context.Context, cfg Config) (inference.Client, func(), error) {
	noop := func() {}
	switch cfg.Provider {
	case "google":
		client, err := google.New(ctx, cfg.GoogleAPIKey, cfg.Model)
		if err != nil {
			return nil, noop, err
		}
		return client, func() {
			if err := client.Close(); err != nil {
				slog.Warn("closing google client", "error", err)
			}
		}, nil
	case "anthropic":
		return anthropic.New(cfg.AnthropicAPIKey, anthropicsdk.Model(cfg.Model)), noop, nil
	case "openai":
		return openai.New(cfg.OpenAIAPIKey, openaisdk.ChatModel(cfg.Model)), noop, nil
	default:
		return nil, noop, errors.New("unknown inference provider")
	}
}
