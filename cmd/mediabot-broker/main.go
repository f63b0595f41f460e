// Command mediabot-broker runs a broker process with a demo processor
// and callback wired in. Real deployments register their own resolvers
// and bot-facing consumers the same way.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tarik02-org/mediabot/brokers"
	"github.com/tarik02-org/mediabot/brokers/rabbitmq"
	redisbroker "github.com/tarik02-org/mediabot/brokers/redis"
	"github.com/tarik02-org/mediabot/config"
	"github.com/tarik02-org/mediabot/core"
	"github.com/tarik02-org/mediabot/schema"
	memorystore "github.com/tarik02-org/mediabot/stores/memory"
	"github.com/tarik02-org/mediabot/stores/postgres"
)

type linkQuery struct {
	URL string `json:"url" validate:"required,url"`
}

type linkResult struct {
	URL        string    `json:"url"`
	ResolvedAt time.Time `json:"resolvedAt"`
}

type chatContext struct {
	ChatID    int64 `json:"chatId" validate:"required"`
	MessageID int64 `json:"messageId"`
}

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	substrate, err := buildSubstrate(cfg)
	if err != nil {
		return err
	}

	store, cleanup, err := buildStore(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	engine := core.NewEngine(substrate, store,
		core.WithShutdownTimeout(cfg.Engine.ShutdownTimeout),
		core.WithLogger(logger),
	)

	processor, err := core.NewProcessor(
		"link",
		schema.Struct[linkQuery](),
		schema.Struct[linkResult](),
		func(q linkQuery) string { return strings.ToLower(q.URL) },
	)
	if err != nil {
		return err
	}

	err = core.RegisterRunner(engine, processor,
		func(ctx context.Context, query linkQuery) (linkResult, error) {
			return linkResult{URL: query.URL, ResolvedAt: time.Now()}, nil
		},
		core.WithConcurrency(cfg.Engine.Concurrency),
		core.WithLockTimeout(cfg.Engine.LockTimeout),
		core.WithCacheTimeout(cfg.Engine.CacheTimeout),
		core.WithRetryBackoff(cfg.Engine.RetryBackoff),
		core.WithMaxAttempts(cfg.Engine.MaxAttempts),
	)
	if err != nil {
		return err
	}

	callback, err := core.NewCallback("log", schema.Struct[chatContext](), processor)
	if err != nil {
		return err
	}

	err = core.RegisterConsumer(engine, callback, cfg.Engine.Concurrency,
		func(ctx context.Context, outcome core.Outcome[chatContext]) {
			if outcome.Err != nil {
				logger.Error("Request failed",
					"processor", outcome.Name,
					"chat", outcome.Context.ChatID,
					"error", outcome.Err)
				return
			}
			logger.Info("Request resolved",
				"processor", outcome.Name,
				"chat", outcome.Context.ChatID,
				"result", outcome.Result)
		},
	)
	if err != nil {
		return err
	}

	return engine.Run(context.Background())
}

func buildSubstrate(cfg *config.Config) (core.Substrate, error) {
	redisOpts := redisbroker.DefaultOptions()
	redisOpts.URI = cfg.Redis.URI
	redisOpts.Namespace = cfg.Redis.Namespace
	redisBroker := redisbroker.NewBroker(redisOpts)

	if !cfg.AMQP.Enabled {
		return redisBroker, nil
	}

	amqpOpts := rabbitmq.DefaultOptions()
	amqpOpts.URI = cfg.AMQP.URI

	// Queues ride AMQP; the result cache and dedupe locks stay on Redis.
	return brokers.Composite{
		Queues: rabbitmq.NewBroker(amqpOpts),
		Keys:   redisBroker,
		Locks:  redisBroker,
	}, nil
}

func buildStore(cfg *config.Config, logger *slog.Logger) (core.Store, func(), error) {
	if cfg.Postgres.URL == "" {
		logger.Warn("No postgres.url configured, using in-memory store")
		return memorystore.NewStore(), func() {}, nil
	}

	pool, err := pgxpool.New(context.Background(), cfg.Postgres.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}

	return postgres.NewStore(pool), pool.Close, nil
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
