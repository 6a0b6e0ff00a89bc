package main

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/MrEthical07/passly"
	"github.com/MrEthical07/passly/internal/postgres"
	"github.com/MrEthical07/passly/notify"
)

// buildEngine wires an engine from cfg. Postgres is used when a DSN is set,
// Redis otherwise. The returned cleanup closes the engine and its stores.
func buildEngine(ctx context.Context, cfg *cliConfig, logger *slog.Logger) (*passly.Engine, func(), error) {
	b := passly.New().WithConfig(cfg.Config).WithLogger(logger)
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	switch {
	case cfg.Store.PostgresDSN != "":
		store, err := postgres.Open(ctx, cfg.Store.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, store.Close)
		b.WithAccountRepository(store.Accounts()).
			WithOTPRepository(store.OTPs()).
			WithTokenRepository(store.Tokens())
	case cfg.Store.RedisAddr != "":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Store.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, oops.Code("REDIS_CONNECT_FAILED").With("addr", cfg.Store.RedisAddr).Wrap(err)
		}
		closers = append(closers, func() { _ = rdb.Close() })
		b.WithRedis(rdb)
	default:
		return nil, nil, oops.Code("CONFIG_INVALID").Errorf("store.postgres_dsn or store.redis_addr is required")
	}

	if cfg.SMTP.Host != "" {
		notifier, err := notify.NewSMTP(notify.SMTPConfig{
			Host:        cfg.SMTP.Host,
			Port:        cfg.SMTP.Port,
			Username:    cfg.SMTP.Username,
			Password:    cfg.SMTP.Password,
			FromAddress: cfg.SMTP.From,
			DisplayName: cfg.SMTP.DisplayName,
			RequireTLS:  cfg.SMTP.RequireTLS,
			Timeout:     cfg.SMTP.Timeout,
		}, logger)
		if err != nil {
			cleanup()
			return nil, nil, oops.Code("CONFIG_INVALID").With("section", "smtp").Wrap(err)
		}
		b.WithNotifier(notifier)
	}

	engine, err := b.Build()
	if err != nil {
		cleanup()
		return nil, nil, oops.Code("CONFIG_INVALID").With("operation", "build engine").Wrap(err)
	}
	closers = append(closers, engine.Close)
	return engine, cleanup, nil
}
