package app

import (
	"context"
	"database/sql"

	"bankid-service/internal/config"
	"bankid-service/internal/db"
	"bankid-service/internal/logger"
	"bankid-service/internal/redis"

	_ "github.com/lib/pq"
)

type Infra struct {
	DB    *db.DB // nil when no DSN is configured
	Redis *redis.Client
}

func setupInfra(ctx context.Context, cfg config.Config) (*Infra, error) {
	infra := &Infra{}

	if cfg.DatabaseDSN != "" {
		sqlDB, err := sql.Open("postgres", cfg.DatabaseDSN)
		if err != nil {
			return nil, err
		}

		if err := sqlDB.PingContext(ctx); err != nil {
			return nil, err
		}

		if err := db.RunVerificationMigration(ctx, sqlDB); err != nil {
			return nil, err
		}

		infra.DB = &db.DB{DB: sqlDB}
		logger.Info("database ready", nil)
	} else {
		logger.Warn("no database configured, verifications will not be persisted", nil)
	}

	if cfg.RedisAddr != "" {
		redisClient, err := redis.New(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			return nil, err
		}
		infra.Redis = redisClient
		logger.Info("redis ready", nil)
	} else {
		logger.Warn("no redis configured, rate limiting disabled", nil)
	}

	return infra, nil
}
