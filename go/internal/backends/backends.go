// Package backends opens the configured replication.Backend.
package backends

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/mcdev12/alias/go/internal/config"
	"github.com/mcdev12/alias/go/internal/replication"
	"github.com/mcdev12/alias/go/internal/replication/memory"
	"github.com/mcdev12/alias/go/internal/replication/natskv"
	"github.com/mcdev12/alias/go/internal/replication/pgstore"
	"github.com/mcdev12/alias/go/internal/replication/redisstore"
	"github.com/mcdev12/alias/go/internal/replication/relayclient"
	"github.com/rs/zerolog/log"
)

// Open returns the backend named by cfg.Backend.Kind and a func releasing its
// connections. Listeners started here stop when ctx is cancelled.
func Open(ctx context.Context, cfg *config.Config, playerID string) (replication.Backend, func(), error) {
	switch cfg.Backend.Kind {
	case config.BackendMemory:
		return memory.New(), func() {}, nil

	case config.BackendPostgres:
		dsn := cfg.DatabaseDSN()
		db, err := OpenDatabase(ctx, dsn)
		if err != nil {
			return nil, nil, err
		}
		if err := pgstore.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, nil, err
		}

		pgCfg := pgstore.DefaultConfig()
		pgCfg.DatabaseURL = dsn
		store, err := pgstore.New(db, pgCfg)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		go func() {
			if err := store.Start(ctx); err != nil {
				log.Error().Err(err).Msg("lobby listener stopped")
			}
		}()
		return store, func() { db.Close() }, nil

	case config.BackendNATS:
		natsCfg := natskv.DefaultConfig()
		natsCfg.URL = cfg.Backend.NATSURL
		store, err := natskv.New(ctx, natsCfg)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil

	case config.BackendRedis:
		redisCfg := redisstore.DefaultConfig()
		redisCfg.URL = cfg.Backend.RedisURL
		store, err := redisstore.New(ctx, redisCfg)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil

	case config.BackendRelay:
		relayCfg := relayclient.DefaultConfig()
		relayCfg.URL = cfg.Backend.RelayURL
		relayCfg.PlayerID = playerID
		client, err := relayclient.New(relayCfg)
		if err != nil {
			return nil, nil, err
		}
		return client, func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend.Kind)
	}
}

func OpenDatabase(ctx context.Context, dsn string) (*sql.DB, error) {
	database, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := database.PingContext(pingCtx); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("connected to database")
	return database, nil
}
