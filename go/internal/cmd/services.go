package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/alias/go/clients"
	"github.com/mcdev12/alias/go/clients/words"
	"github.com/mcdev12/alias/go/internal/backends"
	"github.com/mcdev12/alias/go/internal/config"
	"github.com/mcdev12/alias/go/internal/game"
	"github.com/mcdev12/alias/go/internal/lobby"
	"github.com/mcdev12/alias/go/internal/replication"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

type Services struct {
	Store      *game.Store
	App        *game.App
	Replicator *replication.Replicator
	Lobby      *lobby.Lobby
	Registry   *prometheus.Registry

	closers []func()
}

// Close releases backend and word source connections in reverse order.
func (s *Services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// setupServices wires the client: backend → replicator → store/app → lobby.
// Background workers stop when ctx is cancelled.
func setupServices(ctx context.Context, cfg *config.Config, playerID string) (*Services, error) {
	services := &Services{Registry: prometheus.NewRegistry()}

	backend, err := services.setupBackend(ctx, cfg, playerID)
	if err != nil {
		services.Close()
		return nil, err
	}

	source, err := services.setupWords(ctx, cfg)
	if err != nil {
		services.Close()
		return nil, err
	}

	policy, _ := cfg.ConflictPolicy()
	resetPolicy, _ := cfg.ResetPolicy()

	store := game.NewStore(clockwork.NewRealClock(), playerID)

	replCfg := replication.DefaultConfig()
	replCfg.Policy = policy
	replCfg.Metrics = replication.NewPrometheusMetrics(services.Registry)
	repl := replication.NewReplicator(backend, store, replCfg)
	go repl.Run(ctx)

	appCfg := game.DefaultAppConfig()
	appCfg.ResetPolicy = resetPolicy
	appCfg.FetchTimeout = cfg.Game.FetchTimeout
	app := game.NewApp(store, source, repl, appCfg)

	services.Store = store
	services.App = app
	services.Replicator = repl
	services.Lobby = lobby.New(backend, app, repl, lobby.DefaultConfig())

	log.Info().
		Str("player_id", playerID).
		Str("backend", cfg.Backend.Kind).
		Str("conflict_policy", policy.String()).
		Str("reset_policy", resetPolicy.String()).
		Msg("services ready")
	return services, nil
}

func (s *Services) setupBackend(ctx context.Context, cfg *config.Config, playerID string) (replication.Backend, error) {
	backend, closeFn, err := backends.Open(ctx, cfg, playerID)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, closeFn)
	return backend, nil
}

// setupWords routes API selections to the public endpoint and curated tags to
// the configured source.
func (s *Services) setupWords(ctx context.Context, cfg *config.Config) (words.Source, error) {
	api := words.NewWordGameDBClient(cfg.Words.APIURL)

	var curated words.Source
	switch clients.WordSource(cfg.Words.Curated) {
	case clients.WordSourcePostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseDSN())
		if err != nil {
			return nil, fmt.Errorf("failed to connect word pool: %w", err)
		}
		s.closers = append(s.closers, pool.Close)
		curated = words.NewPostgresSource(pool)
	case clients.WordSourceFile:
		list, err := words.LoadFile(cfg.Words.File)
		if err != nil {
			return nil, err
		}
		log.Debug().Int("words", len(list.Words())).Msg("loaded word list")
		curated = list
	default:
		return nil, fmt.Errorf("word source %q cannot serve curated categories", cfg.Words.Curated)
	}

	return words.NewRouter(api, curated), nil
}
