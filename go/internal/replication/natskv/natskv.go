// Package natskv is a replication.Backend on a JetStream key-value bucket. The
// key revision serves as the row version and watchers deliver change notifications.
package natskv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mcdev12/alias/go/internal/replication"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

type Config struct {
	URL           string
	Bucket        string
	KeyPrefix     string
	MaxReconnects int
	ReconnectWait time.Duration
	History       uint8         // Revisions kept per room
	TTL           time.Duration // Idle rooms expire after this long, 0 keeps them forever
	Replicas      int
}

func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		Bucket:        "ALIAS_LOBBIES",
		KeyPrefix:     "lobby.",
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
		History:       1,
		TTL:           24 * time.Hour,
		Replicas:      1,
	}
}

type Store struct {
	nc     *nats.Conn
	kv     jetstream.KeyValue
	config Config
}

func New(ctx context.Context, cfg Config) (*Store, error) {
	opts := []nats.Option{
		nats.Name("alias-lobbies"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	kv, err := ensureBucket(ctx, js, cfg)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure bucket: %w", err)
	}

	return &Store{nc: nc, kv: kv, config: cfg}, nil
}

func ensureBucket(ctx context.Context, js jetstream.JetStream, cfg Config) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, cfg.Bucket)
	if err == nil {
		return kv, nil
	}
	if !errors.Is(err, jetstream.ErrBucketNotFound) {
		return nil, fmt.Errorf("lookup bucket: %w", err)
	}

	kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      cfg.Bucket,
		Description: "Alias room state",
		History:     cfg.History,
		TTL:         cfg.TTL,
		Storage:     jetstream.FileStorage,
		Replicas:    cfg.Replicas,
	})
	if err != nil {
		return nil, fmt.Errorf("create bucket: %w", err)
	}
	log.Info().Str("bucket", cfg.Bucket).Msg("created JetStream key-value bucket")
	return kv, nil
}

func (s *Store) Close() {
	s.nc.Close()
}

func (s *Store) key(code string) string {
	return s.config.KeyPrefix + code
}

func (s *Store) Insert(ctx context.Context, code string, state []byte) (int64, error) {
	rev, err := s.kv.Create(ctx, s.key(code), state)
	if errors.Is(err, jetstream.ErrKeyExists) {
		return 0, fmt.Errorf("insert %s: %w", code, replication.ErrRoomExists)
	}
	if err != nil {
		return 0, fmt.Errorf("create key: %w", err)
	}
	return int64(rev), nil
}

func (s *Store) Get(ctx context.Context, code string) (replication.Row, error) {
	entry, err := s.kv.Get(ctx, s.key(code))
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return replication.Row{}, fmt.Errorf("get %s: %w", code, replication.ErrNotFound)
	}
	if err != nil {
		return replication.Row{}, fmt.Errorf("get key: %w", err)
	}
	return replication.Row{Code: code, State: entry.Value(), Version: int64(entry.Revision())}, nil
}

func (s *Store) Update(ctx context.Context, code string, state []byte, expectedVersion int64) (int64, error) {
	if expectedVersion < 0 {
		// Put would silently create a missing room.
		if _, err := s.Get(ctx, code); err != nil {
			return 0, err
		}
		rev, err := s.kv.Put(ctx, s.key(code), state)
		if err != nil {
			return 0, fmt.Errorf("put key: %w", err)
		}
		return int64(rev), nil
	}

	rev, err := s.kv.Update(ctx, s.key(code), state, uint64(expectedVersion))
	if err == nil {
		return int64(rev), nil
	}

	var apiErr *jetstream.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence {
		row, getErr := s.Get(ctx, code)
		if getErr != nil {
			return 0, getErr
		}
		return 0, fmt.Errorf("update %s at version %d (stored %d): %w",
			code, expectedVersion, row.Version, replication.ErrVersionConflict)
	}
	return 0, fmt.Errorf("update key: %w", err)
}

func (s *Store) Subscribe(ctx context.Context, code string) (<-chan replication.Notification, error) {
	w, err := s.kv.Watch(ctx, s.key(code), jetstream.UpdatesOnly())
	if err != nil {
		return nil, fmt.Errorf("watch key: %w", err)
	}

	out := make(chan replication.Notification, 16)
	go func() {
		defer close(out)
		defer w.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case entry, ok := <-w.Updates():
				if !ok {
					return
				}
				if entry == nil || entry.Operation() != jetstream.KeyValuePut {
					continue
				}
				n := replication.Notification{Code: code, State: entry.Value(), Version: int64(entry.Revision())}
				select {
				case out <- n:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if !s.nc.IsConnected() {
		return fmt.Errorf("NATS %s", s.nc.Status())
	}
	return s.nc.FlushWithContext(ctx)
}
