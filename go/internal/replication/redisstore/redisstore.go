// Package redisstore is a replication.Backend on Redis hashes. Writes run as Lua
// scripts so the version check, the write and the pub/sub notification are atomic.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mcdev12/alias/go/internal/replication"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

var createScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return -1
end
redis.call('HSET', KEYS[1], 'state', ARGV[1], 'version', 1)
if tonumber(ARGV[2]) > 0 then
	redis.call('EXPIRE', KEYS[1], ARGV[2])
end
return 1
`)

var updateScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'version')
if not cur then
	return -1
end
local expected = tonumber(ARGV[2])
if expected >= 0 and tonumber(cur) ~= expected then
	return -2
end
local v = tonumber(cur) + 1
redis.call('HSET', KEYS[1], 'state', ARGV[1], 'version', v)
if tonumber(ARGV[3]) > 0 then
	redis.call('EXPIRE', KEYS[1], ARGV[3])
end
redis.call('PUBLISH', KEYS[2], v .. ':' .. ARGV[1])
return v
`)

type Config struct {
	URL       string
	KeyPrefix string
	TTL       time.Duration // Rooms expire after this long without writes, 0 keeps them
}

func DefaultConfig() Config {
	return Config{
		URL:       "redis://localhost:6379/0",
		KeyPrefix: "alias:lobby:",
		TTL:       24 * time.Hour,
	}
}

type Store struct {
	client *redis.Client
	cfg    Config
}

func New(ctx context.Context, cfg Config) (*Store, error) {
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	// Test connection
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Info().Str("addr", opt.Addr).Msg("connected to redis")
	return &Store{client: client, cfg: cfg}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) key(code string) string {
	return s.cfg.KeyPrefix + code
}

func (s *Store) channel(code string) string {
	return s.cfg.KeyPrefix + code + ":updates"
}

func (s *Store) ttlSeconds() int64 {
	return int64(s.cfg.TTL / time.Second)
}

func (s *Store) Insert(ctx context.Context, code string, state []byte) (int64, error) {
	res, err := createScript.Run(ctx, s.client, []string{s.key(code)}, state, s.ttlSeconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("failed to create room: %w", err)
	}
	if res < 0 {
		return 0, fmt.Errorf("insert %s: %w", code, replication.ErrRoomExists)
	}
	return res, nil
}

func (s *Store) Get(ctx context.Context, code string) (replication.Row, error) {
	vals, err := s.client.HMGet(ctx, s.key(code), "state", "version").Result()
	if err != nil {
		return replication.Row{}, fmt.Errorf("failed to read room: %w", err)
	}
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return replication.Row{}, fmt.Errorf("get %s: %w", code, replication.ErrNotFound)
	}

	state, _ := vals[0].(string)
	versionStr, _ := vals[1].(string)
	version, err := strconv.ParseInt(versionStr, 10, 64)
	if err != nil {
		return replication.Row{}, fmt.Errorf("invalid version for %s: %w", code, err)
	}
	return replication.Row{Code: code, State: []byte(state), Version: version}, nil
}

func (s *Store) Update(ctx context.Context, code string, state []byte, expectedVersion int64) (int64, error) {
	res, err := updateScript.Run(ctx, s.client,
		[]string{s.key(code), s.channel(code)},
		state, expectedVersion, s.ttlSeconds(),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("failed to update room: %w", err)
	}
	switch res {
	case -1:
		return 0, fmt.Errorf("update %s: %w", code, replication.ErrNotFound)
	case -2:
		return 0, fmt.Errorf("update %s at version %d: %w", code, expectedVersion, replication.ErrVersionConflict)
	}
	return res, nil
}

func (s *Store) Subscribe(ctx context.Context, code string) (<-chan replication.Notification, error) {
	sub := s.client.Subscribe(ctx, s.channel(code))
	// Wait for the subscription to be confirmed so no write is missed after Attach.
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	out := make(chan replication.Notification, 16)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				n, err := parseMessage(code, msg.Payload)
				if err != nil {
					log.Error().Err(err).Str("room_code", code).Msg("invalid room update message")
					continue
				}
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

// parseMessage splits a "version:state" pub/sub payload.
func parseMessage(code, payload string) (replication.Notification, error) {
	versionStr, state, ok := strings.Cut(payload, ":")
	if !ok {
		return replication.Notification{}, errors.New("missing version separator")
	}
	version, err := strconv.ParseInt(versionStr, 10, 64)
	if err != nil {
		return replication.Notification{}, fmt.Errorf("invalid version: %w", err)
	}
	return replication.Notification{Code: code, State: []byte(state), Version: version}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
