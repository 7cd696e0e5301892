// Package pgstore is a replication.Backend on a Postgres lobbies table with
// LISTEN/NOTIFY change notification.
package pgstore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/mcdev12/alias/go/internal/replication"
	"github.com/mcdev12/alias/go/internal/sqlutil"
	"github.com/rs/zerolog/log"
	"github.com/sqlc-dev/pqtype"
)

//go:embed schema.sql
var schema string

// Migrate creates the lobbies table, its notify trigger and the words table.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

type Config struct {
	DatabaseURL      string        // Postgres DSN for LISTEN/NOTIFY
	NotifyChannel    string        // Channel the lobbies trigger notifies on
	FallbackInterval time.Duration // How often subscribed rooms are re-read in case a notification was missed
	PingInterval     time.Duration
	MinReconnect     time.Duration
	MaxReconnect     time.Duration
}

func DefaultConfig() Config {
	return Config{
		DatabaseURL:      "",
		NotifyChannel:    "lobby_updates",
		FallbackInterval: 30 * time.Second,
		PingInterval:     90 * time.Second,
		MinReconnect:     10 * time.Second,
		MaxReconnect:     time.Minute,
	}
}

// Store implements replication.Backend. One pq.Listener serves every subscribed
// room; Start must be running for subscribers to receive updates.
type Store struct {
	db       *sql.DB
	listener *pq.Listener
	cfg      Config

	mu   sync.Mutex
	subs map[string]map[chan replication.Notification]struct{}
}

func New(db *sql.DB, cfg Config) (*Store, error) {
	l := pq.NewListener(
		cfg.DatabaseURL,
		cfg.MinReconnect,
		cfg.MaxReconnect,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Msg("listener event")
			}
		},
	)
	if err := l.Listen(cfg.NotifyChannel); err != nil {
		return nil, fmt.Errorf("failed to listen to channel: %w", err)
	}

	log.Info().
		Str("channel", cfg.NotifyChannel).
		Msg("listening for lobby notifications")

	return &Store{
		db:       db,
		listener: l,
		cfg:      cfg,
		subs:     make(map[string]map[chan replication.Notification]struct{}),
	}, nil
}

func (s *Store) Insert(ctx context.Context, code string, state []byte) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO lobbies (code, game_state, version)
		VALUES ($1, $2::jsonb, 1)
		ON CONFLICT (code) DO NOTHING
	`, code, sqlutil.ToNullRawMessage(state))
	if err != nil {
		return 0, fmt.Errorf("failed to insert lobby: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to insert lobby: %w", err)
	}
	if n == 0 {
		return 0, fmt.Errorf("insert %s: %w", code, replication.ErrRoomExists)
	}
	return 1, nil
}

func (s *Store) Get(ctx context.Context, code string) (replication.Row, error) {
	return getRow(ctx, s.db, code)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getRow(ctx context.Context, q queryer, code string) (replication.Row, error) {
	var (
		state   pqtype.NullRawMessage
		version int64
	)
	err := q.QueryRowContext(ctx,
		`SELECT game_state, version FROM lobbies WHERE code = $1`, code,
	).Scan(&state, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return replication.Row{}, fmt.Errorf("get %s: %w", code, replication.ErrNotFound)
	}
	if err != nil {
		return replication.Row{}, fmt.Errorf("failed to fetch lobby: %w", err)
	}
	return replication.Row{
		Code:    code,
		State:   sqlutil.FromNullRawMessage(state, []byte(`{}`)),
		Version: version,
	}, nil
}

func (s *Store) Update(ctx context.Context, code string, state []byte, expectedVersion int64) (int64, error) {
	var version int64
	err := sqlutil.Run(ctx, s.db, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			UPDATE lobbies
			SET game_state = $2::jsonb, version = version + 1, updated_at = NOW()
			WHERE code = $1 AND ($3::bigint < 0 OR version = $3::bigint)
			RETURNING version
		`, code, sqlutil.ToNullRawMessage(state), expectedVersion).Scan(&version)
		if err == nil {
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to update lobby: %w", err)
		}

		// Nothing matched: either the room is gone or someone else wrote first.
		row, getErr := getRow(ctx, tx, code)
		if getErr != nil {
			return getErr
		}
		return fmt.Errorf("update %s at version %d (stored %d): %w",
			code, expectedVersion, row.Version, replication.ErrVersionConflict)
	})
	if err != nil {
		return 0, err
	}
	return version, nil
}

func (s *Store) Subscribe(ctx context.Context, code string) (<-chan replication.Notification, error) {
	ch := make(chan replication.Notification, 16)

	s.mu.Lock()
	if s.subs[code] == nil {
		s.subs[code] = make(map[chan replication.Notification]struct{})
	}
	s.subs[code][ch] = struct{}{}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs[code], ch)
		if len(s.subs[code]) == 0 {
			delete(s.subs, code)
		}
		close(ch)
		s.mu.Unlock()
	}()
	return ch, nil
}

// Start dispatches notifications to subscribers until ctx is cancelled.
func (s *Store) Start(ctx context.Context) error {
	log.Info().
		Str("channel", s.cfg.NotifyChannel).
		Dur("ping_interval", s.cfg.PingInterval).
		Dur("fallback_interval", s.cfg.FallbackInterval).
		Msg("lobby listener started")

	pingTicker := time.NewTicker(s.cfg.PingInterval)
	fallbackTicker := time.NewTicker(s.cfg.FallbackInterval)
	defer pingTicker.Stop()
	defer fallbackTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("lobby listener shutting down")
			return s.Stop()
		case note := <-s.listener.Notify:
			if note == nil {
				// nil notification means the connection was re-established and
				// anything sent meanwhile is lost, so re-read every room
				s.refreshAll(ctx)
				continue
			}
			if err := s.handleNotification(ctx, note.Extra); err != nil {
				log.Error().Err(err).Msg("failed to handle notification")
			}
		case <-fallbackTicker.C:
			s.refreshAll(ctx)
		case <-pingTicker.C:
			if err := s.listener.Ping(); err != nil {
				log.Error().Err(err).Msg("failed to ping listener")
			}
		}
	}
}

func (s *Store) Stop() error {
	return s.listener.Close()
}

// handleNotification handles a pg notification whose payload is "code:version".
// The row is read back because NOTIFY payloads are size limited.
func (s *Store) handleNotification(ctx context.Context, extra string) error {
	code, version, err := parsePayload(extra)
	if err != nil {
		return err
	}
	if !s.hasSubscribers(code) {
		return nil
	}

	row, err := s.Get(ctx, code)
	if err != nil {
		return err
	}
	if row.Version < version {
		log.Warn().
			Str("room_code", code).
			Int64("notified", version).
			Int64("read", row.Version).
			Msg("read an older version than notified")
	}
	s.dispatch(row)
	return nil
}

func (s *Store) refreshAll(ctx context.Context) {
	s.mu.Lock()
	codes := make([]string, 0, len(s.subs))
	for code := range s.subs {
		codes = append(codes, code)
	}
	s.mu.Unlock()

	for _, code := range codes {
		row, err := s.Get(ctx, code)
		if err != nil {
			log.Error().Err(err).Str("room_code", code).Msg("failed to refresh lobby")
			continue
		}
		s.dispatch(row)
	}
}

func (s *Store) hasSubscribers(code string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs[code]) > 0
}

func (s *Store) dispatch(row replication.Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subs[row.Code] {
		select {
		case ch <- replication.Notification{Code: row.Code, State: row.State, Version: row.Version}:
		default:
			log.Warn().Str("room_code", row.Code).Msg("subscriber buffer full, dropping notification")
		}
	}
}

func parsePayload(extra string) (string, int64, error) {
	i := strings.LastIndexByte(extra, ':')
	if i <= 0 {
		return "", 0, fmt.Errorf("invalid notification payload %q", extra)
	}
	version, err := strconv.ParseInt(extra[i+1:], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("invalid version in notification %q: %w", extra, err)
	}
	return extra[:i], version, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}
