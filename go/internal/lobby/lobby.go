// Package lobby creates, joins and leaves rooms.
package lobby

import (
	"context"
	"errors"
	"fmt"

	"github.com/mcdev12/alias/go/internal/game"
	"github.com/mcdev12/alias/go/internal/identity"
	"github.com/mcdev12/alias/go/internal/models"
	"github.com/mcdev12/alias/go/internal/replication"
	"github.com/rs/zerolog/log"
)

var (
	// ErrInvalidCode is returned by Join for codes that are not four letters or digits.
	ErrInvalidCode = errors.New("invalid room code")

	// ErrRoomFull is returned by Claim when both team slots are taken.
	ErrRoomFull = errors.New("room already has two teams")

	// ErrNotInRoom is returned by Claim and Leave outside a room.
	ErrNotInRoom = errors.New("not in a room")
)

// Follower tracks one room's remote changes. replication.Replicator implements it.
type Follower interface {
	Attach(ctx context.Context, code string, version int64) error
	Detach()
}

// Config controls room creation.
type Config struct {
	CreateAttempts int
	NewCode        func() (string, error)
}

// DefaultConfig returns five creation attempts with random room codes.
func DefaultConfig() Config {
	return Config{
		CreateAttempts: 5,
		NewCode:        identity.NewRoomCode,
	}
}

// Lobby moves a client's game.App between rooms. Creating or joining a room
// adopts its stored state and hands the room to the Follower; state changes
// after that flow through the App.
type Lobby struct {
	backend  replication.Backend
	app      *game.App
	follower Follower
	cfg      Config
}

// New creates a Lobby over backend.
func New(backend replication.Backend, app *game.App, follower Follower, cfg Config) *Lobby {
	if cfg.CreateAttempts <= 0 {
		cfg.CreateAttempts = DefaultConfig().CreateAttempts
	}
	if cfg.NewCode == nil {
		cfg.NewCode = identity.NewRoomCode
	}
	return &Lobby{backend: backend, app: app, follower: follower, cfg: cfg}
}

// Create inserts a fresh room under a new code and joins it. Code collisions
// are retried up to CreateAttempts times.
func (l *Lobby) Create(ctx context.Context) (string, error) {
	for attempt := 1; attempt <= l.cfg.CreateAttempts; attempt++ {
		code, err := l.cfg.NewCode()
		if err != nil {
			return "", err
		}

		initial := models.NewSession()
		initial.RoomCode = code
		blob, err := replication.Encode(initial)
		if err != nil {
			return "", fmt.Errorf("encode initial state: %w", err)
		}

		version, err := l.backend.Insert(ctx, code, blob)
		if errors.Is(err, replication.ErrRoomExists) {
			log.Debug().Str("room_code", code).Int("attempt", attempt).Msg("room code taken, retrying")
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create room: %w", err)
		}

		if err := l.enter(ctx, code, initial, version); err != nil {
			return "", err
		}
		log.Info().Str("room_code", code).Msg("created room")
		return code, nil
	}
	return "", fmt.Errorf("create room after %d attempts: %w", l.cfg.CreateAttempts, replication.ErrRoomExists)
}

// Join adopts the stored state of room code and follows it.
func (l *Lobby) Join(ctx context.Context, code string) error {
	code = identity.NormalizeRoomCode(code)
	if !identity.ValidRoomCode(code) {
		return fmt.Errorf("join %q: %w", code, ErrInvalidCode)
	}

	row, err := l.backend.Get(ctx, code)
	if err != nil {
		return fmt.Errorf("join room: %w", err)
	}
	remote, err := replication.Decode(row.State)
	if err != nil {
		return fmt.Errorf("decode room state: %w", err)
	}

	if err := l.enter(ctx, code, remote, row.Version); err != nil {
		return err
	}
	log.Info().Str("room_code", code).Int64("version", row.Version).Msg("joined room")
	return nil
}

// Leave stops following the current room and clears the local code. The stored
// room is left as is for the other players.
func (l *Lobby) Leave() error {
	store := l.app.Store()
	code := store.RoomCode()
	if code == "" {
		return ErrNotInRoom
	}
	l.follower.Detach()
	store.SetRoomCode("")
	log.Info().Str("room_code", code).Msg("left room")
	return nil
}

// Claim takes a team slot in the current room.
func (l *Lobby) Claim(name string) error {
	store := l.app.Store()
	if store.RoomCode() == "" {
		return ErrNotInRoom
	}
	if l.app.ClaimTeam(name) {
		return nil
	}
	snap := store.Snapshot()
	switch {
	case snap.TeamOf(store.PlayerID()) >= 0:
		return fmt.Errorf("already on team %q", snap.Teams[snap.TeamOf(store.PlayerID())].Name)
	case len(snap.Teams) >= models.MaxTeams:
		return ErrRoomFull
	default:
		return fmt.Errorf("invalid team name %q", name)
	}
}

func (l *Lobby) enter(ctx context.Context, code string, state models.Session, version int64) error {
	store := l.app.Store()
	l.follower.Detach()
	store.SetRoomCode(code)
	store.Adopt(state)
	if err := l.follower.Attach(ctx, code, version); err != nil {
		store.SetRoomCode("")
		return fmt.Errorf("follow room %s: %w", code, err)
	}
	return nil
}
