package game

import (
	"context"
	"fmt"
	"time"

	"github.com/mcdev12/alias/go/internal/game/timer"
	"github.com/mcdev12/alias/go/internal/models"
	"github.com/rs/zerolog/log"
)

// WordSource draws a random word for the selected categories.
type WordSource interface {
	Fetch(ctx context.Context, categories []string) (models.Word, error)
}

// Syncer pushes local state to the room and can stop following it.
type Syncer interface {
	Publish(session models.Session)
	Detach()
}

// ResetPolicy decides what a full reset does with the room.
type ResetPolicy int

const (
	// KeepRoom clears gameplay state and leaves everybody in the room.
	KeepRoom ResetPolicy = iota
	// LeaveRoom also publishes the cleared state, stops following the room and
	// forgets the local room code, sending this client back to the lobby.
	LeaveRoom
)

// ParseResetPolicy maps a config value to a ResetPolicy.
func ParseResetPolicy(v string) (ResetPolicy, error) {
	switch v {
	case "", "keep_room":
		return KeepRoom, nil
	case "leave_room":
		return LeaveRoom, nil
	default:
		return KeepRoom, fmt.Errorf("unknown reset policy %q", v)
	}
}

func (p ResetPolicy) String() string {
	if p == LeaveRoom {
		return "leave_room"
	}
	return "keep_room"
}

// AppConfig holds the App settings.
type AppConfig struct {
	ResetPolicy  ResetPolicy
	FetchTimeout time.Duration
}

// DefaultAppConfig returns the default App settings.
func DefaultAppConfig() AppConfig {
	return AppConfig{
		ResetPolicy:  KeepRoom,
		FetchTimeout: 10 * time.Second,
	}
}

// App wires user actions to the store, the word source and replication. Every
// action that changes the session is followed by a fire-and-forget publish.
type App struct {
	store *Store
	words WordSource
	sync  Syncer
	cfg   AppConfig
}

// NewApp creates an App over store.
func NewApp(store *Store, words WordSource, sync Syncer, cfg AppConfig) *App {
	return &App{
		store: store,
		words: words,
		sync:  sync,
		cfg:   cfg,
	}
}

// Store returns the underlying store.
func (a *App) Store() *Store {
	return a.store
}

// StartRound draws the first word and starts the acting team's round. A failed
// draw leaves the round idle and is returned so the user can retry.
func (a *App) StartRound(ctx context.Context) (bool, error) {
	if a.store.Phase() != models.PhaseIdle || !a.store.IsMyTurn() {
		return false, nil
	}
	if err := a.draw(ctx); err != nil {
		return false, err
	}
	if !a.store.StartRound() {
		return false, nil
	}
	a.publish()
	return true, nil
}

// RecordOutcome records the word on the card as guessed or skipped. Outside
// overtime a new word is drawn before publishing.
func (a *App) RecordOutcome(ctx context.Context, isCorrect bool) (RecordResult, error) {
	res := a.store.RecordOutcome(isCorrect)
	switch res {
	case RecordTurnEnded:
		a.publish()
	case RecordNextWord:
		err := a.draw(ctx)
		a.publish()
		if err != nil {
			return res, err
		}
	}
	return res, nil
}

// DrawWord puts a fresh word on the card, for retrying after a failed draw.
func (a *App) DrawWord(ctx context.Context) error {
	if !a.store.IsMyTurn() {
		return nil
	}
	if err := a.draw(ctx); err != nil {
		return err
	}
	a.publish()
	return nil
}

// HandleExpiry moves the round into overtime and publishes it.
func (a *App) HandleExpiry() bool {
	if !a.store.Expire() {
		return false
	}
	a.publish()
	return true
}

// EndTurn passes the turn on without recording an outcome. Acting team only.
func (a *App) EndTurn() bool {
	return a.apply(a.store.AdvanceTurn())
}

// TogglePause pauses a running round or resumes a paused one.
func (a *App) TogglePause() bool {
	if a.store.Phase() == models.PhasePaused {
		return a.apply(a.store.Resume())
	}
	return a.apply(a.store.Pause())
}

// SetRoundDuration sets the next round's length in seconds.
func (a *App) SetRoundDuration(seconds int) bool {
	return a.apply(a.store.SetRoundDuration(seconds))
}

// ToggleCategory flips a category in the selection.
func (a *App) ToggleCategory(tag string) bool {
	return a.apply(a.store.ToggleCategory(tag))
}

// ClaimTeam claims a team slot for the local player.
func (a *App) ClaimTeam(name string) bool {
	return a.apply(a.store.ClaimTeam(name))
}

// NewRound starts a new game with the same teams.
func (a *App) NewRound() bool {
	return a.apply(a.store.NewRound())
}

// ResetAll clears the roster and applies the configured ResetPolicy.
func (a *App) ResetAll() bool {
	if !a.apply(a.store.ResetAll()) {
		return false
	}
	if a.cfg.ResetPolicy == LeaveRoom {
		code := a.store.RoomCode()
		a.sync.Detach()
		a.store.SetRoomCode("")
		log.Info().Str("room_code", code).Msg("left room after reset")
	}
	return true
}

// NewTicker returns a countdown ticker bound to this App's store and expiry handling.
func (a *App) NewTicker(interval time.Duration, onTick func(remaining int)) *timer.Ticker {
	return timer.NewTicker(a.store.clock, a.store, timer.Config{
		Interval: interval,
		OnTick:   onTick,
		OnExpire: a.HandleExpiry,
	})
}

func (a *App) apply(applied bool) bool {
	if applied {
		a.publish()
	}
	return applied
}

func (a *App) publish() {
	a.sync.Publish(a.store.Snapshot())
}

func (a *App) draw(ctx context.Context) error {
	snap := a.store.Snapshot()
	if a.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.FetchTimeout)
		defer cancel()
	}

	w, err := a.words.Fetch(ctx, snap.SelectedCategories)
	if err != nil {
		log.Error().
			Err(err).
			Str("room_code", snap.RoomCode).
			Strs("categories", snap.SelectedCategories).
			Msg("failed to fetch word")
		return fmt.Errorf("fetch word: %w", err)
	}
	if !a.store.SetWord(w) {
		log.Debug().Str("word", w.Word).Msg("drawn word discarded, card already filled or turn changed")
	}
	return nil
}
