package timer

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/alias/go/internal/models"
	"github.com/rs/zerolog/log"
)

// DefaultTickInterval is how often the countdown is re-derived while a round runs.
const DefaultTickInterval = 500 * time.Millisecond

// Remaining returns the whole seconds left in the round described by s at now.
// The value is derived only from the stored timestamps, so a merged end time from
// another client takes effect on the next call.
func Remaining(s models.Session, now time.Time) int {
	if !s.IsGameStarted {
		return s.RoundDuration
	}
	if s.IsPaused && s.TimeLeftOnPause != nil {
		return ceilSeconds(*s.TimeLeftOnPause)
	}
	if s.RoundEndTime == nil {
		return 0
	}
	return ceilSeconds(*s.RoundEndTime - now.UnixMilli())
}

// ceilSeconds rounds up so the display reaches 0 only at the end timestamp.
func ceilSeconds(ms int64) int {
	if ms <= 0 {
		return 0
	}
	return int((ms + 999) / 1000)
}

// Source is the state the ticker reads on every tick.
type Source interface {
	Snapshot() models.Session
	IsMyTurn() bool
}

// Config holds the ticker callbacks.
type Config struct {
	Interval time.Duration
	// OnTick receives the display value on every tick.
	OnTick func(remaining int)
	// OnExpire is called when the acting client's round reaches zero. It reports
	// whether the expiry was applied.
	OnExpire func() bool
}

// DefaultConfig returns a config ticking every DefaultTickInterval with no callbacks.
func DefaultConfig() Config {
	return Config{Interval: DefaultTickInterval}
}

// Ticker drives the countdown display and expiry detection. It keeps no
// countdown of its own.
type Ticker struct {
	clock  clockwork.Clock
	source Source
	cfg    Config
}

// NewTicker creates a ticker over source.
func NewTicker(clock clockwork.Clock, source Source, cfg Config) *Ticker {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultTickInterval
	}
	return &Ticker{clock: clock, source: source, cfg: cfg}
}

// Tick evaluates the countdown once and returns the display value.
func (t *Ticker) Tick() int {
	s := t.source.Snapshot()
	remaining := Remaining(s, t.clock.Now())
	if t.cfg.OnTick != nil {
		t.cfg.OnTick(remaining)
	}

	if remaining == 0 && s.Phase() == models.PhaseRunning && s.RoundEndTime != nil && t.source.IsMyTurn() {
		if t.cfg.OnExpire != nil && t.cfg.OnExpire() {
			log.Debug().
				Str("room_code", s.RoomCode).
				Int64("round_end_time", *s.RoundEndTime).
				Msg("round expired, entering overtime")
		}
	}
	return remaining
}

// Run ticks until ctx is cancelled.
func (t *Ticker) Run(ctx context.Context) {
	ticker := t.clock.NewTicker(t.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			t.Tick()
		}
	}
}
