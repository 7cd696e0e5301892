package timer

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/alias/go/internal/models"
)

func ms(v int64) *int64 { return &v }

func TestRemaining(t *testing.T) {
	now := time.UnixMilli(1_000_000)

	tests := []struct {
		name string
		s    models.Session
		want int
	}{
		{
			name: "not started shows configured duration",
			s:    models.Session{RoundDuration: 90},
			want: 90,
		},
		{
			name: "paused rounds up captured time",
			s:    models.Session{IsGameStarted: true, IsPaused: true, TimeLeftOnPause: ms(12_001)},
			want: 13,
		},
		{
			name: "paused exact second",
			s:    models.Session{IsGameStarted: true, IsPaused: true, TimeLeftOnPause: ms(12_000)},
			want: 12,
		},
		{
			name: "no end time",
			s:    models.Session{IsGameStarted: true},
			want: 0,
		},
		{
			name: "running rounds up",
			s:    models.Session{IsGameStarted: true, RoundEndTime: ms(1_000_000 + 500)},
			want: 1,
		},
		{
			name: "exactly at end",
			s:    models.Session{IsGameStarted: true, RoundEndTime: ms(1_000_000)},
			want: 0,
		},
		{
			name: "past end never negative",
			s:    models.Session{IsGameStarted: true, IsOvertime: true, RoundEndTime: ms(900_000)},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Remaining(tt.s, now); got != tt.want {
				t.Errorf("Remaining() = %d, want %d", got, tt.want)
			}
		})
	}
}

type stubSource struct {
	session models.Session
	myTurn  bool
}

func (s *stubSource) Snapshot() models.Session { return s.session.Clone() }
func (s *stubSource) IsMyTurn() bool           { return s.myTurn }

func TestTickerExpiresOnlyForActingClient(t *testing.T) {
	fc := clockwork.NewFakeClockAt(time.UnixMilli(0))
	src := &stubSource{session: models.Session{IsGameStarted: true, RoundEndTime: ms(1_000)}}

	expired := 0
	var shown []int
	tk := NewTicker(fc, src, Config{
		OnTick:   func(r int) { shown = append(shown, r) },
		OnExpire: func() bool { expired++; return true },
	})

	tk.Tick()
	fc.Advance(time.Second)
	tk.Tick()
	if expired != 0 {
		t.Fatalf("expired %d times for a waiting client", expired)
	}

	src.myTurn = true
	tk.Tick()
	if expired != 1 {
		t.Fatalf("expired %d times, want 1", expired)
	}
	if len(shown) != 3 || shown[0] != 1 || shown[2] != 0 {
		t.Errorf("displayed %v, want [1 0 0]", shown)
	}
}

func TestTickerFollowsMergedEndTime(t *testing.T) {
	fc := clockwork.NewFakeClockAt(time.UnixMilli(0))
	src := &stubSource{session: models.Session{IsGameStarted: true, RoundEndTime: ms(10_000)}}
	tk := NewTicker(fc, src, DefaultConfig())

	if got := tk.Tick(); got != 10 {
		t.Fatalf("got %d, want 10", got)
	}
	src.session.RoundEndTime = ms(30_000)
	if got := tk.Tick(); got != 30 {
		t.Errorf("after merge got %d, want 30", got)
	}
}

func TestTickerRunStopsOnCancel(t *testing.T) {
	fc := clockwork.NewFakeClockAt(time.UnixMilli(0))
	src := &stubSource{session: models.Session{RoundDuration: 60}}
	ticks := make(chan int, 8)
	tk := NewTicker(fc, src, Config{
		Interval: 500 * time.Millisecond,
		OnTick:   func(r int) { ticks <- r },
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		tk.Run(ctx)
		close(done)
	}()

	if err := fc.BlockUntilContext(ctx, 1); err != nil {
		t.Fatal(err)
	}
	fc.Advance(500 * time.Millisecond)
	select {
	case r := <-ticks:
		if r != 60 {
			t.Errorf("got %d, want 60", r)
		}
	case <-time.After(time.Second):
		t.Fatal("ticker did not fire")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
