// Package memory is an in-process replication.Backend for tests and hot-seat play.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/mcdev12/alias/go/internal/replication"
	"github.com/rs/zerolog/log"
)

const subscriberBuffer = 64

type row struct {
	state   []byte
	version int64
}

// Backend keeps rooms in a map and fans out writes to subscriber channels.
type Backend struct {
	mu   sync.Mutex
	rows map[string]row
	subs map[string]map[chan replication.Notification]struct{}
}

// New returns an empty backend.
func New() *Backend {
	return &Backend{
		rows: make(map[string]row),
		subs: make(map[string]map[chan replication.Notification]struct{}),
	}
}

func (b *Backend) Insert(_ context.Context, code string, state []byte) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.rows[code]; ok {
		return 0, fmt.Errorf("insert %s: %w", code, replication.ErrRoomExists)
	}
	b.rows[code] = row{state: clone(state), version: 1}
	return 1, nil
}

func (b *Backend) Get(_ context.Context, code string) (replication.Row, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.rows[code]
	if !ok {
		return replication.Row{}, fmt.Errorf("get %s: %w", code, replication.ErrNotFound)
	}
	return replication.Row{Code: code, State: clone(r.state), Version: r.version}, nil
}

func (b *Backend) Update(_ context.Context, code string, state []byte, expectedVersion int64) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.rows[code]
	if !ok {
		return 0, fmt.Errorf("update %s: %w", code, replication.ErrNotFound)
	}
	if expectedVersion >= 0 && r.version != expectedVersion {
		return 0, fmt.Errorf("update %s at version %d (stored %d): %w",
			code, expectedVersion, r.version, replication.ErrVersionConflict)
	}
	r = row{state: clone(state), version: r.version + 1}
	b.rows[code] = r

	for ch := range b.subs[code] {
		select {
		case ch <- replication.Notification{Code: code, State: clone(r.state), Version: r.version}:
		default:
			log.Warn().Str("room_code", code).Msg("subscriber buffer full, dropping notification")
		}
	}
	return r.version, nil
}

func (b *Backend) Subscribe(ctx context.Context, code string) (<-chan replication.Notification, error) {
	ch := make(chan replication.Notification, subscriberBuffer)

	b.mu.Lock()
	if b.subs[code] == nil {
		b.subs[code] = make(map[chan replication.Notification]struct{})
	}
	b.subs[code][ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs[code], ch)
		if len(b.subs[code]) == 0 {
			delete(b.subs, code)
		}
		close(ch)
		b.mu.Unlock()
	}()
	return ch, nil
}

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}
