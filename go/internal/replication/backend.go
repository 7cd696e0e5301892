package replication

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no row exists for a room code.
	ErrNotFound = errors.New("room not found")
	// ErrRoomExists is returned by Insert when the code is already taken.
	ErrRoomExists = errors.New("room already exists")
	// ErrVersionConflict is returned by a conditional Update whose expected
	// version no longer matches the stored one.
	ErrVersionConflict = errors.New("room version conflict")
)

// AnyVersion makes Update unconditional (last write wins).
const AnyVersion int64 = -1

// Row is one room as stored by a backend.
type Row struct {
	Code    string
	State   []byte
	Version int64
}

// Notification is pushed to subscribers after every successful write.
type Notification struct {
	Code    string
	State   []byte
	Version int64
}

// Backend is a keyed row store with change notification. Every write bumps the
// row's version; versions only grow.
type Backend interface {
	// Insert creates a row and returns its first version.
	Insert(ctx context.Context, code string, state []byte) (int64, error)
	// Get returns the row stored under code.
	Get(ctx context.Context, code string) (Row, error)
	// Update replaces the state. With expectedVersion >= 0 the write only
	// succeeds if the stored version matches, otherwise ErrVersionConflict.
	Update(ctx context.Context, code string, state []byte, expectedVersion int64) (int64, error)
	// Subscribe streams updates for code until ctx is cancelled, then closes
	// the channel.
	Subscribe(ctx context.Context, code string) (<-chan Notification, error)
}

// ConflictPolicy selects how published writes are made.
type ConflictPolicy int

const (
	// Optimistic writes only on top of the last seen version. A conflict makes
	// the client refetch and merge the winning state; the local write is dropped.
	Optimistic ConflictPolicy = iota
	// LastWriteWins writes unconditionally.
	LastWriteWins
)

// ParseConflictPolicy maps a config value to a ConflictPolicy.
func ParseConflictPolicy(v string) (ConflictPolicy, error) {
	switch v {
	case "", "optimistic":
		return Optimistic, nil
	case "last_write_wins", "lww":
		return LastWriteWins, nil
	default:
		return Optimistic, fmt.Errorf("unknown conflict policy %q", v)
	}
}

func (p ConflictPolicy) String() string {
	if p == LastWriteWins {
		return "last_write_wins"
	}
	return "optimistic"
}
