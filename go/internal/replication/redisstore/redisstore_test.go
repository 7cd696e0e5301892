package redisstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/mcdev12/alias/go/internal/replication"
)

func TestParseMessage(t *testing.T) {
	n, err := parseMessage("AB12", `7:{"roomCode":"AB12","x":"a:b"}`)
	if err != nil {
		t.Fatal(err)
	}
	if n.Version != 7 || string(n.State) != `{"roomCode":"AB12","x":"a:b"}` || n.Code != "AB12" {
		t.Errorf("got %+v", n)
	}

	for _, bad := range []string{"no-separator", "x:{}"} {
		if _, err := parseMessage("AB12", bad); err == nil {
			t.Errorf("parseMessage(%q) succeeded", bad)
		}
	}
}

// TestStoreAgainstRedis needs a scratch server in ALIAS_TEST_REDIS_URL.
func TestStoreAgainstRedis(t *testing.T) {
	url := os.Getenv("ALIAS_TEST_REDIS_URL")
	if url == "" {
		t.Skip("ALIAS_TEST_REDIS_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg := DefaultConfig()
	cfg.URL = url
	cfg.KeyPrefix = fmt.Sprintf("alias:test:%d:", time.Now().UnixNano())
	cfg.TTL = time.Minute
	store, err := New(ctx, cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	if _, err := store.Get(ctx, "AB12"); !errors.Is(err, replication.ErrNotFound) {
		t.Fatalf("Get missing: %v", err)
	}
	if v, err := store.Insert(ctx, "AB12", []byte(`{}`)); err != nil || v != 1 {
		t.Fatalf("Insert = %d, %v", v, err)
	}
	if _, err := store.Insert(ctx, "AB12", []byte(`{}`)); !errors.Is(err, replication.ErrRoomExists) {
		t.Fatalf("second Insert: %v", err)
	}

	subCtx, subCancel := context.WithCancel(ctx)
	defer subCancel()
	ch, err := store.Subscribe(subCtx, "AB12")
	if err != nil {
		t.Fatal(err)
	}

	if v, err := store.Update(ctx, "AB12", []byte(`{"isPaused":true}`), 1); err != nil || v != 2 {
		t.Fatalf("Update = %d, %v", v, err)
	}
	if _, err := store.Update(ctx, "AB12", []byte(`{}`), 1); !errors.Is(err, replication.ErrVersionConflict) {
		t.Fatalf("stale Update: %v", err)
	}

	select {
	case n := <-ch:
		if n.Version != 2 || string(n.State) != `{"isPaused":true}` {
			t.Errorf("notification = %+v", n)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no notification")
	}

	row, err := store.Get(ctx, "AB12")
	if err != nil || row.Version != 2 {
		t.Errorf("Get = %+v, %v", row, err)
	}
}
