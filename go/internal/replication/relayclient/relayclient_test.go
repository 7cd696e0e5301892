package relayclient

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mcdev12/alias/go/internal/models"
	"github.com/mcdev12/alias/go/internal/relay"
	"github.com/mcdev12/alias/go/internal/replication"
	"github.com/mcdev12/alias/go/internal/replication/memory"
	"github.com/prometheus/client_golang/prometheus"
)

func startRelay(t *testing.T) string {
	t.Helper()
	svc := relay.NewService(memory.New(), relay.DefaultConfig(), prometheus.NewRegistry())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		svc.Start(ctx)
	}()
	srv := httptest.NewServer(svc.Handler())
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})
	return srv.URL
}

func newClient(t *testing.T, url, playerID string) *Client {
	t.Helper()
	cfg := DefaultConfig()
	cfg.URL = url
	cfg.PlayerID = playerID
	c, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func encode(t *testing.T, s models.Session) []byte {
	t.Helper()
	blob, err := replication.Encode(s)
	if err != nil {
		t.Fatal(err)
	}
	return blob
}

func TestBackendContract(t *testing.T) {
	url := startRelay(t)
	p1 := newClient(t, url, "p1")
	ctx := context.Background()

	if _, err := p1.Get(ctx, "AB12"); !errors.Is(err, replication.ErrNotFound) {
		t.Fatalf("Get missing: %v", err)
	}

	s := models.NewSession()
	s.RoomCode = "AB12"
	v1, err := p1.Insert(ctx, "AB12", encode(t, s))
	if err != nil || v1 != 1 {
		t.Fatalf("Insert = %d, %v", v1, err)
	}
	if _, err := p1.Insert(ctx, "AB12", encode(t, s)); !errors.Is(err, replication.ErrRoomExists) {
		t.Fatalf("second Insert: %v", err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	ch, err := p1.Subscribe(subCtx, "AB12")
	if err != nil {
		t.Fatal(err)
	}
	first := receive(t, ch)
	if first.Version != v1 {
		t.Errorf("initial notification version = %d", first.Version)
	}

	s.Teams = []models.Team{{Name: "Red", PlayerID: "p1", History: []models.HistoryEntry{}}}
	v2, err := p1.Update(ctx, "AB12", encode(t, s), v1)
	if err != nil || v2 != 2 {
		t.Fatalf("Update = %d, %v", v2, err)
	}
	if _, err := p1.Update(ctx, "AB12", encode(t, s), v1); !errors.Is(err, replication.ErrVersionConflict) {
		t.Fatalf("stale Update: %v", err)
	}
	if n := receive(t, ch); n.Version != v2 {
		t.Errorf("pushed version = %d, want %d", n.Version, v2)
	}

	row, err := p1.Get(ctx, "AB12")
	if err != nil || row.Version != v2 {
		t.Fatalf("Get = %+v, %v", row, err)
	}

	cancel()
	for range ch {
	}
}

func TestForbiddenWriteIsReported(t *testing.T) {
	url := startRelay(t)
	p1 := newClient(t, url, "p1")
	p2 := newClient(t, url, "p2")
	ctx := context.Background()

	s := models.NewSession()
	s.RoomCode = "AB12"
	s.Teams = []models.Team{{Name: "Red", PlayerID: "p1", History: []models.HistoryEntry{}}}
	if _, err := p1.Insert(ctx, "AB12", encode(t, s)); err != nil {
		t.Fatal(err)
	}

	s.Teams[0].Name = "Stolen"
	if _, err := p2.Update(ctx, "AB12", encode(t, s), replication.AnyVersion); !errors.Is(err, relay.ErrForbidden) {
		t.Errorf("err = %v, want ErrForbidden", err)
	}
}

func TestSubscribeUnknownRoom(t *testing.T) {
	c := newClient(t, startRelay(t), "p1")
	if _, err := c.Subscribe(context.Background(), "ZZZZ"); !errors.Is(err, replication.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestNewRejectsBadURL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.URL = "ftp://relay"
	if _, err := New(cfg); err == nil {
		t.Error("expected error for ftp scheme")
	}
}

func receive(t *testing.T, ch <-chan replication.Notification) replication.Notification {
	t.Helper()
	select {
	case n, ok := <-ch:
		if !ok {
			t.Fatal("subscription closed")
		}
		return n
	case <-time.After(5 * time.Second):
		t.Fatal("no notification")
	}
	return replication.Notification{}
}
