// Package relayclient is a replication.Backend that talks to a relay server
// over HTTP and receives room updates over a websocket.
package relayclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mcdev12/alias/go/clients"
	"github.com/mcdev12/alias/go/internal/relay"
	"github.com/mcdev12/alias/go/internal/replication"
	"github.com/rs/zerolog/log"
)

type Config struct {
	URL              string
	PlayerID         string
	RequestTimeout   time.Duration
	HandshakeTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		URL:              "http://localhost:8081",
		RequestTimeout:   10 * time.Second,
		HandshakeTimeout: 10 * time.Second,
	}
}

type Client struct {
	*clients.BaseClient
	wsBase string
	config Config
	dialer *websocket.Dialer
}

func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(cfg.URL, "/")
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid relay URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("unsupported relay URL scheme %q", u.Scheme)
	}

	bc := clients.NewBaseClient(base)
	bc.SetHeader("Content-Type", "application/json")
	if cfg.PlayerID != "" {
		bc.SetHeader(relay.PlayerHeader, cfg.PlayerID)
	}
	if cfg.RequestTimeout > 0 {
		bc.SetTimeout(cfg.RequestTimeout)
	}

	return &Client{
		BaseClient: bc,
		wsBase:     u.String(),
		config:     cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
	}, nil
}

func roomPath(code string) string {
	return "/api/rooms/" + url.PathEscape(code)
}

func (c *Client) Insert(ctx context.Context, code string, state []byte) (int64, error) {
	body, err := json.Marshal(relay.CreateRoomRequest{Code: code, State: state})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal request: %w", err)
	}
	resp, err := c.Post(ctx, "/api/rooms", bytes.NewReader(body))
	if err != nil {
		return 0, mapError("insert", code, err, replication.ErrRoomExists)
	}
	room, err := decodeRoom(resp)
	if err != nil {
		return 0, err
	}
	return room.Version, nil
}

func (c *Client) Get(ctx context.Context, code string) (replication.Row, error) {
	resp, err := c.BaseClient.Get(ctx, roomPath(code), nil)
	if err != nil {
		return replication.Row{}, mapError("get", code, err, nil)
	}
	room, err := decodeRoom(resp)
	if err != nil {
		return replication.Row{}, err
	}
	return replication.Row{Code: room.Code, State: room.State, Version: room.Version}, nil
}

func (c *Client) Update(ctx context.Context, code string, state []byte, expectedVersion int64) (int64, error) {
	req := relay.UpdateRoomRequest{State: state}
	if expectedVersion >= 0 {
		req.Version = &expectedVersion
	}
	body, err := json.Marshal(req)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal request: %w", err)
	}
	resp, err := c.Put(ctx, roomPath(code), bytes.NewReader(body))
	if err != nil {
		return 0, mapError("update", code, err, replication.ErrVersionConflict)
	}
	room, err := decodeRoom(resp)
	if err != nil {
		return 0, err
	}
	return room.Version, nil
}

// Subscribe opens a websocket for code. The relay sends the current row first,
// then every change. The channel closes when ctx ends or the socket drops.
func (c *Client) Subscribe(ctx context.Context, code string) (<-chan replication.Notification, error) {
	target := c.wsBase + "/ws/rooms/" + url.PathEscape(code)
	if c.config.PlayerID != "" {
		target += "?" + url.Values{"player_id": {c.config.PlayerID}}.Encode()
	}

	conn, resp, err := c.dialer.DialContext(ctx, target, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("subscribe %s: %w", code, replication.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to dial relay: %w", err)
	}

	out := make(chan replication.Notification, 16)
	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	go func() {
		defer close(out)
		defer conn.Close()
		for {
			var room relay.Room
			if err := conn.ReadJSON(&room); err != nil {
				if ctx.Err() == nil {
					log.Warn().Err(err).Str("room_code", code).Msg("relay subscription closed")
				}
				return
			}
			select {
			case out <- replication.Notification{Code: code, State: room.State, Version: room.Version}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func decodeRoom(body []byte) (relay.Room, error) {
	var room relay.Room
	if err := json.Unmarshal(body, &room); err != nil {
		return relay.Room{}, fmt.Errorf("failed to unmarshal room: %w", err)
	}
	return room, nil
}

// mapError turns relay status codes back into replication sentinels. conflict
// is the sentinel a 409 means for this operation.
func mapError(op, code string, err error, conflict error) error {
	var statusErr *clients.StatusError
	if !errors.As(err, &statusErr) {
		return fmt.Errorf("%s %s: %w", op, code, err)
	}
	switch {
	case statusErr.Code == http.StatusNotFound:
		return fmt.Errorf("%s %s: %w", op, code, replication.ErrNotFound)
	case statusErr.Code == http.StatusConflict && conflict != nil:
		return fmt.Errorf("%s %s: %w", op, code, conflict)
	case statusErr.Code == http.StatusForbidden:
		return fmt.Errorf("%s %s: %w", op, code, relay.ErrForbidden)
	default:
		return fmt.Errorf("%s %s: %w", op, code, err)
	}
}
