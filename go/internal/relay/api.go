// Package relay is a hosted realtime relay for rooms. It serves room rows over
// HTTP, pushes changes to websocket subscribers and checks write authority.
package relay

import "encoding/json"

// PlayerHeader carries the writer's player id on updates.
const PlayerHeader = "X-Player-ID"

// Room is the JSON form of a stored room, used in responses and websocket pushes.
type Room struct {
	Code    string          `json:"code"`
	State   json.RawMessage `json:"state"`
	Version int64           `json:"version"`
}

type CreateRoomRequest struct {
	Code  string          `json:"code"`
	State json.RawMessage `json:"state"`
}

// UpdateRoomRequest replaces a room's state. A nil Version writes
// unconditionally.
type UpdateRoomRequest struct {
	State   json.RawMessage `json:"state"`
	Version *int64          `json:"version,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type statsResponse struct {
	TotalConnections int            `json:"total_connections"`
	ActiveRooms      int            `json:"active_rooms"`
	RoomConnections  map[string]int `json:"room_connections"`
}
