package replication

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/mcdev12/alias/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Encode serializes the full session as stored in the room row. Local identity
// is not part of models.Session, so nothing needs pruning.
func Encode(s models.Session) ([]byte, error) {
	s = s.Clone()
	s.Normalize()
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}
	return b, nil
}

// Decode reads a stored blob into a full session, starting from the room
// defaults for anything missing or malformed.
func Decode(blob []byte) (models.Session, error) {
	p, err := DecodePatch(blob)
	if err != nil {
		return models.Session{}, err
	}
	s := models.NewSession()
	p.Apply(&s)
	if code, ok := decodeRoomCode(blob); ok {
		s.RoomCode = code
	}
	s.Normalize()
	return s, nil
}

// DecodePatch reads a remote blob field by field. A field that is absent or does
// not decode is left unset so the merge keeps the local value; an explicit null
// clears the nullable fields. roomCode and myPlayerId are ignored.
func DecodePatch(blob []byte) (models.SessionPatch, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(blob, &raw); err != nil {
		return models.SessionPatch{}, fmt.Errorf("decode session: %w", err)
	}

	var p models.SessionPatch
	p.Teams = field(raw, "teams", validTeams)
	p.CurrentTeamIndex = field(raw, "currentTeamIndex", func(v int) bool { return v >= 0 })
	p.IsGameStarted = field[bool](raw, "isGameStarted", nil)
	p.IsOvertime = field[bool](raw, "isOvertime", nil)
	p.CurrentWord = nullable(raw, "currentWord", func(w models.Word) bool { return w.Word != "" })
	p.RoundEndTime = millis(raw, "roundEndTime")
	p.RoundDuration = field(raw, "roundDuration", func(v int) bool { return v > 0 })
	p.IsPaused = field[bool](raw, "isPaused", nil)
	p.TimeLeftOnPause = millis(raw, "timeLeftOnPause")
	p.SelectedCategories = field(raw, "selectedCategories", validCategories)
	return p, nil
}

func field[T any](raw map[string]json.RawMessage, key string, valid func(T) bool) models.Optional[T] {
	v, ok := raw[key]
	if !ok || isNull(v) {
		return models.Optional[T]{}
	}
	var out T
	if err := json.Unmarshal(v, &out); err != nil {
		log.Debug().Err(err).Str("field", key).Msg("ignoring malformed field in remote state")
		return models.Optional[T]{}
	}
	if valid != nil && !valid(out) {
		log.Debug().Str("field", key).Msg("ignoring invalid field in remote state")
		return models.Optional[T]{}
	}
	return models.Some(out)
}

func nullable[T any](raw map[string]json.RawMessage, key string, valid func(T) bool) models.Optional[T] {
	if v, ok := raw[key]; ok && isNull(v) {
		return models.Null[T]()
	}
	return field(raw, key, valid)
}

// millis accepts integral or fractional numbers since browser clients may
// write either.
func millis(raw map[string]json.RawMessage, key string) models.Optional[int64] {
	f := nullable[float64](raw, key, func(v float64) bool {
		return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
	})
	if !f.Set || f.Null {
		return models.Optional[int64]{Set: f.Set, Null: f.Null}
	}
	return models.Some(int64(math.Round(f.Value)))
}

func decodeRoomCode(blob []byte) (string, bool) {
	var v struct {
		RoomCode *string `json:"roomCode"`
	}
	if err := json.Unmarshal(blob, &v); err != nil || v.RoomCode == nil {
		return "", false
	}
	return *v.RoomCode, true
}

func isNull(v json.RawMessage) bool {
	return string(v) == "null"
}

func validTeams(teams []models.Team) bool {
	if len(teams) > models.MaxTeams {
		return false
	}
	seen := make(map[string]bool, len(teams))
	for _, t := range teams {
		if t.PlayerID != "" && seen[t.PlayerID] {
			return false
		}
		seen[t.PlayerID] = true
	}
	return true
}

func validCategories(tags []string) bool {
	if len(tags) == 0 {
		return false
	}
	hasAPI := false
	for _, t := range tags {
		if !models.IsKnownCategory(t) {
			return false
		}
		if t == models.CategoryAPI {
			hasAPI = true
		}
	}
	return !hasAPI || len(tags) == 1
}
