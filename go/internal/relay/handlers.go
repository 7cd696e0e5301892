package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/julienschmidt/httprouter"
	"github.com/mcdev12/alias/go/internal/identity"
	"github.com/mcdev12/alias/go/internal/replication"
	"github.com/rs/zerolog/log"
	"github.com/skip2/go-qrcode"
)

var errBadRequest = errors.New("bad request")

func (s *Service) handleCreateRoom(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req CreateRoomRequest
	if err := s.decodeBody(w, r, &req); err != nil {
		s.writeError(w, "create", err)
		return
	}
	code := identity.NormalizeRoomCode(req.Code)
	if !identity.ValidRoomCode(code) {
		s.writeError(w, "create", fmt.Errorf("invalid room code %q: %w", req.Code, errBadRequest))
		return
	}
	if _, err := replication.Decode(req.State); err != nil {
		s.writeError(w, "create", fmt.Errorf("invalid state: %v: %w", err, errBadRequest))
		return
	}

	version, err := s.backend.Insert(r.Context(), code, req.State)
	if err != nil {
		s.writeError(w, "create", err)
		return
	}
	log.Info().Str("room_code", code).Msg("room created")
	s.writeJSON(w, "create", http.StatusCreated, Room{Code: code, State: req.State, Version: version})
}

func (s *Service) handleGetRoom(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	row, err := s.backend.Get(r.Context(), identity.NormalizeRoomCode(ps.ByName("code")))
	if err != nil {
		s.writeError(w, "get", err)
		return
	}
	s.writeJSON(w, "get", http.StatusOK, Room{Code: row.Code, State: row.State, Version: row.Version})
}

// handleUpdateRoom checks the writer's authority against the stored row before
// writing. An unconditional update is still written against the version that
// was checked, and retried if another writer got in between.
func (s *Service) handleUpdateRoom(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	code := identity.NormalizeRoomCode(ps.ByName("code"))
	playerID := r.Header.Get(PlayerHeader)

	var req UpdateRoomRequest
	if err := s.decodeBody(w, r, &req); err != nil {
		s.writeError(w, "update", err)
		return
	}
	next, err := replication.Decode(req.State)
	if err != nil {
		s.writeError(w, "update", fmt.Errorf("invalid state: %v: %w", err, errBadRequest))
		return
	}
	if next.RoomCode != "" && next.RoomCode != code {
		s.writeError(w, "update", fmt.Errorf("state is for room %q: %w", next.RoomCode, errBadRequest))
		return
	}

	for attempt := 1; ; attempt++ {
		row, err := s.backend.Get(r.Context(), code)
		if err != nil {
			s.writeError(w, "update", err)
			return
		}
		if req.Version != nil && *req.Version != row.Version {
			s.writeError(w, "update", fmt.Errorf("update %s at version %d (stored %d): %w",
				code, *req.Version, row.Version, replication.ErrVersionConflict))
			return
		}

		prev, err := replication.Decode(row.State)
		if err != nil {
			log.Warn().Err(err).Str("room_code", code).Msg("stored state unreadable, checking against empty room")
		}
		if err := CheckWrite(prev, next, playerID, req.Version != nil); err != nil {
			s.metrics.rejectedWrites.Inc()
			log.Warn().Err(err).Str("room_code", code).Str("player_id", playerID).Msg("write rejected")
			s.writeError(w, "update", err)
			return
		}

		version, err := s.backend.Update(r.Context(), code, req.State, row.Version)
		if errors.Is(err, replication.ErrVersionConflict) && req.Version == nil && attempt < s.config.UpdateAttempts {
			continue
		}
		if err != nil {
			s.writeError(w, "update", err)
			return
		}
		s.writeJSON(w, "update", http.StatusOK, Room{Code: code, State: req.State, Version: version})
		return
	}
}

func (s *Service) handleRoomConnection(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	code := identity.NormalizeRoomCode(ps.ByName("code"))
	if _, err := s.backend.Get(r.Context(), code); err != nil {
		s.writeError(w, "subscribe", err)
		return
	}

	playerID := r.URL.Query().Get("player_id")
	if playerID == "" {
		playerID = "anonymous"
	}

	if err := s.connectionManager.UpgradeConnection(w, r, playerID, code); err != nil {
		// The upgrader has already replied on failure.
		log.Error().
			Err(err).
			Str("room_code", code).
			Str("player_id", playerID).
			Msg("failed to open websocket connection")
	}
}

// handleQR renders a PNG QR code of the room's join link.
func (s *Service) handleQR(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	code := identity.NormalizeRoomCode(ps.ByName("code"))
	if !identity.ValidRoomCode(code) {
		http.Error(w, "invalid room code", http.StatusBadRequest)
		return
	}

	png, err := qrcode.Encode(s.joinURL(r, code), qrcode.Medium, s.config.QRSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Write(png)
}

func (s *Service) joinURL(r *http.Request, code string) string {
	base := strings.TrimRight(s.config.PublicURL, "/")
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}
		base = scheme + "://" + r.Host
	}
	return base + "/rooms/" + code
}

func (s *Service) handleStats(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.writeJSON(w, "stats", http.StatusOK, s.connectionManager.Stats())
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	status := s.health.Check(r.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, "health", code, status)
}

func (s *Service) decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxStateBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %v: %w", err, errBadRequest)
	}
	return nil
}

func (s *Service) writeJSON(w http.ResponseWriter, op string, status int, v any) {
	s.metrics.requests.WithLabelValues(op, strconv.Itoa(status)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Str("op", op).Msg("failed to encode response")
	}
}

func (s *Service) writeError(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("op", op).Msg("room request failed")
	}
	s.writeJSON(w, op, status, errorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, replication.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, replication.ErrRoomExists), errors.Is(err, replication.ErrVersionConflict):
		return http.StatusConflict
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
