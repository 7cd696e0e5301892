// Package identity keeps the local player id and generates room codes.
package identity

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io/fs"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	playerIDPrefix = "p_"
	playerIDLength = 12

	RoomCodeLength   = 4
	roomCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// NewPlayerID returns a fresh opaque player id.
func NewPlayerID() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return playerIDPrefix + hex[:playerIDLength]
}

// FileStore persists the player id in a single file.
type FileStore struct {
	path string
}

// NewFileStore stores the id at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// DefaultPath is the id file under the user's config directory.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate config dir: %w", err)
	}
	return filepath.Join(dir, "alias", "player_id"), nil
}

// PlayerID returns the stored id, creating and saving one on first use.
func (s *FileStore) PlayerID() (string, error) {
	data, err := os.ReadFile(s.path)
	if err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("failed to read player id: %w", err)
	}

	id := NewPlayerID()
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return "", fmt.Errorf("failed to create id dir: %w", err)
	}
	if err := os.WriteFile(s.path, []byte(id+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("failed to write player id: %w", err)
	}
	log.Info().Str("player_id", id).Str("path", s.path).Msg("created player id")
	return id, nil
}

// NewRoomCode returns a random code of RoomCodeLength uppercase letters and digits.
func NewRoomCode() (string, error) {
	var b strings.Builder
	max := big.NewInt(int64(len(roomCodeAlphabet)))
	for i := 0; i < RoomCodeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate room code: %w", err)
		}
		b.WriteByte(roomCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// NormalizeRoomCode upper-cases and trims a user-typed code.
func NormalizeRoomCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidRoomCode reports whether code has the generated shape.
func ValidRoomCode(code string) bool {
	if len(code) != RoomCodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if !strings.ContainsRune(roomCodeAlphabet, rune(code[i])) {
			return false
		}
	}
	return true
}
