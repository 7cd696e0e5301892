package game

import (
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/alias/go/internal/models"
)

// Store owns one client's copy of the shared session. Every mutation takes the
// lock, so timer ticks, remote merges and user actions never interleave.
type Store struct {
	mu       sync.Mutex
	clock    clockwork.Clock
	playerID string
	session  models.Session

	// expiredRound is the end timestamp of the last round this client moved into
	// overtime. It keeps expiry to once per round even if later ticks or merges
	// observe zero again.
	expiredRound *int64

	onChange func(models.Session)
}

// NewStore creates a store for the player identified by playerID with a fresh session.
func NewStore(clock clockwork.Clock, playerID string) *Store {
	return &Store{
		clock:    clock,
		playerID: playerID,
		session:  models.NewSession(),
	}
}

// PlayerID returns the local player identity. It is never replicated.
func (s *Store) PlayerID() string {
	return s.playerID
}

// OnChange registers fn to receive a snapshot after every applied change.
// fn runs outside the lock.
func (s *Store) OnChange(fn func(models.Session)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// Snapshot returns a deep copy of the current session.
func (s *Store) Snapshot() models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.Clone()
}

// Phase returns the current round phase.
func (s *Store) Phase() models.Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.Phase()
}

// RoomCode returns the locally held room code.
func (s *Store) RoomCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.RoomCode
}

// IsMyTurn reports whether the active team was claimed by this player.
func (s *Store) IsMyTurn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isMyTurnLocked()
}

// IsMember reports whether this player has claimed any team.
func (s *Store) IsMember() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.TeamOf(s.playerID) >= 0
}

// SetRoomCode sets the local room code. Remote merges never change it.
func (s *Store) SetRoomCode(code string) {
	s.mutate(func(sess *models.Session) bool {
		sess.RoomCode = code
		return true
	})
}

// Adopt replaces the session wholesale with a state fetched from the backend,
// keeping the local room code. Used when joining a room.
func (s *Store) Adopt(remote models.Session) {
	s.mutate(func(sess *models.Session) bool {
		code := sess.RoomCode
		next := remote.Clone()
		next.RoomCode = code
		next.Normalize()
		reconcileScores(next.Teams)
		*sess = next
		return true
	})
}

// ApplyRemote merges a remote snapshot field by field. Absent fields keep their
// local value, scores are recomputed from history and the result is normalized.
func (s *Store) ApplyRemote(p models.SessionPatch) {
	s.mutate(func(sess *models.Session) bool {
		p.Apply(sess)
		reconcileScores(sess.Teams)
		sess.Normalize()
		return true
	})
}

// Rebase replays local changes on top of a remote state that won a write race.
// base is the last stored state this client saw, theirs the winner. It succeeds
// only when the winner changed lobby fields alone (categories or newly claimed
// teams): the local session then keeps its turn and picks up the winner's lobby
// changes. It returns the merged session to write back, or false when the
// winner touched the round and should be merged as usual.
func (s *Store) Rebase(base models.Session, theirs models.SessionPatch) (models.Session, bool) {
	remote := base.Clone()
	theirs.Apply(&remote)
	remote.Normalize()
	if !models.SameRound(base, remote) {
		return models.Session{}, false
	}

	var merged models.Session
	ok := s.mutate(func(sess *models.Session) bool {
		added := remote.Teams[len(base.Teams):]
		if len(added) > 0 {
			if len(sess.Teams) != len(base.Teams) || len(sess.Teams)+len(added) > models.MaxTeams {
				return false
			}
			for _, t := range added {
				if sess.TeamOf(t.PlayerID) >= 0 {
					return false
				}
				sess.Teams = append(sess.Teams, t.Clone())
			}
		}
		if !sameCategories(base.SelectedCategories, remote.SelectedCategories) {
			sess.SelectedCategories = append([]string(nil), remote.SelectedCategories...)
		}
		reconcileScores(sess.Teams)
		sess.Normalize()
		merged = sess.Clone()
		return true
	})
	return merged, ok
}

func sameCategories(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (s *Store) isMyTurnLocked() bool {
	if s.playerID == "" {
		return false
	}
	t := s.session.ActiveTeam()
	return t != nil && t.PlayerID == s.playerID
}

func (s *Store) isMemberOrEmptyLocked() bool {
	return len(s.session.Teams) == 0 || s.session.TeamOf(s.playerID) >= 0
}

// mutate runs fn under the lock and notifies the change listener when fn
// reports that it changed the session.
func (s *Store) mutate(fn func(sess *models.Session) bool) bool {
	s.mu.Lock()
	applied := fn(&s.session)
	var (
		notify   func(models.Session)
		snapshot models.Session
	)
	if applied && s.onChange != nil {
		notify = s.onChange
		snapshot = s.session.Clone()
	}
	s.mu.Unlock()

	if notify != nil {
		notify(snapshot)
	}
	return applied
}
