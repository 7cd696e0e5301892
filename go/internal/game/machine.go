package game

import (
	"strings"

	"github.com/mcdev12/alias/go/internal/game/timer"
	"github.com/mcdev12/alias/go/internal/models"
)

// RecordResult tells the caller what to do after RecordOutcome.
type RecordResult int

const (
	// RecordRejected means the call was ignored: not this player's turn, no word
	// on the card or no live round.
	RecordRejected RecordResult = iota
	// RecordNextWord means the outcome was stored and a new word must be drawn.
	RecordNextWord
	// RecordTurnEnded means the outcome closed an overtime and the turn passed on.
	RecordTurnEnded
)

func (r RecordResult) String() string {
	switch r {
	case RecordNextWord:
		return "next_word"
	case RecordTurnEnded:
		return "turn_ended"
	default:
		return "rejected"
	}
}

// StartRound starts the acting team's round. It needs an idle round and a word
// already on the card.
func (s *Store) StartRound() bool {
	return s.mutate(func(sess *models.Session) bool {
		if sess.Phase() != models.PhaseIdle || !s.isMyTurnLocked() || sess.CurrentWord == nil {
			return false
		}
		sess.IsGameStarted = true
		sess.IsOvertime = false
		sess.IsPaused = false
		sess.TimeLeftOnPause = nil
		end := s.clock.Now().UnixMilli() + int64(sess.RoundDuration)*1000
		sess.RoundEndTime = &end
		return true
	})
}

// RecordOutcome stores the outcome of the word on the card for the acting team.
// During overtime the outcome is final and the turn advances.
func (s *Store) RecordOutcome(isCorrect bool) RecordResult {
	result := RecordRejected
	s.mutate(func(sess *models.Session) bool {
		phase := sess.Phase()
		if phase != models.PhaseRunning && phase != models.PhaseOvertime {
			return false
		}
		if !s.isMyTurnLocked() || sess.CurrentWord == nil {
			return false
		}

		appendOutcome(&sess.Teams[sess.CurrentTeamIndex], sess.CurrentWord.Word, isCorrect)

		if phase == models.PhaseOvertime {
			advanceTurnLocked(sess)
			result = RecordTurnEnded
			return true
		}
		sess.CurrentWord = nil
		result = RecordNextWord
		return true
	})
	return result
}

// Expire moves a running round whose countdown reached zero into overtime. Only
// the acting client expires its own round, and only once per round.
func (s *Store) Expire() bool {
	return s.mutate(func(sess *models.Session) bool {
		if sess.Phase() != models.PhaseRunning || sess.RoundEndTime == nil || !s.isMyTurnLocked() {
			return false
		}
		if s.expiredRound != nil && *s.expiredRound == *sess.RoundEndTime {
			return false
		}
		if timer.Remaining(*sess, s.clock.Now()) > 0 {
			return false
		}
		end := *sess.RoundEndTime
		s.expiredRound = &end
		sess.IsOvertime = true
		return true
	})
}

// AdvanceTurn passes the turn to the next team and returns the round to idle.
// Only the acting client ends its own turn.
func (s *Store) AdvanceTurn() bool {
	return s.mutate(func(sess *models.Session) bool {
		if !s.isMyTurnLocked() {
			return false
		}
		advanceTurnLocked(sess)
		return true
	})
}

func advanceTurnLocked(sess *models.Session) {
	if n := len(sess.Teams); n > 0 {
		sess.CurrentTeamIndex = (sess.CurrentTeamIndex + 1) % n
	} else {
		sess.CurrentTeamIndex = 0
	}
	clearRoundLocked(sess)
}

// clearRoundLocked resets every active-round field.
func clearRoundLocked(sess *models.Session) {
	sess.IsGameStarted = false
	sess.IsOvertime = false
	sess.CurrentWord = nil
	sess.RoundEndTime = nil
	sess.IsPaused = false
	sess.TimeLeftOnPause = nil
}

// Pause freezes the acting team's countdown.
func (s *Store) Pause() bool {
	return s.mutate(func(sess *models.Session) bool {
		if !s.isMyTurnLocked() || sess.RoundEndTime == nil || sess.IsPaused || sess.IsOvertime || !sess.IsGameStarted {
			return false
		}
		left := *sess.RoundEndTime - s.clock.Now().UnixMilli()
		if left < 0 {
			left = 0
		}
		sess.TimeLeftOnPause = &left
		sess.RoundEndTime = nil
		sess.IsPaused = true
		return true
	})
}

// Resume restarts a paused countdown from the captured remaining time.
func (s *Store) Resume() bool {
	return s.mutate(func(sess *models.Session) bool {
		if !s.isMyTurnLocked() || !sess.IsPaused {
			return false
		}
		var left int64
		if sess.TimeLeftOnPause != nil {
			left = *sess.TimeLeftOnPause
		}
		end := s.clock.Now().UnixMilli() + left
		sess.RoundEndTime = &end
		sess.TimeLeftOnPause = nil
		sess.IsPaused = false
		return true
	})
}

// SetRoundDuration changes the length of the next round. The value is clamped
// and snapped to the slider step.
func (s *Store) SetRoundDuration(seconds int) bool {
	return s.mutate(func(sess *models.Session) bool {
		if sess.Phase() != models.PhaseIdle || !s.isMyTurnLocked() {
			return false
		}
		d := models.ClampRoundDuration(seconds)
		if d == sess.RoundDuration {
			return false
		}
		sess.RoundDuration = d
		return true
	})
}

// NewRound starts a new game with the same roster: scores and histories are
// cleared and the first team is up.
func (s *Store) NewRound() bool {
	return s.mutate(func(sess *models.Session) bool {
		if !s.isMemberOrEmptyLocked() {
			return false
		}
		for i := range sess.Teams {
			clearLedger(&sess.Teams[i])
		}
		sess.CurrentTeamIndex = 0
		clearRoundLocked(sess)
		return true
	})
}

// ResetAll drops the roster and every active-round field. Room settings
// (code, duration, categories) are kept; leaving the room is up to the caller.
func (s *Store) ResetAll() bool {
	return s.mutate(func(sess *models.Session) bool {
		if !s.isMemberOrEmptyLocked() {
			return false
		}
		sess.Teams = []models.Team{}
		sess.CurrentTeamIndex = 0
		clearRoundLocked(sess)
		s.expiredRound = nil
		return true
	})
}

// ClaimTeam adds a team owned by this player. A player owns at most one team and
// a room holds at most models.MaxTeams.
func (s *Store) ClaimTeam(name string) bool {
	name = strings.TrimSpace(name)
	return s.mutate(func(sess *models.Session) bool {
		if name == "" || s.playerID == "" || len(sess.Teams) >= models.MaxTeams {
			return false
		}
		if sess.TeamOf(s.playerID) >= 0 {
			return false
		}
		sess.Teams = append(sess.Teams, models.Team{
			Name:     name,
			History:  []models.HistoryEntry{},
			PlayerID: s.playerID,
		})
		return true
	})
}

// ToggleCategory flips tag in the selection. Picking the API pool clears the
// curated tags and picking a curated tag clears API. The last tag cannot be removed.
func (s *Store) ToggleCategory(tag string) bool {
	if !models.IsKnownCategory(tag) {
		return false
	}
	return s.mutate(func(sess *models.Session) bool {
		next, ok := toggleCategory(sess.SelectedCategories, tag)
		if !ok {
			return false
		}
		sess.SelectedCategories = next
		return true
	})
}

func toggleCategory(selected []string, tag string) ([]string, bool) {
	if tag == models.CategoryAPI {
		if len(selected) == 1 && selected[0] == models.CategoryAPI {
			return nil, false
		}
		return []string{models.CategoryAPI}, true
	}

	next := make([]string, 0, len(selected)+1)
	found := false
	for _, c := range selected {
		switch c {
		case models.CategoryAPI:
		case tag:
			found = true
		default:
			next = append(next, c)
		}
	}
	if !found {
		next = append(next, tag)
	}
	if len(next) == 0 {
		return nil, false
	}
	return next, true
}

// SetWord puts w on the card. Only the acting client draws words. During
// overtime the card is only filled when it is empty, so a draw that failed or
// was still in flight at expiry still gives the team its last word.
func (s *Store) SetWord(w models.Word) bool {
	return s.mutate(func(sess *models.Session) bool {
		if !s.isMyTurnLocked() {
			return false
		}
		if sess.IsOvertime && sess.CurrentWord != nil {
			return false
		}
		word := w
		sess.CurrentWord = &word
		return true
	})
}
