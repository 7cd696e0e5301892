package relay

import (
	"errors"
	"fmt"

	"github.com/mcdev12/alias/go/internal/models"
)

var ErrForbidden = errors.New("write not allowed for this player")

// CheckWrite decides whether playerID may replace prev with next. conditional
// reports whether the writer named the version prev was stored at.
//
// Lobby fields (new team claims, categories) are open to anyone. Turn fields
// belong to the acting team's player. A roster member may clear the room or
// start a new round with the same teams; while another team's round is live
// that write must be conditional, so a stale snapshot cannot wipe the round.
func CheckWrite(prev, next models.Session, playerID string, conditional bool) error {
	if len(prev.Teams) == 0 {
		return checkClaims(prev, next, playerID)
	}

	member := prev.TeamOf(playerID) >= 0
	if len(next.Teams) == 0 {
		if !member {
			return fmt.Errorf("reset by non-member: %w", ErrForbidden)
		}
		return checkClearsRound(prev, playerID, conditional, "reset")
	}
	if isFreshRound(prev, next) {
		if !member {
			return fmt.Errorf("new round by non-member: %w", ErrForbidden)
		}
		return checkClearsRound(prev, playerID, conditional, "new round")
	}

	if err := checkClaims(prev, next, playerID); err != nil {
		return err
	}

	if models.SameRound(prev, next) {
		return nil
	}
	if active := prev.ActiveTeam(); active == nil || active.PlayerID != playerID {
		return fmt.Errorf("turn change outside own turn: %w", ErrForbidden)
	}
	return nil
}

func checkClearsRound(prev models.Session, playerID string, conditional bool, what string) error {
	if conditional || prev.Phase() == models.PhaseIdle {
		return nil
	}
	if active := prev.ActiveTeam(); active != nil && active.PlayerID == playerID {
		return nil
	}
	return fmt.Errorf("unconditional %s during another team's round: %w", what, ErrForbidden)
}

// checkClaims requires existing teams to keep their identity and any added
// team to belong to the writer.
func checkClaims(prev, next models.Session, playerID string) error {
	if len(next.Teams) < len(prev.Teams) {
		return fmt.Errorf("team removed: %w", ErrForbidden)
	}
	for i, t := range prev.Teams {
		if next.Teams[i].Name != t.Name || next.Teams[i].PlayerID != t.PlayerID {
			return fmt.Errorf("team %q rewritten: %w", t.Name, ErrForbidden)
		}
	}
	for _, t := range next.Teams[len(prev.Teams):] {
		if playerID == "" || t.PlayerID != playerID {
			return fmt.Errorf("team %q claimed for another player: %w", t.Name, ErrForbidden)
		}
		if len(t.History) > 0 {
			return fmt.Errorf("team %q claimed with history: %w", t.Name, ErrForbidden)
		}
	}
	return nil
}

func isFreshRound(prev, next models.Session) bool {
	if len(prev.Teams) != len(next.Teams) {
		return false
	}
	for i, t := range next.Teams {
		if t.Name != prev.Teams[i].Name || t.PlayerID != prev.Teams[i].PlayerID || len(t.History) > 0 {
			return false
		}
	}
	return next.CurrentTeamIndex == 0 &&
		!next.IsGameStarted &&
		!next.IsOvertime &&
		!next.IsPaused &&
		next.CurrentWord == nil &&
		next.RoundEndTime == nil &&
		next.TimeLeftOnPause == nil
}
