package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/mcdev12/alias/go/internal/game"
	"github.com/mcdev12/alias/go/internal/models"
)

// render writes a text view of the session. The word is only shown to the
// acting player; guessers see that a card is in play.
func render(w io.Writer, s models.Session, playerID string, remaining int) {
	room := s.RoomCode
	if room == "" {
		room = "-"
	}
	fmt.Fprintf(w, "room %s | %s | %ds rounds | categories %s\n",
		room, strings.ToLower(string(s.Phase())), s.RoundDuration, strings.Join(s.SelectedCategories, ","))

	if len(s.Teams) == 0 {
		fmt.Fprintln(w, "no teams yet, claim one with: team NAME")
		return
	}

	for i, t := range s.Teams {
		marker := " "
		if i == s.CurrentTeamIndex {
			marker = ">"
		}
		you := ""
		if t.PlayerID == playerID {
			you = " (you)"
		}
		fmt.Fprintf(w, "%s %s%s: %d\n", marker, t.Name, you, t.Score)
	}

	if s.Phase() != models.PhaseIdle {
		fmt.Fprintf(w, "time left: %ds\n", remaining)
	}
	if s.IsOvertime {
		fmt.Fprintln(w, "time is up, last word")
	}

	active := s.ActiveTeam()
	switch {
	case s.CurrentWord == nil:
	case active != nil && active.PlayerID == playerID:
		fmt.Fprintf(w, "word: %s [%s]\n", s.CurrentWord.Word, s.CurrentWord.Category)
	default:
		fmt.Fprintln(w, "word: (hidden)")
	}
}

// renderHistory lists each team's words, most recent first.
func renderHistory(w io.Writer, s models.Session) {
	for _, t := range s.Teams {
		fmt.Fprintf(w, "%s:\n", t.Name)
		if len(t.History) == 0 {
			fmt.Fprintln(w, "  (nothing yet)")
			continue
		}
		for _, h := range game.RecentFirst(t.History) {
			mark := "-"
			if h.IsCorrect {
				mark = "+"
			}
			fmt.Fprintf(w, "  %s %s\n", mark, h.Word)
		}
	}
}
