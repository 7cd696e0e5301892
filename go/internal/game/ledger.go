package game

import "github.com/mcdev12/alias/go/internal/models"

// ScoreOf counts the correct entries in history. A team's score is always this value.
func ScoreOf(history []models.HistoryEntry) int {
	score := 0
	for _, h := range history {
		if h.IsCorrect {
			score++
		}
	}
	return score
}

// appendOutcome is the only path that grows a team's history. The score is
// recomputed in the same step so the two cannot drift.
func appendOutcome(t *models.Team, word string, isCorrect bool) {
	t.History = append(t.History, models.HistoryEntry{Word: word, IsCorrect: isCorrect})
	t.Score = ScoreOf(t.History)
}

// clearLedger empties a team's history and score, keeping its identity.
func clearLedger(t *models.Team) {
	t.History = []models.HistoryEntry{}
	t.Score = 0
}

// reconcileScores recomputes every score from history. Used after remote merges,
// where an older or misbehaving sender may have shipped a stale score.
func reconcileScores(teams []models.Team) {
	for i := range teams {
		if teams[i].History == nil {
			teams[i].History = []models.HistoryEntry{}
		}
		teams[i].Score = ScoreOf(teams[i].History)
	}
}

// RecentFirst returns a copy of history in display order, newest entry first.
func RecentFirst(history []models.HistoryEntry) []models.HistoryEntry {
	out := make([]models.HistoryEntry, len(history))
	for i, h := range history {
		out[len(history)-1-i] = h
	}
	return out
}
