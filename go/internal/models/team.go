package models

// HistoryEntry is one described word and whether the team guessed it.
type HistoryEntry struct {
	Word      string `json:"word"`
	IsCorrect bool   `json:"isCorrect"`
}

// Team is a claimed slot in a room. Name and PlayerID never change after the claim;
// only Score and History mutate.
type Team struct {
	Name     string         `json:"name"`
	Score    int            `json:"score"`
	History  []HistoryEntry `json:"history"`
	PlayerID string         `json:"playerId"`
}

// Clone returns a deep copy of the team.
func (t Team) Clone() Team {
	out := t
	out.History = make([]HistoryEntry, len(t.History))
	copy(out.History, t.History)
	return out
}
