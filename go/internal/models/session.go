package models

import "time"

const (
	MaxTeams = 2

	MinRoundDuration     = 60
	MaxRoundDuration     = 180
	RoundDurationStep    = 10
	DefaultRoundDuration = 60
)

// Phase is the state of the active round.
type Phase string

const (
	PhaseIdle     Phase = "IDLE"
	PhaseRunning  Phase = "RUNNING"
	PhasePaused   Phase = "PAUSED"
	PhaseOvertime Phase = "OVERTIME"
)

// Session is the shared game state replicated between every client in a room.
// Timestamps are unix milliseconds so the blob stays compatible with browser clients.
type Session struct {
	Teams              []Team   `json:"teams"`
	CurrentTeamIndex   int      `json:"currentTeamIndex"`
	IsGameStarted      bool     `json:"isGameStarted"`
	IsOvertime         bool     `json:"isOvertime"`
	CurrentWord        *Word    `json:"currentWord"`
	RoomCode           string   `json:"roomCode"`
	RoundEndTime       *int64   `json:"roundEndTime"`
	RoundDuration      int      `json:"roundDuration"`
	IsPaused           bool     `json:"isPaused"`
	TimeLeftOnPause    *int64   `json:"timeLeftOnPause"`
	SelectedCategories []string `json:"selectedCategories"`
}

// NewSession returns a session with the room defaults and no teams.
func NewSession() Session {
	return Session{
		Teams:              []Team{},
		RoundDuration:      DefaultRoundDuration,
		SelectedCategories: []string{CategoryA2},
	}
}

// Phase derives the round phase from the flags.
func (s Session) Phase() Phase {
	switch {
	case s.IsOvertime:
		return PhaseOvertime
	case !s.IsGameStarted:
		return PhaseIdle
	case s.IsPaused:
		return PhasePaused
	default:
		return PhaseRunning
	}
}

// ActiveTeam returns the team whose turn it is, or nil when there is none.
func (s Session) ActiveTeam() *Team {
	if s.CurrentTeamIndex < 0 || s.CurrentTeamIndex >= len(s.Teams) {
		return nil
	}
	return &s.Teams[s.CurrentTeamIndex]
}

// TeamOf returns the index of the team claimed by playerID, or -1.
func (s Session) TeamOf(playerID string) int {
	if playerID == "" {
		return -1
	}
	for i, t := range s.Teams {
		if t.PlayerID == playerID {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy that shares no slices or pointers with s.
func (s Session) Clone() Session {
	out := s
	out.Teams = make([]Team, len(s.Teams))
	for i, t := range s.Teams {
		out.Teams[i] = t.Clone()
	}
	if s.CurrentWord != nil {
		w := *s.CurrentWord
		out.CurrentWord = &w
	}
	out.RoundEndTime = cloneMillis(s.RoundEndTime)
	out.TimeLeftOnPause = cloneMillis(s.TimeLeftOnPause)
	out.SelectedCategories = append([]string(nil), s.SelectedCategories...)
	return out
}

// Normalize repairs fields so the invariants hold: non-nil slices, a valid team
// index, a duration inside the allowed range and a non-empty category set.
func (s *Session) Normalize() {
	if s.Teams == nil {
		s.Teams = []Team{}
	}
	for i := range s.Teams {
		if s.Teams[i].History == nil {
			s.Teams[i].History = []HistoryEntry{}
		}
	}
	if len(s.Teams) == 0 {
		s.CurrentTeamIndex = 0
	} else if s.CurrentTeamIndex < 0 || s.CurrentTeamIndex >= len(s.Teams) {
		s.CurrentTeamIndex = ((s.CurrentTeamIndex % len(s.Teams)) + len(s.Teams)) % len(s.Teams)
	}
	s.RoundDuration = ClampRoundDuration(s.RoundDuration)
	if len(s.SelectedCategories) == 0 {
		s.SelectedCategories = []string{CategoryA2}
	}
}

// ClampRoundDuration clamps seconds into [MinRoundDuration, MaxRoundDuration] and
// snaps it to the slider step.
func ClampRoundDuration(seconds int) int {
	if seconds < MinRoundDuration {
		return MinRoundDuration
	}
	if seconds > MaxRoundDuration {
		return MaxRoundDuration
	}
	offset := seconds - MinRoundDuration
	snapped := MinRoundDuration + ((offset+RoundDurationStep/2)/RoundDurationStep)*RoundDurationStep
	if snapped > MaxRoundDuration {
		return MaxRoundDuration
	}
	return snapped
}

// Millis converts t to unix milliseconds.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}

// MillisPtr is Millis returning a pointer, for the nullable timestamp fields.
func MillisPtr(t time.Time) *int64 {
	ms := t.UnixMilli()
	return &ms
}

func cloneMillis(v *int64) *int64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

// SameRound reports whether next keeps every turn-scoped field of prev: the turn
// index, the round flags and timer, the word on the card, the round duration and
// the history of every team prev knows about. Teams appended in next are not
// compared.
func SameRound(prev, next Session) bool {
	if prev.CurrentTeamIndex != next.CurrentTeamIndex ||
		prev.IsGameStarted != next.IsGameStarted ||
		prev.IsOvertime != next.IsOvertime ||
		prev.IsPaused != next.IsPaused ||
		prev.RoundDuration != next.RoundDuration {
		return false
	}
	if !sameWord(prev.CurrentWord, next.CurrentWord) ||
		!sameMillis(prev.RoundEndTime, next.RoundEndTime) ||
		!sameMillis(prev.TimeLeftOnPause, next.TimeLeftOnPause) {
		return false
	}
	if len(next.Teams) < len(prev.Teams) {
		return false
	}
	for i, t := range prev.Teams {
		n := next.Teams[i]
		if n.Name != t.Name || n.PlayerID != t.PlayerID || !sameHistory(t.History, n.History) {
			return false
		}
	}
	return true
}

func sameWord(a, b *Word) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sameMillis(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sameHistory(a, b []HistoryEntry) bool {
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
