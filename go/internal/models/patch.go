package models

// Optional carries a field that may be absent from a remote payload. Set is false
// when the sender did not include the field; Null is true when it sent an explicit null.
type Optional[T any] struct {
	Set   bool
	Null  bool
	Value T
}

// Some returns a present, non-null Optional.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Value: v}
}

// Null returns a present Optional holding an explicit null.
func Null[T any]() Optional[T] {
	return Optional[T]{Set: true, Null: true}
}

// SessionPatch is a remote snapshot decoded field by field. Fields that were absent
// or failed to decode are left unset so the merge keeps the local value.
type SessionPatch struct {
	Teams              Optional[[]Team]
	CurrentTeamIndex   Optional[int]
	IsGameStarted      Optional[bool]
	IsOvertime         Optional[bool]
	CurrentWord        Optional[Word]
	RoundEndTime       Optional[int64]
	RoundDuration      Optional[int]
	IsPaused           Optional[bool]
	TimeLeftOnPause    Optional[int64]
	SelectedCategories Optional[[]string]
}

// PatchFrom builds a patch where every field of s is present.
func PatchFrom(s Session) SessionPatch {
	s = s.Clone()
	p := SessionPatch{
		Teams:              Some(s.Teams),
		CurrentTeamIndex:   Some(s.CurrentTeamIndex),
		IsGameStarted:      Some(s.IsGameStarted),
		IsOvertime:         Some(s.IsOvertime),
		RoundDuration:      Some(s.RoundDuration),
		IsPaused:           Some(s.IsPaused),
		SelectedCategories: Some(s.SelectedCategories),
		CurrentWord:        Null[Word](),
		RoundEndTime:       Null[int64](),
		TimeLeftOnPause:    Null[int64](),
	}
	if s.CurrentWord != nil {
		p.CurrentWord = Some(*s.CurrentWord)
	}
	if s.RoundEndTime != nil {
		p.RoundEndTime = Some(*s.RoundEndTime)
	}
	if s.TimeLeftOnPause != nil {
		p.TimeLeftOnPause = Some(*s.TimeLeftOnPause)
	}
	return p
}

// Apply merges p into s. Room code and local identity are never touched.
func (p SessionPatch) Apply(s *Session) {
	if p.Teams.Set && !p.Teams.Null {
		teams := make([]Team, len(p.Teams.Value))
		for i, t := range p.Teams.Value {
			teams[i] = t.Clone()
		}
		s.Teams = teams
	}
	if p.CurrentTeamIndex.Set && !p.CurrentTeamIndex.Null {
		s.CurrentTeamIndex = p.CurrentTeamIndex.Value
	}
	if p.IsGameStarted.Set && !p.IsGameStarted.Null {
		s.IsGameStarted = p.IsGameStarted.Value
	}
	if p.IsOvertime.Set && !p.IsOvertime.Null {
		s.IsOvertime = p.IsOvertime.Value
	}
	if p.CurrentWord.Set {
		if p.CurrentWord.Null {
			s.CurrentWord = nil
		} else {
			w := p.CurrentWord.Value
			s.CurrentWord = &w
		}
	}
	applyMillis(&s.RoundEndTime, p.RoundEndTime)
	if p.RoundDuration.Set && !p.RoundDuration.Null {
		s.RoundDuration = p.RoundDuration.Value
	}
	if p.IsPaused.Set && !p.IsPaused.Null {
		s.IsPaused = p.IsPaused.Value
	}
	applyMillis(&s.TimeLeftOnPause, p.TimeLeftOnPause)
	if p.SelectedCategories.Set && !p.SelectedCategories.Null && len(p.SelectedCategories.Value) > 0 {
		s.SelectedCategories = append([]string(nil), p.SelectedCategories.Value...)
	}
}

func applyMillis(dst **int64, v Optional[int64]) {
	if !v.Set {
		return
	}
	if v.Null {
		*dst = nil
		return
	}
	ms := v.Value
	*dst = &ms
}
