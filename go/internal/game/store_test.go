package game

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/alias/go/internal/game/timer"
	"github.com/mcdev12/alias/go/internal/models"
)

var testEpoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// twoTeamRoom returns stores for p1 (Red) and p2 (Blue) that agree on the roster.
func twoTeamRoom(t *testing.T, fc clockwork.Clock) (*Store, *Store) {
	t.Helper()
	s1 := NewStore(fc, "p1")
	s2 := NewStore(fc, "p2")
	s1.SetRoomCode("AB12")
	s2.SetRoomCode("AB12")

	if !s1.ClaimTeam("Red") {
		t.Fatal("p1 could not claim Red")
	}
	s2.ApplyRemote(models.PatchFrom(s1.Snapshot()))
	if !s2.ClaimTeam("Blue") {
		t.Fatal("p2 could not claim Blue")
	}
	s1.ApplyRemote(models.PatchFrom(s2.Snapshot()))
	return s1, s2
}

func startWith(t *testing.T, s *Store, word string) {
	t.Helper()
	if !s.SetWord(models.Word{Word: word, Category: models.CategoryA2}) {
		t.Fatalf("SetWord(%q) rejected", word)
	}
	if !s.StartRound() {
		t.Fatal("StartRound rejected")
	}
}

func TestScoreAlwaysMatchesHistory(t *testing.T) {
	fc := clockwork.NewFakeClockAt(testEpoch)
	s1, _ := twoTeamRoom(t, fc)
	startWith(t, s1, "w0")

	outcomes := []bool{true, false, true, true, false, false, true}
	for i, ok := range outcomes {
		if res := s1.RecordOutcome(ok); res != RecordNextWord {
			t.Fatalf("outcome %d: got %v, want %v", i, res, RecordNextWord)
		}
		red := s1.Snapshot().Teams[0]
		if red.Score != ScoreOf(red.History) {
			t.Fatalf("after outcome %d: score %d, history says %d", i, red.Score, ScoreOf(red.History))
		}
		s1.SetWord(models.Word{Word: "next"})
	}

	red := s1.Snapshot().Teams[0]
	if red.Score != 4 || len(red.History) != len(outcomes) {
		t.Errorf("got score %d with %d entries, want 4 with %d", red.Score, len(red.History), len(outcomes))
	}
}

func TestAdvanceTurnWraps(t *testing.T) {
	fc := clockwork.NewFakeClockAt(testEpoch)
	s1, s2 := twoTeamRoom(t, fc)

	if !s1.AdvanceTurn() {
		t.Fatal("p1 could not end its turn")
	}
	if got := s1.Snapshot().CurrentTeamIndex; got != 1 {
		t.Fatalf("after one advance index = %d, want 1", got)
	}
	s2.ApplyRemote(models.PatchFrom(s1.Snapshot()))
	if !s2.AdvanceTurn() {
		t.Fatal("p2 could not end its turn")
	}
	if got := s2.Snapshot().CurrentTeamIndex; got != 0 {
		t.Fatalf("after two advances index = %d, want 0", got)
	}

	three := models.NewSession()
	for _, id := range []string{"p1", "p2", "p3"} {
		three.Teams = append(three.Teams, models.Team{Name: id, PlayerID: id, History: []models.HistoryEntry{}})
	}
	three.CurrentTeamIndex = 2
	s3 := NewStore(fc, "p3")
	s3.Adopt(three)
	s3.AdvanceTurn()
	if got := s3.Snapshot().CurrentTeamIndex; got != 0 {
		t.Errorf("with 3 teams index = %d, want 0", got)
	}
}

func TestAdvanceTurnOnlyByActingClient(t *testing.T) {
	fc := clockwork.NewFakeClockAt(testEpoch)
	s1, s2 := twoTeamRoom(t, fc)
	startWith(t, s1, "APPLE")
	s2.ApplyRemote(models.PatchFrom(s1.Snapshot()))

	if s2.AdvanceTurn() {
		t.Fatal("p2 ended p1's turn")
	}
	got := s2.Snapshot()
	if got.CurrentTeamIndex != 0 || got.Phase() != models.PhaseRunning {
		t.Errorf("index %d phase %s, want Red still running", got.CurrentTeamIndex, got.Phase())
	}
}

func TestAdvanceTurnClearsRound(t *testing.T) {
	fc := clockwork.NewFakeClockAt(testEpoch)
	s1, _ := twoTeamRoom(t, fc)
	startWith(t, s1, "APPLE")
	s1.Pause()

	s1.AdvanceTurn()
	got := s1.Snapshot()
	if got.IsGameStarted || got.IsOvertime || got.IsPaused || got.CurrentWord != nil ||
		got.RoundEndTime != nil || got.TimeLeftOnPause != nil {
		t.Errorf("round fields not cleared: %+v", got)
	}
	if got.Phase() != models.PhaseIdle {
		t.Errorf("phase = %s, want %s", got.Phase(), models.PhaseIdle)
	}
}

func TestPauseResume(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		want    int
	}{
		{name: "no time passes while paused", elapsed: 0, want: 50},
		{name: "time passes while paused", elapsed: 20 * time.Second, want: 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := clockwork.NewFakeClockAt(testEpoch)
			s1, _ := twoTeamRoom(t, fc)
			startWith(t, s1, "APPLE")
			fc.Advance(10 * time.Second)

			before := timer.Remaining(s1.Snapshot(), fc.Now())
			if !s1.Pause() {
				t.Fatal("Pause rejected")
			}
			fc.Advance(tt.elapsed)
			if got := timer.Remaining(s1.Snapshot(), fc.Now()); got != before {
				t.Errorf("paused display = %d, want %d", got, before)
			}
			if !s1.Resume() {
				t.Fatal("Resume rejected")
			}
			if got := timer.Remaining(s1.Snapshot(), fc.Now()); got != tt.want {
				t.Errorf("after resume remaining = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRunningTimeReducesRemaining(t *testing.T) {
	fc := clockwork.NewFakeClockAt(testEpoch)
	s1, _ := twoTeamRoom(t, fc)
	startWith(t, s1, "APPLE")

	s1.Pause()
	s1.Resume()
	fc.Advance(15 * time.Second)
	if got := timer.Remaining(s1.Snapshot(), fc.Now()); got != 45 {
		t.Errorf("remaining = %d, want 45", got)
	}
}

func TestPauseGuards(t *testing.T) {
	fc := clockwork.NewFakeClockAt(testEpoch)
	s1, s2 := twoTeamRoom(t, fc)

	if s1.Pause() {
		t.Error("Pause accepted without a running round")
	}
	if s1.Resume() {
		t.Error("Resume accepted while not paused")
	}

	startWith(t, s1, "APPLE")
	s2.ApplyRemote(models.PatchFrom(s1.Snapshot()))
	if s2.Pause() {
		t.Error("Pause accepted from the waiting team")
	}
	if !s1.Pause() {
		t.Fatal("Pause rejected for acting team")
	}
	if s1.Pause() {
		t.Error("second Pause accepted")
	}
}

func TestExpireIsIdempotent(t *testing.T) {
	fc := clockwork.NewFakeClockAt(testEpoch)
	s1, _ := twoTeamRoom(t, fc)
	startWith(t, s1, "APPLE")

	if s1.Expire() {
		t.Fatal("Expire accepted before the countdown reached zero")
	}
	fc.Advance(60 * time.Second)
	if !s1.Expire() {
		t.Fatal("Expire rejected at zero")
	}
	first := s1.Snapshot()
	if s1.Expire() {
		t.Error("second Expire accepted")
	}
	if diff := cmp.Diff(first, s1.Snapshot()); diff != "" {
		t.Errorf("second Expire changed state (-want +got):\n%s", diff)
	}
	if first.CurrentTeamIndex != 0 || first.Phase() != models.PhaseOvertime {
		t.Errorf("got index %d phase %s, want 0 %s", first.CurrentTeamIndex, first.Phase(), models.PhaseOvertime)
	}
}

func TestExpireOncePerRoundAfterRemoteReset(t *testing.T) {
	fc := clockwork.NewFakeClockAt(testEpoch)
	s1, _ := twoTeamRoom(t, fc)
	startWith(t, s1, "APPLE")
	fc.Advance(61 * time.Second)
	s1.Expire()

	// A stale snapshot arriving from a peer clears the overtime flag for the same round.
	stale := s1.Snapshot()
	stale.IsOvertime = false
	s1.ApplyRemote(models.PatchFrom(stale))

	if s1.Expire() {
		t.Error("Expire fired twice for the same round")
	}
}

func TestExpireOnlyForActingClient(t *testing.T) {
	fc := clockwork.NewFakeClockAt(testEpoch)
	s1, s2 := twoTeamRoom(t, fc)
	startWith(t, s1, "APPLE")
	s2.ApplyRemote(models.PatchFrom(s1.Snapshot()))
	fc.Advance(60 * time.Second)

	if s2.Expire() {
		t.Error("waiting client expired the round")
	}
}

func TestOutOfTurnActionsAreInert(t *testing.T) {
	fc := clockwork.NewFakeClockAt(testEpoch)
	s1, s2 := twoTeamRoom(t, fc)
	startWith(t, s1, "APPLE")
	s2.ApplyRemote(models.PatchFrom(s1.Snapshot()))
	before := s2.Snapshot()

	if res := s2.RecordOutcome(true); res != RecordRejected {
		t.Errorf("RecordOutcome = %v, want %v", res, RecordRejected)
	}
	if s2.SetWord(models.Word{Word: "CHEAT"}) {
		t.Error("SetWord accepted out of turn")
	}
	if s2.StartRound() {
		t.Error("StartRound accepted out of turn")
	}
	if diff := cmp.Diff(before, s2.Snapshot()); diff != "" {
		t.Errorf("state changed (-want +got):\n%s", diff)
	}
}

func TestRecordOutcomeRequiresWordAndLiveRound(t *testing.T) {
	fc := clockwork.NewFakeClockAt(testEpoch)
	s1, _ := twoTeamRoom(t, fc)

	s1.SetWord(models.Word{Word: "APPLE"})
	if res := s1.RecordOutcome(true); res != RecordRejected {
		t.Errorf("idle RecordOutcome = %v, want rejected", res)
	}
	s1.StartRound()
	s1.RecordOutcome(true)
	if res := s1.RecordOutcome(true); res != RecordRejected {
		t.Errorf("RecordOutcome without a word = %v, want rejected", res)
	}
	s1.SetWord(models.Word{Word: "PEAR"})
	s1.Pause()
	if res := s1.RecordOutcome(true); res != RecordRejected {
		t.Errorf("paused RecordOutcome = %v, want rejected", res)
	}
}

func TestStartRoundRequiresWord(t *testing.T) {
	fc := clockwork.NewFakeClockAt(testEpoch)
	s1, _ := twoTeamRoom(t, fc)
	if s1.StartRound() {
		t.Fatal("StartRound accepted without a word")
	}
	startWith(t, s1, "APPLE")
	if s1.StartRound() {
		t.Error("StartRound accepted while running")
	}
	want := testEpoch.UnixMilli() + 60_000
	if got := *s1.Snapshot().RoundEndTime; got != want {
		t.Errorf("roundEndTime = %d, want %d", got, want)
	}
}

func TestSetRoundDuration(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{in: 30, want: 60},
		{in: 60, want: 60},
		{in: 94, want: 90},
		{in: 95, want: 100},
		{in: 120, want: 120},
		{in: 180, want: 180},
		{in: 600, want: 180},
	}
	for _, tt := range tests {
		fc := clockwork.NewFakeClockAt(testEpoch)
		s1, _ := twoTeamRoom(t, fc)
		s1.SetRoundDuration(tt.in)
		if got := s1.Snapshot().RoundDuration; got != tt.want {
			t.Errorf("SetRoundDuration(%d) -> %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestSetRoundDurationOnlyWhenIdle(t *testing.T) {
	fc := clockwork.NewFakeClockAt(testEpoch)
	s1, s2 := twoTeamRoom(t, fc)
	if s2.SetRoundDuration(120) {
		t.Error("waiting team changed the duration")
	}
	startWith(t, s1, "APPLE")
	if s1.SetRoundDuration(120) {
		t.Error("duration changed during a round")
	}
}

func TestToggleCategory(t *testing.T) {
	fc := clockwork.NewFakeClockAt(testEpoch)
	s := NewStore(fc, "p1")

	s.ToggleCategory(models.CategoryAPI)
	if diff := cmp.Diff([]string{"API"}, s.Snapshot().SelectedCategories); diff != "" {
		t.Fatalf("after API (-want +got):\n%s", diff)
	}
	s.ToggleCategory(models.CategoryA2)
	if diff := cmp.Diff([]string{"A2"}, s.Snapshot().SelectedCategories); diff != "" {
		t.Fatalf("after A2 (-want +got):\n%s", diff)
	}
	if s.ToggleCategory(models.CategoryA2) {
		t.Error("removed the last category")
	}
	if diff := cmp.Diff([]string{"A2"}, s.Snapshot().SelectedCategories); diff != "" {
		t.Errorf("selection changed (-want +got):\n%s", diff)
	}

	s.ToggleCategory(models.CategoryB1)
	s.ToggleCategory(models.CategoryA2)
	if diff := cmp.Diff([]string{"B1"}, s.Snapshot().SelectedCategories); diff != "" {
		t.Errorf("after B1, -A2 (-want +got):\n%s", diff)
	}
	if s.ToggleCategory("C1") {
		t.Error("unknown category accepted")
	}
}

func TestClaimTeam(t *testing.T) {
	fc := clockwork.NewFakeClockAt(testEpoch)
	s1, _ := twoTeamRoom(t, fc)
	if s1.ClaimTeam("Green") {
		t.Error("player claimed a second team")
	}

	s3 := NewStore(fc, "p3")
	s3.Adopt(s1.Snapshot())
	if s3.ClaimTeam("Green") {
		t.Error("claimed a third team")
	}

	s4 := NewStore(fc, "p4")
	if s4.ClaimTeam("   ") {
		t.Error("claimed a team with a blank name")
	}
}

func TestNewRoundScenario(t *testing.T) {
	fc := clockwork.NewFakeClockAt(testEpoch)
	s := NewStore(fc, "p1")
	s.SetRoomCode("AB12")

	sess := models.NewSession()
	sess.Teams = []models.Team{
		{Name: "Red", PlayerID: "p1", History: correct(3)},
		{Name: "Blue", PlayerID: "p2", History: correct(5)},
	}
	sess.CurrentTeamIndex = 1
	sess.IsGameStarted = true
	s.Adopt(sess)
	if got := s.Snapshot().Teams[1].Score; got != 5 {
		t.Fatalf("Blue score = %d, want 5", got)
	}

	if !s.NewRound() {
		t.Fatal("NewRound rejected for a member")
	}
	got := s.Snapshot()
	want := []models.Team{
		{Name: "Red", PlayerID: "p1", Score: 0, History: []models.HistoryEntry{}},
		{Name: "Blue", PlayerID: "p2", Score: 0, History: []models.HistoryEntry{}},
	}
	if diff := cmp.Diff(want, got.Teams); diff != "" {
		t.Errorf("teams (-want +got):\n%s", diff)
	}
	if got.CurrentTeamIndex != 0 || got.IsGameStarted {
		t.Errorf("index %d started %v, want 0 false", got.CurrentTeamIndex, got.IsGameStarted)
	}
	if got.RoomCode != "AB12" {
		t.Errorf("room code = %q, want AB12", got.RoomCode)
	}
}

func TestResetAllMembership(t *testing.T) {
	fc := clockwork.NewFakeClockAt(testEpoch)
	s1, _ := twoTeamRoom(t, fc)

	outsider := NewStore(fc, "p9")
	outsider.Adopt(s1.Snapshot())
	if outsider.ResetAll() || outsider.NewRound() {
		t.Error("non-member reset the game")
	}

	if !s1.ResetAll() {
		t.Fatal("ResetAll rejected for a member")
	}
	got := s1.Snapshot()
	if len(got.Teams) != 0 || got.RoomCode != "AB12" {
		t.Errorf("got %d teams room %q, want 0 teams room AB12", len(got.Teams), got.RoomCode)
	}
}

func TestApplyRemoteKeepsLocalFields(t *testing.T) {
	fc := clockwork.NewFakeClockAt(testEpoch)
	s := NewStore(fc, "p1")
	s.SetRoomCode("AB12")
	s.ToggleCategory(models.CategoryB2)

	// An older sender knows nothing about categories, pause or duration.
	s.ApplyRemote(models.SessionPatch{
		Teams: models.Some([]models.Team{{Name: "Red", PlayerID: "p2", Score: 7, History: correct(2)}}),
	})

	got := s.Snapshot()
	if diff := cmp.Diff([]string{"A2", "B2"}, got.SelectedCategories); diff != "" {
		t.Errorf("categories (-want +got):\n%s", diff)
	}
	if got.RoomCode != "AB12" || s.PlayerID() != "p1" {
		t.Errorf("local identity overwritten: room %q player %q", got.RoomCode, s.PlayerID())
	}
	if got.Teams[0].Score != 2 {
		t.Errorf("score = %d, want it recomputed to 2", got.Teams[0].Score)
	}
}

func TestOnChangeNotifiesAppliedChanges(t *testing.T) {
	fc := clockwork.NewFakeClockAt(testEpoch)
	s := NewStore(fc, "p1")
	var seen []models.Session
	s.OnChange(func(sess models.Session) { seen = append(seen, sess) })

	s.ClaimTeam("Red")
	s.Pause()
	if len(seen) != 1 || seen[0].Teams[0].Name != "Red" {
		t.Errorf("got %d notifications, want 1 for the claim", len(seen))
	}
}

func TestRecentFirst(t *testing.T) {
	h := []models.HistoryEntry{{Word: "a"}, {Word: "b", IsCorrect: true}, {Word: "c"}}
	want := []models.HistoryEntry{{Word: "c"}, {Word: "b", IsCorrect: true}, {Word: "a"}}
	if diff := cmp.Diff(want, RecentFirst(h)); diff != "" {
		t.Errorf("RecentFirst (-want +got):\n%s", diff)
	}
	if h[0].Word != "a" {
		t.Error("RecentFirst modified its input")
	}
}

func correct(n int) []models.HistoryEntry {
	h := make([]models.HistoryEntry, n)
	for i := range h {
		h[i] = models.HistoryEntry{Word: "w", IsCorrect: true}
	}
	return h
}
