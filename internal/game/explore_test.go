package game

import (
	"errors"
	"testing"
	"time"
)

func exploring(t *testing.T, players ...string) State {
	t.Helper()
	s := startedState(t, players...)
	_, s, _, err := Apply(s, Action{Type: ActAdvancePhase, PlayerID: players[0], FromHost: true, TargetID: string(PhaseExploration)})
	if err != nil {
		t.Fatalf("advance to exploration: %v", err)
	}
	return s
}

func TestMove_FollowsLinksOnly(t *testing.T) {
	s := exploring(t, "h", "p1")

	_, _, _, err := Apply(s, Action{Type: ActMove, PlayerID: "h", LocationID: "crypt"})
	if !errors.Is(err, ErrInvalidAction) {
		t.Fatalf("crossroads->crypt has no path, want ErrInvalidAction, got %v", err)
	}

	_, next, _, err := Apply(s, Action{Type: ActMove, PlayerID: "h", LocationID: "old_chapel"})
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if next.Exploration.LocationID != "old_chapel" {
		t.Fatalf("party did not move: at %s", next.Exploration.LocationID)
	}
	found := false
	for _, v := range next.Exploration.Visited {
		if v == "old_chapel" {
			found = true
		}
	}
	if !found {
		t.Fatalf("visited list missing old_chapel: %v", next.Exploration.Visited)
	}
}

func TestMove_IntoCryptTriggersAmbushOnce(t *testing.T) {
	s := exploring(t, "h", "p1")
	var err error
	_, s, _, err = Apply(s, Action{Type: ActMove, PlayerID: "h", LocationID: "old_chapel"})
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	events, s, _, err := Apply(s, Action{Type: ActMove, PlayerID: "h", LocationID: "crypt", Now: time.Now()})
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if s.Phase != PhaseBattle {
		t.Fatalf("want ambush battle, got phase %v", s.Phase)
	}
	if !containsEvent(events, EvtBattleStarted) {
		t.Fatalf("expected battle start, got %+v", events)
	}
	if s.Battle.EnemyID != "hollow_stalker" {
		t.Fatalf("wrong ambusher: %s", s.Battle.EnemyID)
	}

	// Win, return, and re-enter: the guard does not respawn.
	s.Battle.EnemyHP = 1
	_, s, _, err = Apply(s, Action{Type: ActAttack, PlayerID: s.Turn.Actor(), Now: time.Now()})
	if err != nil {
		t.Fatalf("finishing attack: %v", err)
	}
	if s.Phase != PhaseExploration {
		t.Fatalf("want exploration after victory, got %v", s.Phase)
	}
	_, s, _, err = Apply(s, Action{Type: ActMove, PlayerID: "h", LocationID: "old_chapel"})
	if err != nil {
		t.Fatalf("move back: %v", err)
	}
	_, s, _, err = Apply(s, Action{Type: ActMove, PlayerID: "h", LocationID: "crypt", Now: time.Now()})
	if err != nil {
		t.Fatalf("re-enter: %v", err)
	}
	if s.Phase != PhaseExploration {
		t.Fatalf("defeated guard ambushed again")
	}
}

func TestInvestigate_DiscoveryIsPrivate(t *testing.T) {
	s := exploring(t, "h", "p1")
	var err error
	_, s, _, err = Apply(s, Action{Type: ActMove, PlayerID: "h", LocationID: "guild_hall"})
	if err != nil {
		t.Fatalf("move: %v", err)
	}

	events, s, _, err := Apply(s, Action{Type: ActInvestigate, PlayerID: "h"})
	if err != nil {
		t.Fatalf("investigate: %v", err)
	}
	if !containsEvent(events, EvtClueDiscovered) {
		t.Fatalf("expected a discovery, got %+v", events)
	}
	if !s.Knowledge["h"].HasClue("torn_ledger") {
		t.Fatalf("discoverer missing the clue")
	}
	if s.Knowledge["p1"].HasClue("torn_ledger") {
		t.Fatalf("clue leaked to a teammate")
	}

	// Repeat investigations walk the location's clue list, then run dry.
	_, s, _, err = Apply(s, Action{Type: ActInvestigate, PlayerID: "h"})
	if err != nil {
		t.Fatalf("second investigate: %v", err)
	}
	if !s.Knowledge["h"].HasClue("brass_key") {
		t.Fatalf("second clue not found")
	}
	events, _, _, err = Apply(s, Action{Type: ActInvestigate, PlayerID: "h"})
	if err != nil {
		t.Fatalf("third investigate: %v", err)
	}
	if len(events) != 1 || events[0].ClueID != "" {
		t.Fatalf("expected an empty-handed result, got %+v", events)
	}
}

func TestShareClue_CopiesOneWay(t *testing.T) {
	s := exploring(t, "h", "p1")
	k := s.Knowledge["h"]
	k.Clues = []string{"brass_key"}
	s.Knowledge["h"] = k

	events, next, _, err := Apply(s, Action{Type: ActShareClue, PlayerID: "h", TargetID: "p1", ClueID: "brass_key"})
	if err != nil {
		t.Fatalf("share: %v", err)
	}
	if !containsEvent(events, EvtClueShared) {
		t.Fatalf("expected share event, got %+v", events)
	}
	if !next.Knowledge["p1"].HasClue("brass_key") {
		t.Fatalf("recipient did not receive the clue")
	}
	if !next.Knowledge["h"].HasClue("brass_key") {
		t.Fatalf("sharer lost their own clue")
	}

	_, _, _, err = Apply(s, Action{Type: ActShareClue, PlayerID: "p1", TargetID: "h", ClueID: "brass_key"})
	if !errors.Is(err, ErrInvalidAction) {
		t.Fatalf("sharing an unheld clue: want ErrInvalidAction, got %v", err)
	}
}

func TestAskQuestion_BudgetAndNoRepeats(t *testing.T) {
	s := startedState(t, "h", "p1")
	if s.Interrogation.QuestionsRemaining != 5 {
		t.Fatalf("want 5 questions, got %d", s.Interrogation.QuestionsRemaining)
	}

	events, s, _, err := Apply(s, Action{Type: ActAskQuestion, PlayerID: "p1", QuestionID: "ask_ledger"})
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if s.Interrogation.QuestionsRemaining != 4 {
		t.Fatalf("budget not spent: %d", s.Interrogation.QuestionsRemaining)
	}
	if !containsEvent(events, EvtClueDiscovered) {
		t.Fatalf("expected the answer clue, got %+v", events)
	}
	if !s.Knowledge["p1"].HasClue("torn_ledger") {
		t.Fatalf("asker missing the answer clue")
	}
	if s.Knowledge["h"].HasClue("torn_ledger") {
		t.Fatalf("answer leaked to the room")
	}

	_, _, _, err = Apply(s, Action{Type: ActAskQuestion, PlayerID: "h", QuestionID: "ask_ledger"})
	if !errors.Is(err, ErrInvalidAction) {
		t.Fatalf("repeat question: want ErrInvalidAction, got %v", err)
	}

	s.Interrogation.QuestionsRemaining = 0
	_, _, _, err = Apply(s, Action{Type: ActAskQuestion, PlayerID: "h", QuestionID: "ask_key"})
	if !errors.Is(err, ErrNotEnoughResource) {
		t.Fatalf("exhausted budget: want ErrNotEnoughResource, got %v", err)
	}
}
