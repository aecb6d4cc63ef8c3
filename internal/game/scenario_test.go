package game

import (
	"errors"
	"testing"
	"time"
)

func inScenario(t *testing.T, players ...string) State {
	t.Helper()
	s := startedState(t, players...)
	_, s, _, err := Apply(s, Action{Type: ActBeginScenario, PlayerID: players[0], FromHost: true, ScenarioID: "bridge_toll", Now: time.Now()})
	if err != nil {
		t.Fatalf("begin scenario: %v", err)
	}
	return s
}

func choose(t *testing.T, s State, playerID, choiceID string) ([]Event, State) {
	t.Helper()
	events, next, _, err := Apply(s, Action{Type: ActScenarioChoice, PlayerID: playerID, ChoiceID: choiceID, Now: time.Now()})
	if err != nil {
		t.Fatalf("choice %s by %s: %v", choiceID, playerID, err)
	}
	return events, next
}

func TestScenario_ResolvesOnceEveryoneHasChosen(t *testing.T) {
	s := inScenario(t, "h", "p1", "p2")
	if s.Turn.Mode != TurnResolving {
		t.Fatalf("want resolving mode while the choice is open, got %q", s.Turn.Mode)
	}
	if s.Turn.Actor() != "" {
		t.Fatalf("no single player holds the turn during a collective choice")
	}

	_, s = choose(t, s, "h", "secret")
	if s.Scenario.Resolved {
		t.Fatalf("resolved with votes outstanding")
	}
	_, s = choose(t, s, "p1", "secret")
	events, s := choose(t, s, "p2", "pay")

	if !s.Scenario.Resolved {
		t.Fatalf("not resolved after final vote")
	}
	if !containsEvent(events, EvtScenarioResolved) {
		t.Fatalf("expected resolution event, got %+v", events)
	}
	// 2/3 for "secret" clears the default 0.5 majority.
	if s.Scenario.OutcomeID != "traded_secret" {
		t.Fatalf("want traded_secret, got %q", s.Scenario.OutcomeID)
	}
	if s.Phase != PhaseExploration {
		t.Fatalf("want exploration after resolution, got %v", s.Phase)
	}
	if s.Turn.Mode != TurnIdle {
		t.Fatalf("want idle turns after resolution, got %q", s.Turn.Mode)
	}
	// The traded clue is public knowledge.
	for id, k := range s.Knowledge {
		if !k.HasClue("ash_footprints") {
			t.Fatalf("player %s missing the public clue", id)
		}
	}
}

func TestScenario_ResubmitOverwritesPriorChoice(t *testing.T) {
	s := inScenario(t, "h", "p1")

	_, s = choose(t, s, "h", "pay")
	// Reconsider before the round closes.
	goldBefore := s.Player("h").Gold
	_, s = choose(t, s, "h", "force")
	_, s = choose(t, s, "p1", "force")

	if s.Scenario.OutcomeID != "forced_crossing" {
		t.Fatalf("want forced_crossing, got %q", s.Scenario.OutcomeID)
	}
	if s.Player("h").Gold != goldBefore {
		t.Fatalf("the overwritten pay vote still cost gold")
	}
}

func TestScenario_TieFallsBackAndOptionOrderBreaksWins(t *testing.T) {
	t.Run("even split below majority", func(t *testing.T) {
		s := inScenario(t, "h", "p1", "p2", "p3")
		s.Rules.ScenarioMajority = 0.6
		_, s = choose(t, s, "h", "pay")
		_, s = choose(t, s, "p1", "pay")
		_, s = choose(t, s, "p2", "force")
		_, s = choose(t, s, "p3", "force")
		if s.Scenario.OutcomeID != "standoff" {
			t.Fatalf("want fallback standoff, got %q", s.Scenario.OutcomeID)
		}
	})
	t.Run("even split at default majority takes earlier option", func(t *testing.T) {
		s := inScenario(t, "h", "p1")
		_, s = choose(t, s, "h", "secret")
		_, s = choose(t, s, "p1", "force")
		// 1/2 each reaches ceil(0.5*2)=1; "secret" is listed before "force".
		if s.Scenario.OutcomeID != "traded_secret" {
			t.Fatalf("want traded_secret on tie, got %q", s.Scenario.OutcomeID)
		}
	})
}

func TestScenario_TimeoutResolvesWithPartialVotes(t *testing.T) {
	s := inScenario(t, "h", "p1", "p2")
	_, s = choose(t, s, "h", "force")

	events, next, _, err := Apply(s, Action{Type: ActTimeoutPass, Now: time.Now()})
	if err != nil {
		t.Fatalf("timeout: %v", err)
	}
	if !next.Scenario.Resolved {
		t.Fatalf("timeout did not resolve the scenario")
	}
	if !containsEvent(events, EvtScenarioResolved) {
		t.Fatalf("expected resolution event, got %+v", events)
	}
	// The sole vote is unanimous among votes cast.
	if next.Scenario.OutcomeID != "forced_crossing" {
		t.Fatalf("want forced_crossing, got %q", next.Scenario.OutcomeID)
	}
}

func TestScenario_TimeoutWithNoVotesTakesFallback(t *testing.T) {
	s := inScenario(t, "h", "p1")
	_, next, _, err := Apply(s, Action{Type: ActTimeoutPass, Now: time.Now()})
	if err != nil {
		t.Fatalf("timeout: %v", err)
	}
	if next.Scenario.OutcomeID != "standoff" {
		t.Fatalf("want standoff with no votes, got %q", next.Scenario.OutcomeID)
	}
}

func TestScenario_RejectsOutsiderAndUnknownChoice(t *testing.T) {
	s := inScenario(t, "h", "p1")

	_, _, _, err := Apply(s, Action{Type: ActScenarioChoice, PlayerID: "ghost", ChoiceID: "pay"})
	if !errors.Is(err, ErrInvalidAction) {
		t.Fatalf("outsider: want ErrInvalidAction, got %v", err)
	}
	_, _, _, err = Apply(s, Action{Type: ActScenarioChoice, PlayerID: "h", ChoiceID: "bribe"})
	if !errors.Is(err, ErrInvalidAction) {
		t.Fatalf("unknown choice: want ErrInvalidAction, got %v", err)
	}
}

func TestScenario_RewardIsIdempotentPerOutcome(t *testing.T) {
	s := inScenario(t, "h", "p1")
	_, s = choose(t, s, "h", "force")
	_, s = choose(t, s, "p1", "force")

	xp := s.Player("h").XP
	if xp == 0 {
		t.Fatalf("forced crossing should grant xp")
	}
	key := "scenario:bridge_toll:forced_crossing"
	if s.grantReward(key, 0, 50, s.allPlayerIDs()) {
		t.Fatalf("duplicate scenario reward was applied")
	}
	if s.Player("h").XP != xp {
		t.Fatalf("xp changed on duplicate delivery")
	}
}
