package game

import (
	"fmt"
	"math"
)

func applyBeginScenario(n State, a Action) ([]Event, State, Diff, error) {
	if !a.FromHost {
		return nil, n, Diff{}, ErrNotHost
	}
	if n.Phase != PhaseExploration && n.Phase != PhaseInterrogation {
		return nil, n, Diff{}, ErrWrongPhase
	}
	def, ok := Scenarios[a.ScenarioID]
	if !ok {
		return nil, n, Diff{}, fmt.Errorf("%w: unknown scenario %q", ErrInvalidAction, a.ScenarioID)
	}
	n.Phase = PhaseScenario
	n.Scenario = &ScenarioState{
		ScenarioID: def.ID,
		Prompt:     def.Prompt,
		Options:    append([]ScenarioOption(nil), def.Options...),
		Required:   n.alivePlayerIDs(),
		Choices:    map[string]string{},
	}
	n.idleTurns()
	n.Turn.Mode = TurnResolving
	n.Turn.LimitSec = n.Rules.ScenarioLimitSec

	events := []Event{
		{Type: EvtScenarioStarted, ScenarioID: def.ID},
		{Type: EvtPhaseChanged, Phase: PhaseScenario},
	}
	d := Diff{Phase: &n.Phase, Turn: &n.Turn, Scenario: n.Scenario}
	return events, n, d, nil
}

func applyScenarioChoice(n State, a Action) ([]Event, State, Diff, error) {
	if n.Phase != PhaseScenario || n.Scenario == nil {
		return nil, n, Diff{}, ErrWrongPhase
	}
	sc := n.Scenario
	if sc.Resolved {
		return nil, n, Diff{}, fmt.Errorf("%w: scenario already resolved", ErrInvalidAction)
	}
	if a.ScenarioID != "" && a.ScenarioID != sc.ScenarioID {
		return nil, n, Diff{}, fmt.Errorf("%w: stale scenario id", ErrInvalidAction)
	}
	required := false
	for _, id := range sc.Required {
		if id == a.PlayerID {
			required = true
			break
		}
	}
	if !required {
		return nil, n, Diff{}, fmt.Errorf("%w: you are not part of this choice", ErrInvalidAction)
	}
	valid := false
	for _, opt := range sc.Options {
		if opt.ID == a.ChoiceID {
			valid = true
			break
		}
	}
	if !valid {
		return nil, n, Diff{}, fmt.Errorf("%w: unknown choice %q", ErrInvalidAction, a.ChoiceID)
	}

	// Re-submitting overwrites; the round resolves once everyone has chosen.
	sc.Choices[a.PlayerID] = a.ChoiceID
	events := []Event{{Type: EvtChoiceSubmitted, PlayerID: a.PlayerID, ScenarioID: sc.ScenarioID, ChoiceID: a.ChoiceID}}

	if len(sc.Choices) >= len(sc.Required) {
		more, n2, d, err := resolveScenario(n)
		if err != nil {
			return nil, n, Diff{}, err
		}
		return append(events, more...), n2, d, nil
	}
	d := Diff{Scenario: sc}
	return events, n, d, nil
}

// resolveScenario tallies submitted votes. The leading option wins if it
// reaches the configured majority share of the votes cast; ties and
// too-scattered votes fall back to the scenario's fallback outcome.
func resolveScenario(n State) ([]Event, State, Diff, error) {
	sc := n.Scenario
	def := Scenarios[sc.ScenarioID]

	counts := map[string]int{}
	for _, choice := range sc.Choices {
		counts[choice]++
	}
	winner := ""
	best := 0
	for _, opt := range def.Options { // option order breaks ties
		if c := counts[opt.ID]; c > best {
			best = c
			winner = opt.ID
		}
	}
	majority := n.Rules.ScenarioMajority
	if majority <= 0 {
		majority = 0.5
	}
	needed := int(math.Ceil(majority * float64(len(sc.Choices))))
	if len(sc.Choices) == 0 || best < needed {
		winner = ""
	}

	outcome, ok := def.Outcomes[winner]
	if !ok {
		for _, o := range def.Outcomes {
			if o.Fallback {
				outcome = o
				break
			}
		}
	}

	sc.Resolved = true
	sc.Outcome = outcome.Text
	sc.OutcomeID = outcome.ID

	events := []Event{{Type: EvtScenarioResolved, ScenarioID: sc.ScenarioID, Message: outcome.Text}}
	key := "scenario:" + sc.ScenarioID + ":" + outcome.ID
	if (outcome.Gold != 0 || outcome.XP != 0) && n.grantReward(key, outcome.Gold, outcome.XP, n.allPlayerIDs()) {
		events = append(events, Event{Type: EvtRewardGranted, Amount: outcome.Gold, Message: fmt.Sprintf("%d gold, %d xp", outcome.Gold, outcome.XP)})
	}
	if outcome.ClueID != "" {
		// Resolution outcomes are public: the clue lands in everyone's set.
		for id, k := range n.Knowledge {
			if !k.HasClue(outcome.ClueID) {
				k.Clues = append(k.Clues, outcome.ClueID)
				n.Knowledge[id] = k
			}
		}
	}

	n.Phase = PhaseExploration
	if n.Exploration == nil {
		n.Exploration = &ExplorationState{LocationID: StartLocation, Visited: []string{StartLocation}}
	}
	n.idleTurns()
	events = append(events, Event{Type: EvtPhaseChanged, Phase: PhaseExploration})

	d := Diff{Phase: &n.Phase, Turn: &n.Turn, Players: n.Players, Scenario: sc, Exploration: n.Exploration}
	return events, n, d, nil
}
