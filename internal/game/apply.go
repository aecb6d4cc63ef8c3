package game

import (
	"fmt"
)

// Apply is the single mutation entry point: a pure function from (state,
// action) to (events, new state, diff). The input state is never modified; on
// error the original state comes back with an empty diff.
func Apply(s State, a Action) ([]Event, State, Diff, error) {
	n := s.Clone()

	switch a.Type {
	case ActStartGame:
		return applyStartGame(n, a)
	case ActAdvancePhase:
		return applyAdvancePhase(n, a)
	case ActBeginBattle:
		return applyBeginBattle(n, a)
	case ActBeginScenario:
		return applyBeginScenario(n, a)
	case ActAttack, ActUseAbility, ActDefend, ActFlee:
		return applyBattleAction(n, a)
	case ActTimeoutPass:
		return applyTimeout(n, a)
	case ActMove:
		return applyMove(n, a)
	case ActInvestigate:
		return applyInvestigate(n, a)
	case ActShareClue:
		return applyShareClue(n, a)
	case ActAskQuestion:
		return applyAskQuestion(n, a)
	case ActScenarioChoice:
		return applyScenarioChoice(n, a)
	default:
		return nil, s, Diff{}, fmt.Errorf("%w: unknown action %q", ErrInvalidAction, a.Type)
	}
}

// AddPlayer registers a joining member in the shared state. Stats stay zero
// until the game starts; class may be reassigned in the lobby.
func (s *State) AddPlayer(id, name, class string) {
	if s.Player(id) != nil {
		return
	}
	if _, ok := Classes[class]; !ok {
		class = "wanderer"
	}
	s.Players = append(s.Players, PlayerState{ID: id, Name: name, Class: class})
	if _, ok := s.Knowledge[id]; !ok {
		s.Knowledge[id] = PlayerKnowledge{}
	}
}

// RemovePlayer drops a departed member. Their knowledge is discarded; shared
// clue copies held by others survive.
func (s *State) RemovePlayer(id string) {
	for i := range s.Players {
		if s.Players[i].ID == id {
			s.Players = append(s.Players[:i], s.Players[i+1:]...)
			break
		}
	}
	delete(s.Knowledge, id)
	for i, pid := range s.Turn.Order {
		if pid == id {
			s.Turn.Order = append(s.Turn.Order[:i], s.Turn.Order[i+1:]...)
			if s.Turn.Index > i || s.Turn.Index >= len(s.Turn.Order) {
				if s.Turn.Index > 0 {
					s.Turn.Index--
				}
			}
			s.Turn.Generation++
			break
		}
	}
	if s.Scenario != nil && !s.Scenario.Resolved {
		for i, pid := range s.Scenario.Required {
			if pid == id {
				s.Scenario.Required = append(s.Scenario.Required[:i], s.Scenario.Required[i+1:]...)
				break
			}
		}
		delete(s.Scenario.Choices, id)
	}
}

func applyStartGame(n State, a Action) ([]Event, State, Diff, error) {
	if !a.FromHost {
		return nil, n, Diff{}, ErrNotHost
	}
	if n.Phase != PhaseLobby {
		return nil, n, Diff{}, fmt.Errorf("%w: game already started", ErrWrongPhase)
	}
	if len(n.Players) < 2 {
		return nil, n, Diff{}, fmt.Errorf("%w: need at least 2 players", ErrInvalidAction)
	}
	for i := range n.Players {
		c := Classes[n.Players[i].Class]
		n.Players[i].HP = c.HP
		n.Players[i].MaxHP = c.HP
		n.Players[i].Mana = c.Mana
		n.Players[i].MaxMana = c.Mana
		n.Players[i].Speed = c.Speed
		n.Players[i].Attack = c.Attack
		n.Players[i].Defense = c.Defense
	}
	n.Phase = PhaseInterrogation
	n.Interrogation = &InterrogationState{SuspectID: "night_warden", QuestionsRemaining: 5}
	n.idleTurns()

	events := []Event{
		{Type: EvtGameStarted},
		{Type: EvtPhaseChanged, Phase: PhaseInterrogation},
	}
	d := Diff{Phase: &n.Phase, Turn: &n.Turn, Players: n.Players, Interrogation: n.Interrogation}
	return events, n, d, nil
}

func applyAdvancePhase(n State, a Action) ([]Event, State, Diff, error) {
	if !a.FromHost {
		return nil, n, Diff{}, ErrNotHost
	}
	target := Phase(a.TargetID)
	if target != PhaseExploration && target != PhaseInterrogation {
		return nil, n, Diff{}, fmt.Errorf("%w: cannot advance to %q", ErrInvalidAction, a.TargetID)
	}
	if n.Phase != PhaseInterrogation && n.Phase != PhaseExploration {
		return nil, n, Diff{}, ErrWrongPhase
	}
	n.Phase = target
	if target == PhaseExploration && n.Exploration == nil {
		n.Exploration = &ExplorationState{LocationID: StartLocation, Visited: []string{StartLocation}}
	}
	n.idleTurns()
	d := Diff{Phase: &n.Phase, Turn: &n.Turn, Exploration: n.Exploration}
	return []Event{{Type: EvtPhaseChanged, Phase: target}}, n, d, nil
}

// grantReward applies gold/XP to every listed player exactly once per key.
// Duplicate delivery (retries, replays) is a no-op.
func (s *State) grantReward(key string, gold, xp int, playerIDs []string) bool {
	if s.AppliedRewards[key] {
		return false
	}
	s.AppliedRewards[key] = true
	for _, id := range playerIDs {
		if p := s.Player(id); p != nil {
			p.Gold += gold
			p.XP += xp
		}
	}
	return true
}

func (s State) alivePlayerIDs() []string {
	ids := make([]string, 0, len(s.Players))
	for i := range s.Players {
		if s.Players[i].Alive() {
			ids = append(ids, s.Players[i].ID)
		}
	}
	return ids
}

func (s State) allPlayerIDs() []string {
	ids := make([]string, 0, len(s.Players))
	for i := range s.Players {
		ids = append(ids, s.Players[i].ID)
	}
	return ids
}
