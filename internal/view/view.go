// Package view is the asymmetric-information gate: every payload that leaves
// the room passes through here so a player only ever sees their own clues and
// never another player's unresolved choice.
package view

import "github.com/veilbound/veilbound-backend/internal/game"

// ClueView is a clue the player is allowed to read.
type ClueView struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// ScenarioView hides everyone's picks behind a has-chosen flag until the
// round resolves. The player's own pending choice is echoed back to them.
type ScenarioView struct {
	ScenarioID string                `json:"scenario_id"`
	Prompt     string                `json:"prompt"`
	Options    []game.ScenarioOption `json:"options"`
	Chosen     map[string]bool       `json:"chosen"`
	YourChoice string                `json:"your_choice,omitempty"`
	Resolved   bool                  `json:"resolved"`
	Outcome    string                `json:"outcome,omitempty"`
}

// PlayerView is the per-player projection of the shared state. Derived on
// demand, never stored.
type PlayerView struct {
	Phase         game.Phase               `json:"phase"`
	Turn          game.TurnState           `json:"turn"`
	IsYourTurn    bool                     `json:"is_your_turn"`
	Players       []game.PlayerState       `json:"players"`
	Battle        *game.BattleState        `json:"battle,omitempty"`
	Scenario      *ScenarioView            `json:"scenario,omitempty"`
	Exploration   *game.ExplorationState   `json:"exploration,omitempty"`
	Interrogation *game.InterrogationState `json:"interrogation,omitempty"`
	Clues         []ClueView               `json:"clues"`
}

// ViewDiff mirrors game.Diff with the scenario sub-state filtered.
type ViewDiff struct {
	Phase         *game.Phase              `json:"phase,omitempty"`
	Turn          *game.TurnState          `json:"turn,omitempty"`
	Players       []game.PlayerState       `json:"players,omitempty"`
	Battle        *game.BattleState        `json:"battle,omitempty"`
	Scenario      *ScenarioView            `json:"scenario,omitempty"`
	Exploration   *game.ExplorationState   `json:"exploration,omitempty"`
	Interrogation *game.InterrogationState `json:"interrogation,omitempty"`
}

// ProjectForPlayer computes what playerID may see of the shared state.
func ProjectForPlayer(s game.State, playerID string) PlayerView {
	v := PlayerView{
		Phase:         s.Phase,
		Turn:          s.Turn,
		IsYourTurn:    s.Turn.Actor() == playerID,
		Players:       s.Players,
		Battle:        s.Battle,
		Exploration:   s.Exploration,
		Interrogation: s.Interrogation,
		Scenario:      projectScenario(s.Scenario, playerID),
		Clues:         projectClues(s.Knowledge[playerID]),
	}
	return v
}

// FilterDiff gates a broadcast diff for one recipient.
func FilterDiff(d game.Diff, playerID string) ViewDiff {
	return ViewDiff{
		Phase:         d.Phase,
		Turn:          d.Turn,
		Players:       d.Players,
		Battle:        d.Battle,
		Scenario:      projectScenario(d.Scenario, playerID),
		Exploration:   d.Exploration,
		Interrogation: d.Interrogation,
	}
}

func projectScenario(sc *game.ScenarioState, playerID string) *ScenarioView {
	if sc == nil {
		return nil
	}
	chosen := make(map[string]bool, len(sc.Choices))
	for pid := range sc.Choices {
		chosen[pid] = true
	}
	v := &ScenarioView{
		ScenarioID: sc.ScenarioID,
		Prompt:     sc.Prompt,
		Options:    sc.Options,
		Chosen:     chosen,
		Resolved:   sc.Resolved,
	}
	if c, ok := sc.Choices[playerID]; ok {
		v.YourChoice = c
	}
	if sc.Resolved {
		v.Outcome = sc.Outcome
	}
	return v
}

func projectClues(k game.PlayerKnowledge) []ClueView {
	out := make([]ClueView, 0, len(k.Clues))
	for _, id := range k.Clues {
		if def, ok := game.Clues[id]; ok {
			out = append(out, ClueView{ID: def.ID, Text: def.Text})
		}
	}
	return out
}

// EventAudience classifies a game event for the broadcast router.
type Audience int

const (
	AudienceRoom   Audience = iota // everyone
	AudienceOthers                 // everyone but the acting player
	AudiencePlayer                 // only the acting/affected player
)

// AudienceFor returns who may receive an event, and the shape it takes for
// players other than the actor. Choice submissions go to others with the
// choice id stripped; clue discovery and sharing stay private.
func AudienceFor(e game.Event) (Audience, game.Event) {
	switch e.Type {
	case game.EvtClueDiscovered:
		return AudiencePlayer, e
	case game.EvtClueShared:
		// Delivered to the recipient; TargetID is the audience member.
		redirected := e
		redirected.PlayerID = e.TargetID
		return AudiencePlayer, redirected
	case game.EvtChoiceSubmitted:
		stripped := e
		stripped.ChoiceID = ""
		return AudienceOthers, stripped
	default:
		return AudienceRoom, e
	}
}
