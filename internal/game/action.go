package game

import "time"

type ActionType string

const (
	ActStartGame      ActionType = "start_game"
	ActAdvancePhase   ActionType = "advance_phase"
	ActBeginBattle    ActionType = "begin_battle"
	ActBeginScenario  ActionType = "begin_scenario"
	ActAttack         ActionType = "attack"
	ActUseAbility     ActionType = "use_ability"
	ActDefend         ActionType = "defend"
	ActFlee           ActionType = "flee"
	ActMove           ActionType = "move"
	ActInvestigate    ActionType = "investigate"
	ActShareClue      ActionType = "share_clue"
	ActAskQuestion    ActionType = "ask_question"
	ActScenarioChoice ActionType = "scenario_choice"
	ActTimeoutPass    ActionType = "timeout_pass"
)

// Action is the single command shape fed to Apply. Fields beyond Type and
// PlayerID are per-type; the room layer fills Now, Seed and FromHost at its
// serialization point so Apply stays deterministic.
type Action struct {
	Type       ActionType
	PlayerID   string
	FromHost   bool
	TargetID   string // advance_phase: phase name; share_clue: recipient
	AbilityID  string
	LocationID string
	ClueID     string
	QuestionID string
	EnemyID    string
	ScenarioID string
	ChoiceID   string
	Now        time.Time
	Seed       int64
}

type EventType string

const (
	EvtGameStarted      EventType = "game_started"
	EvtPhaseChanged     EventType = "phase_changed"
	EvtTurnAdvanced     EventType = "turn_advanced"
	EvtAttackResolved   EventType = "attack_resolved"
	EvtAbilityUsed      EventType = "ability_used"
	EvtPlayerDefending  EventType = "player_defending"
	EvtEnemyActed       EventType = "enemy_acted"
	EvtBattleStarted    EventType = "battle_started"
	EvtBattleEnded      EventType = "battle_ended"
	EvtRewardGranted    EventType = "reward_granted"
	EvtFleeFailed       EventType = "flee_failed"
	EvtPlayerMoved      EventType = "player_moved"
	EvtClueDiscovered   EventType = "clue_discovered" // private to the discoverer
	EvtClueShared       EventType = "clue_shared"     // private to the recipient
	EvtQuestionAsked    EventType = "question_asked"
	EvtChoiceSubmitted  EventType = "choice_submitted" // choice id stripped for others
	EvtScenarioStarted  EventType = "scenario_started"
	EvtScenarioResolved EventType = "scenario_resolved"
)

// Event is what Apply emits for the broadcast layer. PlayerID is the acting
// or affected player; the gate decides audience per type.
type Event struct {
	Type       EventType     `json:"type"`
	PlayerID   string        `json:"player_id,omitempty"`
	TargetID   string        `json:"target_id,omitempty"`
	Amount     int           `json:"amount,omitempty"`
	Phase      Phase         `json:"phase,omitempty"`
	ClueID     string        `json:"clue_id,omitempty"`
	ScenarioID string        `json:"scenario_id,omitempty"`
	ChoiceID   string        `json:"choice_id,omitempty"`
	Outcome    BattleOutcome `json:"outcome,omitempty"`
	Message    string        `json:"message,omitempty"`
}

// Diff is the minimal-resend unit: each field is nil unless the mutation
// touched that sub-state, in which case the whole sub-state is carried.
type Diff struct {
	Phase         *Phase              `json:"phase,omitempty"`
	Turn          *TurnState          `json:"turn,omitempty"`
	Players       []PlayerState       `json:"players,omitempty"` // only changed players
	Battle        *BattleState        `json:"battle,omitempty"`
	Scenario      *ScenarioState      `json:"scenario,omitempty"`
	Exploration   *ExplorationState   `json:"exploration,omitempty"`
	Interrogation *InterrogationState `json:"interrogation,omitempty"`
}

func (d Diff) Empty() bool {
	return d.Phase == nil && d.Turn == nil && len(d.Players) == 0 &&
		d.Battle == nil && d.Scenario == nil && d.Exploration == nil && d.Interrogation == nil
}
