package game

import (
	"errors"
	"time"
)

var ErrNotYourTurn = errors.New("not your turn")
var ErrInvalidAction = errors.New("invalid action")
var ErrNotEnoughResource = errors.New("not enough resource")
var ErrOnCooldown = errors.New("ability on cooldown")
var ErrWrongPhase = errors.New("action not allowed in current phase")
var ErrNotHost = errors.New("host only")
var ErrGameEnded = errors.New("game already ended")
var ErrNotReady = errors.New("not all players ready")

type Phase string

const (
	PhaseLobby         Phase = "LOBBY"
	PhaseInterrogation Phase = "INTERROGATION"
	PhaseExploration   Phase = "EXPLORATION"
	PhaseBattle        Phase = "BATTLE"
	PhaseScenario      Phase = "SCENARIO"
	PhaseVictory       Phase = "VICTORY"
)

// TurnMode is the coordinator state: Idle in free-roam phases, Acting while a
// specific player holds the turn, Resolving while a collective choice is
// held open, Ended once an outcome is reached.
type TurnMode string

const (
	TurnIdle      TurnMode = "idle"
	TurnActing    TurnMode = "acting"
	TurnResolving TurnMode = "resolving"
	TurnEnded     TurnMode = "ended"
)

type TurnState struct {
	Mode       TurnMode  `json:"mode"`
	Order      []string  `json:"order"`
	Index      int       `json:"index"`
	Counter    int       `json:"counter"`
	Generation uint64    `json:"generation"`
	StartedAt  time.Time `json:"started_at"`
	LimitSec   int       `json:"limit_sec,omitempty"`
}

// Actor returns the player whose turn it is, or "" when no one holds the turn.
func (t TurnState) Actor() string {
	if t.Mode != TurnActing || t.Index < 0 || t.Index >= len(t.Order) {
		return ""
	}
	return t.Order[t.Index]
}

type PlayerState struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Class     string         `json:"class"`
	HP        int            `json:"hp"`
	MaxHP     int            `json:"max_hp"`
	Mana      int            `json:"mana"`
	MaxMana   int            `json:"max_mana"`
	Speed     int            `json:"speed"`
	Attack    int            `json:"attack"`
	Defense   int            `json:"defense"`
	Defending bool           `json:"defending"`
	Gold      int            `json:"gold"`
	XP        int            `json:"xp"`
	Cooldowns map[string]int `json:"cooldowns,omitempty"`
}

func (p PlayerState) Alive() bool { return p.HP > 0 }

type BattleOutcome string

const (
	OutcomeNone      BattleOutcome = ""
	OutcomeVictory   BattleOutcome = "victory"
	OutcomeDefeat    BattleOutcome = "defeat"
	OutcomeAbandoned BattleOutcome = "abandoned"
)

type CombatLogEntry struct {
	Type    string `json:"type"` // "player" | "enemy" | "system"
	Actor   string `json:"actor,omitempty"`
	Message string `json:"message"`
	Round   int    `json:"round"`
}

type BattleState struct {
	BattleID   string           `json:"battle_id"`
	EnemyID    string           `json:"enemy_id"`
	EnemyName  string           `json:"enemy_name"`
	EnemyHP    int              `json:"enemy_hp"`
	EnemyMaxHP int              `json:"enemy_max_hp"`
	EnemySpeed int              `json:"enemy_speed"`
	Round      int              `json:"round"`
	Outcome    BattleOutcome    `json:"outcome,omitempty"`
	Log        []CombatLogEntry `json:"log"`
}

type ScenarioState struct {
	ScenarioID string            `json:"scenario_id"`
	Prompt     string            `json:"prompt"`
	Options    []ScenarioOption  `json:"options"`
	Required   []string          `json:"required"`
	Choices    map[string]string `json:"choices"` // playerID -> choiceID; never leaves the gate unfiltered
	Resolved   bool              `json:"resolved"`
	Outcome    string            `json:"outcome,omitempty"`
	OutcomeID  string            `json:"outcome_id,omitempty"`
}

type ScenarioOption struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type ExplorationState struct {
	LocationID string   `json:"location_id"`
	Visited    []string `json:"visited"`
	Defeated   []string `json:"defeated"` // encounter ids already fought here
}

type InterrogationState struct {
	SuspectID          string   `json:"suspect_id"`
	QuestionsRemaining int      `json:"questions_remaining"`
	Asked              []string `json:"asked"`
}

// PlayerKnowledge is the per-player secret side of the shared state. Clue ids
// land here on discovery or when another player shares them; shared clues are
// copies, the sharer keeps theirs.
type PlayerKnowledge struct {
	Clues []string `json:"clues"`
}

func (k PlayerKnowledge) HasClue(id string) bool {
	for _, c := range k.Clues {
		if c == id {
			return true
		}
	}
	return false
}

type Rules struct {
	ScenarioMajority   float64 `json:"scenario_majority"`
	BattleTurnLimitSec int     `json:"battle_turn_limit_sec"`
	ScenarioLimitSec   int     `json:"scenario_limit_sec"`
	Difficulty         string  `json:"difficulty"`
}

// State is the authoritative per-room snapshot. It is only ever mutated by
// Apply, which works on a deep copy so a failed action leaves the caller's
// state untouched.
type State struct {
	Phase          Phase                      `json:"phase"`
	Turn           TurnState                  `json:"turn"`
	Players        []PlayerState              `json:"players"` // join order
	Battle         *BattleState               `json:"battle,omitempty"`
	Scenario       *ScenarioState             `json:"scenario,omitempty"`
	Exploration    *ExplorationState          `json:"exploration,omitempty"`
	Interrogation  *InterrogationState        `json:"interrogation,omitempty"`
	Knowledge      map[string]PlayerKnowledge `json:"knowledge"`
	AppliedRewards map[string]bool            `json:"applied_rewards"`
	Rules          Rules                      `json:"rules"`
}

func NewState(rules Rules) State {
	return State{
		Phase:          PhaseLobby,
		Turn:           TurnState{Mode: TurnIdle},
		Knowledge:      map[string]PlayerKnowledge{},
		AppliedRewards: map[string]bool{},
		Rules:          rules,
	}
}

func (s State) Player(id string) *PlayerState {
	for i := range s.Players {
		if s.Players[i].ID == id {
			return &s.Players[i]
		}
	}
	return nil
}

// Clone deep-copies everything Apply may touch. Slices of structs copy by
// value; maps and pointers are rebuilt.
func (s State) Clone() State {
	n := s
	n.Players = append([]PlayerState(nil), s.Players...)
	for i := range n.Players {
		if s.Players[i].Cooldowns != nil {
			cd := make(map[string]int, len(s.Players[i].Cooldowns))
			for k, v := range s.Players[i].Cooldowns {
				cd[k] = v
			}
			n.Players[i].Cooldowns = cd
		}
	}
	n.Turn.Order = append([]string(nil), s.Turn.Order...)
	if s.Battle != nil {
		b := *s.Battle
		b.Log = append([]CombatLogEntry(nil), s.Battle.Log...)
		n.Battle = &b
	}
	if s.Scenario != nil {
		sc := *s.Scenario
		sc.Options = append([]ScenarioOption(nil), s.Scenario.Options...)
		sc.Required = append([]string(nil), s.Scenario.Required...)
		sc.Choices = make(map[string]string, len(s.Scenario.Choices))
		for k, v := range s.Scenario.Choices {
			sc.Choices[k] = v
		}
		n.Scenario = &sc
	}
	if s.Exploration != nil {
		e := *s.Exploration
		e.Visited = append([]string(nil), s.Exploration.Visited...)
		e.Defeated = append([]string(nil), s.Exploration.Defeated...)
		n.Exploration = &e
	}
	if s.Interrogation != nil {
		iv := *s.Interrogation
		iv.Asked = append([]string(nil), s.Interrogation.Asked...)
		n.Interrogation = &iv
	}
	n.Knowledge = make(map[string]PlayerKnowledge, len(s.Knowledge))
	for k, v := range s.Knowledge {
		v.Clues = append([]string(nil), v.Clues...)
		n.Knowledge[k] = v
	}
	n.AppliedRewards = make(map[string]bool, len(s.AppliedRewards))
	for k, v := range s.AppliedRewards {
		n.AppliedRewards[k] = v
	}
	return n
}
