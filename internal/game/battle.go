package game

import (
	"fmt"
	"math/rand"
)

func applyBeginBattle(n State, a Action) ([]Event, State, Diff, error) {
	if !a.FromHost {
		return nil, n, Diff{}, ErrNotHost
	}
	if n.Phase != PhaseExploration && n.Phase != PhaseInterrogation {
		return nil, n, Diff{}, ErrWrongPhase
	}
	return startBattle(n, a.EnemyID, a)
}

// startBattle is shared between the host action and exploration ambushes.
func startBattle(n State, enemyID string, a Action) ([]Event, State, Diff, error) {
	def, ok := Enemies[enemyID]
	if !ok {
		return nil, n, Diff{}, fmt.Errorf("%w: unknown enemy %q", ErrInvalidAction, enemyID)
	}
	n.Phase = PhaseBattle
	n.Battle = &BattleState{
		BattleID:   fmt.Sprintf("%s-%d", enemyID, a.Now.UnixNano()),
		EnemyID:    def.ID,
		EnemyName:  def.Name,
		EnemyHP:    def.HP,
		EnemyMaxHP: def.HP,
		EnemySpeed: def.Speed,
		Round:      1,
	}
	n.beginTurns(BattleOrder(n.Players), n.Rules.BattleTurnLimitSec, a.Now)
	n.logCombat("system", "", fmt.Sprintf("%s appears!", def.Name))

	events := []Event{
		{Type: EvtBattleStarted, TargetID: def.ID},
		{Type: EvtPhaseChanged, Phase: PhaseBattle},
	}

	// A faster enemy strikes once before anyone can act.
	fastest := 0
	for i := range n.Players {
		if n.Players[i].Alive() && n.Players[i].Speed > fastest {
			fastest = n.Players[i].Speed
		}
	}
	if def.Speed > fastest {
		events = append(events, n.enemyStrike()...)
	}

	d := Diff{Phase: &n.Phase, Turn: &n.Turn, Players: n.Players, Battle: n.Battle}
	return events, n, d, nil
}

func applyBattleAction(n State, a Action) ([]Event, State, Diff, error) {
	if n.Phase != PhaseBattle || n.Battle == nil {
		return nil, n, Diff{}, ErrWrongPhase
	}
	if n.Battle.Outcome != OutcomeNone {
		return nil, n, Diff{}, ErrGameEnded
	}
	if err := n.requireTurn(a.PlayerID); err != nil {
		return nil, n, Diff{}, err
	}
	actor := n.Player(a.PlayerID)
	if actor == nil || !actor.Alive() {
		return nil, n, Diff{}, ErrInvalidAction
	}

	var events []Event
	switch a.Type {
	case ActAttack:
		dmg := actor.Attack
		n.Battle.EnemyHP -= dmg
		n.logCombat("player", actor.Name, fmt.Sprintf("%s attacks %s for %d damage", actor.Name, n.Battle.EnemyName, dmg))
		events = append(events, Event{Type: EvtAttackResolved, PlayerID: actor.ID, TargetID: n.Battle.EnemyID, Amount: dmg})

	case ActUseAbility:
		def, ok := Abilities[a.AbilityID]
		if !ok {
			return nil, n, Diff{}, fmt.Errorf("%w: unknown ability %q", ErrInvalidAction, a.AbilityID)
		}
		if actor.Cooldowns[def.ID] > 0 {
			return nil, n, Diff{}, fmt.Errorf("%w: %s", ErrOnCooldown, def.Name)
		}
		if actor.Mana < def.ManaCost {
			return nil, n, Diff{}, fmt.Errorf("%w: %s needs %d mana", ErrNotEnoughResource, def.Name, def.ManaCost)
		}
		actor.Mana -= def.ManaCost
		if def.CooldownTurns > 0 {
			if actor.Cooldowns == nil {
				actor.Cooldowns = map[string]int{}
			}
			actor.Cooldowns[def.ID] = def.CooldownTurns
		}
		if def.Power < 0 {
			// Healing ability; target an ally or self.
			target := actor
			if a.TargetID != "" && a.TargetID != actor.ID {
				if target = n.Player(a.TargetID); target == nil {
					return nil, n, Diff{}, fmt.Errorf("%w: no such ally", ErrInvalidAction)
				}
			}
			heal := -def.Power
			target.HP = min(target.MaxHP, target.HP+heal)
			n.logCombat("player", actor.Name, fmt.Sprintf("%s uses %s on %s, restoring %d HP", actor.Name, def.Name, target.Name, heal))
			events = append(events, Event{Type: EvtAbilityUsed, PlayerID: actor.ID, TargetID: target.ID, Amount: heal})
		} else {
			n.Battle.EnemyHP -= def.Power
			n.logCombat("player", actor.Name, fmt.Sprintf("%s uses %s for %d damage", actor.Name, def.Name, def.Power))
			events = append(events, Event{Type: EvtAbilityUsed, PlayerID: actor.ID, TargetID: n.Battle.EnemyID, Amount: def.Power})
		}

	case ActDefend:
		actor.Defending = true
		n.logCombat("player", actor.Name, fmt.Sprintf("%s braces for the next blow", actor.Name))
		events = append(events, Event{Type: EvtPlayerDefending, PlayerID: actor.ID})

	case ActFlee:
		enemy := Enemies[n.Battle.EnemyID]
		chance := float64(actor.Speed) / float64(actor.Speed+enemy.Speed)
		rng := rand.New(rand.NewSource(a.Seed))
		if rng.Float64() < chance {
			n.Battle.Outcome = OutcomeAbandoned
			n.logCombat("system", "", "the party slips away from the fight")
			n.endTurns()
			n.Phase = PhaseExploration
			if n.Exploration == nil {
				n.Exploration = &ExplorationState{LocationID: StartLocation, Visited: []string{StartLocation}}
			}
			events = append(events,
				Event{Type: EvtBattleEnded, Outcome: OutcomeAbandoned},
				Event{Type: EvtPhaseChanged, Phase: PhaseExploration},
			)
			d := Diff{Phase: &n.Phase, Turn: &n.Turn, Battle: n.Battle, Exploration: n.Exploration}
			return events, n, d, nil
		}
		n.logCombat("player", actor.Name, fmt.Sprintf("%s tries to flee but the %s blocks the way", actor.Name, n.Battle.EnemyName))
		events = append(events, Event{Type: EvtFleeFailed, PlayerID: actor.ID})
	}

	events = append(events, n.finishBattleTurn(a)...)
	d := Diff{Turn: &n.Turn, Players: n.Players, Battle: n.Battle}
	if n.Phase != PhaseBattle {
		d.Phase = &n.Phase
		d.Exploration = n.Exploration
	}
	return events, n, d, nil
}

// finishBattleTurn checks for an outcome, advances the turn, and runs the
// enemy round when the order wraps.
func (n *State) finishBattleTurn(a Action) []Event {
	var events []Event

	if n.Battle.EnemyHP <= 0 {
		return n.battleVictory()
	}

	wrapped := n.advanceTurn(a.Now)
	events = append(events, Event{Type: EvtTurnAdvanced, PlayerID: n.Turn.Actor()})

	if wrapped {
		events = append(events, n.enemyStrike()...)
		n.Battle.Round++
		n.tickCooldowns()
		if n.allDown() {
			events = append(events, n.battleDefeat()...)
			return events
		}
	}
	return events
}

// enemyStrike hits the frontmost living player; defenders take half.
func (n *State) enemyStrike() []Event {
	enemy := Enemies[n.Battle.EnemyID]
	for i := range n.Players {
		p := &n.Players[i]
		if !p.Alive() {
			continue
		}
		dmg := enemy.Attack - p.Defense
		if dmg < 1 {
			dmg = 1
		}
		if p.Defending {
			dmg = (dmg + 1) / 2
			p.Defending = false
		}
		p.HP -= dmg
		if p.HP < 0 {
			p.HP = 0
		}
		n.logCombat("enemy", enemy.Name, fmt.Sprintf("%s strikes %s for %d damage", enemy.Name, p.Name, dmg))
		return []Event{{Type: EvtEnemyActed, TargetID: p.ID, Amount: dmg}}
	}
	return nil
}

func (n *State) battleVictory() []Event {
	def := Enemies[n.Battle.EnemyID]
	n.Battle.Outcome = OutcomeVictory
	n.logCombat("system", "", fmt.Sprintf("%s is defeated!", def.Name))
	n.endTurns()

	events := []Event{{Type: EvtBattleEnded, Outcome: OutcomeVictory}}
	if n.grantReward("battle:"+n.Battle.BattleID, def.RewardGold, def.RewardXP, n.alivePlayerIDs()) {
		events = append(events, Event{Type: EvtRewardGranted, Amount: def.RewardGold, Message: fmt.Sprintf("%d gold, %d xp", def.RewardGold, def.RewardXP)})
	}
	if n.Exploration != nil {
		n.Exploration.Defeated = append(n.Exploration.Defeated, def.ID)
	}
	if def.Boss {
		n.Phase = PhaseVictory
	} else {
		n.Phase = PhaseExploration
		if n.Exploration == nil {
			n.Exploration = &ExplorationState{LocationID: StartLocation, Visited: []string{StartLocation}}
		}
	}
	events = append(events, Event{Type: EvtPhaseChanged, Phase: n.Phase})
	return events
}

func (n *State) battleDefeat() []Event {
	n.Battle.Outcome = OutcomeDefeat
	n.logCombat("system", "", "the party falls... and wakes at the crossroads, barely breathing")
	n.endTurns()
	// The run continues: everyone staggers back up with 1 HP.
	for i := range n.Players {
		n.Players[i].HP = 1
		n.Players[i].Defending = false
	}
	n.Phase = PhaseExploration
	if n.Exploration == nil {
		n.Exploration = &ExplorationState{LocationID: StartLocation, Visited: []string{StartLocation}}
	}
	n.Exploration.LocationID = StartLocation
	return []Event{
		{Type: EvtBattleEnded, Outcome: OutcomeDefeat},
		{Type: EvtPhaseChanged, Phase: PhaseExploration},
	}
}

func (n *State) allDown() bool {
	for i := range n.Players {
		if n.Players[i].Alive() {
			return false
		}
	}
	return true
}

func (n *State) tickCooldowns() {
	for i := range n.Players {
		for id, v := range n.Players[i].Cooldowns {
			if v > 0 {
				n.Players[i].Cooldowns[id] = v - 1
			}
		}
	}
}

func (n *State) logCombat(kind, actor, msg string) {
	if n.Battle == nil {
		return
	}
	n.Battle.Log = append(n.Battle.Log, CombatLogEntry{Type: kind, Actor: actor, Message: msg, Round: n.Battle.Round})
	if len(n.Battle.Log) > maxCombatLog {
		n.Battle.Log = n.Battle.Log[len(n.Battle.Log)-maxCombatLog:]
	}
}

const maxCombatLog = 100

// applyTimeout forces progress when the current window expires: in battle the
// actor passes, in a scenario the round resolves with whatever votes exist.
// The caller is responsible for generation-checking stale timers.
func applyTimeout(n State, a Action) ([]Event, State, Diff, error) {
	switch n.Phase {
	case PhaseBattle:
		if n.Battle == nil || n.Battle.Outcome != OutcomeNone || n.Turn.Mode != TurnActing {
			return nil, n, Diff{}, nil
		}
		actor := n.Player(n.Turn.Actor())
		if actor != nil {
			n.logCombat("system", "", fmt.Sprintf("%s hesitates and the moment passes", actor.Name))
		}
		events := n.finishBattleTurn(a)
		d := Diff{Turn: &n.Turn, Players: n.Players, Battle: n.Battle}
		if n.Phase != PhaseBattle {
			d.Phase = &n.Phase
			d.Exploration = n.Exploration
		}
		return events, n, d, nil

	case PhaseScenario:
		if n.Scenario == nil || n.Scenario.Resolved {
			return nil, n, Diff{}, nil
		}
		return resolveScenario(n)

	default:
		return nil, n, Diff{}, nil
	}
}
