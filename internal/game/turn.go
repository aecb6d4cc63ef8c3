package game

import (
	"sort"
	"time"
)

// BattleOrder sorts player ids by descending speed; ties keep join order.
// Players slice is already in join order, so a stable sort is enough.
func BattleOrder(players []PlayerState) []string {
	idx := make([]int, 0, len(players))
	for i := range players {
		if players[i].Alive() {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return players[idx[a]].Speed > players[idx[b]].Speed
	})
	order := make([]string, len(idx))
	for i, j := range idx {
		order[i] = players[j].ID
	}
	return order
}

// beginTurns moves the coordinator from Idle into Acting for the given order.
func (s *State) beginTurns(order []string, limitSec int, now time.Time) {
	s.Turn = TurnState{
		Mode:       TurnActing,
		Order:      order,
		Index:      0,
		Counter:    s.Turn.Counter,
		Generation: s.Turn.Generation + 1,
		StartedAt:  now,
		LimitSec:   limitSec,
	}
}

// advanceTurn wraps to the head of the order after the last actor. Dead
// players are skipped; if no one is alive the mode flips to Ended (defeat is
// detected separately by the battle rules).
func (s *State) advanceTurn(now time.Time) bool {
	t := &s.Turn
	wrapped := false
	for range t.Order {
		t.Index++
		if t.Index >= len(t.Order) {
			t.Index = 0
			wrapped = true
		}
		p := s.Player(t.Order[t.Index])
		if p != nil && p.Alive() {
			t.Counter++
			t.Generation++
			t.StartedAt = now
			return wrapped
		}
	}
	t.Mode = TurnEnded
	t.Generation++
	return wrapped
}

func (s *State) endTurns() {
	s.Turn.Mode = TurnEnded
	s.Turn.Generation++
}

func (s *State) idleTurns() {
	s.Turn = TurnState{Mode: TurnIdle, Counter: s.Turn.Counter, Generation: s.Turn.Generation + 1}
}

// requireTurn enforces the legality rule: only the current actor may act.
func (s State) requireTurn(playerID string) error {
	if s.Turn.Mode == TurnEnded {
		return ErrGameEnded
	}
	if s.Turn.Actor() != playerID {
		return ErrNotYourTurn
	}
	return nil
}
