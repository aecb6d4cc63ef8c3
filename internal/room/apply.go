package room

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/veilbound/veilbound-backend/internal/game"
	"github.com/veilbound/veilbound-backend/internal/protocol"
	"github.com/veilbound/veilbound-backend/internal/view"
)

// handleAct is the serialization point for shared-state mutation. The action
// is stamped here (clock, rng seed, host flag), applied purely, and the
// resulting diff fans out in commit order.
func (r *Room) handleAct(a game.Action) ActResult {
	if r.member(a.PlayerID) == nil {
		return ActResult{Err: protocol.ErrRoomNotFound}
	}
	a.Now = time.Now()
	a.Seed = r.rng.Int63()
	a.FromHost = a.PlayerID == r.hostID

	if a.Type == game.ActStartGame && !r.allReady() {
		return ActResult{Err: fmt.Errorf("%w: waiting on ready flags", game.ErrNotReady)}
	}

	events, newState, diff, err := game.Apply(r.state, a)
	if err != nil {
		// Validation failure: error to the requester only, no broadcast.
		return ActResult{Err: err}
	}
	r.state = newState
	r.version++
	r.touch()
	r.fanOut(a.PlayerID, events, diff)
	r.armTurnTimer()
	r.persist()
	if r.deps.Audit != nil {
		r.deps.Audit(r.code, "action", a.PlayerID, string(a.Type))
	}
	return ActResult{
		Version: r.version,
		Events:  events,
		Diff:    view.FilterDiff(diff, a.PlayerID),
	}
}

func (r *Room) allReady() bool {
	for _, m := range r.members {
		if !m.Ready {
			return false
		}
	}
	return len(r.members) > 0
}

// fanOut delivers events and the state diff. Per-room ordering is the commit
// order because this runs on the room goroutine; the gate decides audience
// and shape per recipient.
func (r *Room) fanOut(actorID string, events []game.Event, diff game.Diff) {
	for _, e := range events {
		audience, shaped := view.AudienceFor(e)
		evt := protocol.ServerEvent{Event: eventName(e.Type), Payload: shaped}
		switch audience {
		case view.AudiencePlayer:
			r.sendTo(shaped.PlayerID, evt)
		case view.AudienceOthers:
			r.broadcastExcept(actorID, evt)
		default:
			r.broadcast(evt)
		}
		if e.Type == game.EvtPhaseChanged {
			r.logEvent("phase", fmt.Sprintf("phase changed to %s", e.Phase))
		}
	}
	if !diff.Empty() {
		for playerID := range r.clients {
			r.sendTo(playerID, protocol.ServerEvent{
				Event:   protocol.EventStateDiff,
				Payload: map[string]any{"version": r.version, "diff": view.FilterDiff(diff, playerID)},
			})
		}
	}
}

func eventName(t game.EventType) string {
	switch t {
	case game.EvtChoiceSubmitted:
		return protocol.EventScenarioChoiceMade
	case game.EvtScenarioResolved:
		return protocol.EventScenarioResolved
	default:
		return protocol.EventGameEvent
	}
}

func (r *Room) handleSync(playerID, syncType string) SyncResult {
	if r.member(playerID) == nil {
		return SyncResult{Err: protocol.ErrRoomNotFound}
	}
	v := view.ProjectForPlayer(r.state, playerID)
	switch syncType {
	case "", "full":
		// The snapshot travels through the room outbox, not the ack, so it is
		// ordered against the diffs that follow it.
		snap := r.snapshotFor(playerID, false)
		r.sendTo(playerID, protocol.ServerEvent{Event: protocol.EventRoomSnapshot, Payload: snap})
		return SyncResult{Payload: map[string]any{"version": r.version}}
	case "battle":
		if v.Battle == nil {
			return SyncResult{Err: protocol.ErrSessionNotFound}
		}
		return SyncResult{Payload: map[string]any{"version": r.version, "battle": v.Battle, "turn": v.Turn}}
	case "scenario":
		if v.Scenario == nil {
			return SyncResult{Err: protocol.ErrSessionNotFound}
		}
		return SyncResult{Payload: map[string]any{"version": r.version, "scenario": v.Scenario}}
	case "exploration":
		if v.Exploration == nil {
			return SyncResult{Err: protocol.ErrSessionNotFound}
		}
		return SyncResult{Payload: map[string]any{"version": r.version, "exploration": v.Exploration, "clues": v.Clues}}
	default:
		return SyncResult{Err: fmt.Errorf("%w: bad sync type", game.ErrInvalidAction)}
	}
}

// armTurnTimer (re)arms the single pending deadline: the acting player's turn
// limit, or the scenario round limit. The fired message carries the turn
// generation so a timeout racing a just-applied action is a no-op.
func (r *Room) armTurnTimer() {
	if r.turnTimer != nil {
		r.turnTimer.Stop()
		r.turnTimer = nil
	}
	var d time.Duration
	switch {
	case r.state.Turn.Mode == game.TurnActing && r.state.Turn.LimitSec > 0:
		d = time.Duration(r.state.Turn.LimitSec) * time.Second
	case r.state.Phase == game.PhaseScenario && r.state.Scenario != nil &&
		!r.state.Scenario.Resolved && r.state.Rules.ScenarioLimitSec > 0:
		d = time.Duration(r.state.Rules.ScenarioLimitSec) * time.Second
	default:
		return
	}
	gen := r.state.Turn.Generation
	r.turnTimer = time.AfterFunc(d, func() {
		select {
		case r.inbox <- timerFired{gen: gen}:
		case <-r.ctx.Done():
		}
	})
}

func (r *Room) handleTimer(gen uint64) {
	if gen != r.state.Turn.Generation {
		return // stale: an action landed first
	}
	actor := r.state.Turn.Actor()
	events, newState, diff, err := game.Apply(r.state, game.Action{
		Type: game.ActTimeoutPass, PlayerID: actor, Now: time.Now(), Seed: r.rng.Int63(),
	})
	if err != nil {
		r.log.Warn("timeout apply failed", zap.Error(err))
		return
	}
	if len(events) == 0 && diff.Empty() {
		return
	}
	r.state = newState
	r.version++
	r.fanOut(actor, events, diff)
	r.armTurnTimer()
	r.persist()
}

// handleSweep evicts stale connections and expires disconnected members.
func (r *Room) handleSweep(now time.Time) {
	for playerID, c := range r.clients {
		if r.cfg.HeartbeatGrace > 0 && now.Sub(c.lastBeat) > r.cfg.HeartbeatGrace {
			r.log.Info("connection stale, marking disconnected", zap.String("player", playerID))
			r.handleDetach(c.connID)
		}
	}
	var expired []string
	for _, m := range r.members {
		if !m.Connected && !m.DisconnectedAt.IsZero() &&
			r.cfg.MemberGrace > 0 && now.Sub(m.DisconnectedAt) > r.cfg.MemberGrace {
			expired = append(expired, m.PlayerID)
		}
	}
	for _, id := range expired {
		r.removeMember(id, "timeout")
	}
}
