package room

import (
	"time"

	"go.uber.org/zap"

	"github.com/veilbound/veilbound-backend/internal/protocol"
	"github.com/veilbound/veilbound-backend/internal/view"
)

func (r *Room) broadcast(evt protocol.ServerEvent) {
	for playerID := range r.clients {
		r.sendTo(playerID, evt)
	}
}

func (r *Room) broadcastExcept(exceptID string, evt protocol.ServerEvent) {
	for playerID := range r.clients {
		if playerID == exceptID {
			continue
		}
		r.sendTo(playerID, evt)
	}
}

// sendTo never blocks the room loop: a client that cannot drain its outbox
// is dropped and goes through the normal disconnect path.
func (r *Room) sendTo(playerID string, evt protocol.ServerEvent) {
	c, ok := r.clients[playerID]
	if !ok {
		return
	}
	select {
	case c.outbox <- evt:
	default:
		r.log.Warn("client outbox full, dropping connection", zap.String("player", playerID))
		close(c.outbox)
		delete(r.clients, playerID)
		if m := r.member(playerID); m != nil {
			m.Connected = false
			m.DisconnectedAt = time.Now()
		}
	}
}

func (r *Room) memberInfo(m *Member) protocol.MemberInfo {
	return protocol.MemberInfo{
		PlayerID: m.PlayerID,
		Name:     m.Name,
		Role:     m.Role,
		Ready:    m.Ready,
		Host:     m.PlayerID == r.hostID,
		Online:   m.Connected,
		JoinedAt: m.JoinedAt.UnixMilli(),
	}
}

func (r *Room) snapshotFor(playerID string, reconnected bool) Snapshot {
	members := make([]protocol.MemberInfo, len(r.members))
	for i, m := range r.members {
		members[i] = r.memberInfo(m)
	}
	return Snapshot{
		Code:        r.code,
		Name:        r.name,
		HostID:      r.hostID,
		Settings:    r.settings,
		Members:     members,
		Version:     r.version,
		View:        view.ProjectForPlayer(r.state, playerID),
		Chat:        append([]protocol.ChatBroadcast(nil), r.chat...),
		EventLog:    append([]LogEntry(nil), r.eventLog...),
		Reconnected: reconnected,
	}
}

func (r *Room) logEvent(kind, msg string) {
	r.eventLog = append(r.eventLog, LogEntry{Kind: kind, Message: msg, At: time.Now().UnixMilli()})
	if len(r.eventLog) > maxEventLog {
		r.eventLog = r.eventLog[len(r.eventLog)-maxEventLog:]
	}
}

func (r *Room) persist() {
	if r.deps.Persist != nil {
		r.deps.Persist(r.code, r.info(), r.state.Clone())
	}
}

// shutdown notifies members, releases the registry index entries, and stops
// the loop. Safe to call from inside the loop only; idempotent because the
// loop observes ctx.Done after an in-handler disband.
func (r *Room) shutdown(notice string) {
	if r.closed {
		return
	}
	r.closed = true
	if notice != "" {
		r.broadcast(protocol.ServerEvent{
			Event:   protocol.EventRoomDisbanded,
			Payload: map[string]any{"reason": notice},
		})
	}
	for playerID, c := range r.clients {
		close(c.outbox)
		delete(r.clients, playerID)
	}
	if r.turnTimer != nil {
		r.turnTimer.Stop()
		r.turnTimer = nil
	}
	if r.deps.OnPlayerRemoved != nil {
		for _, m := range r.members {
			r.deps.OnPlayerRemoved(m.PlayerID)
		}
	}
	r.members = nil
	if r.deps.OnRoomClosed != nil {
		r.deps.OnRoomClosed(r.code)
	}
	r.cancel()
}
