// Package room hosts the per-room actor: one goroutine owns the member list,
// the shared game state, and every connected client's outbox, so all mutation
// for a room is serialized through its inbox. Different rooms never contend.
package room

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/veilbound/veilbound-backend/internal/game"
	"github.com/veilbound/veilbound-backend/internal/protocol"
	"github.com/veilbound/veilbound-backend/internal/view"
)

type Msg interface{ isRoomMsg() }

// Attach binds a live connection to a member, creating the member on a fresh
// join. Rejoin within the member grace window resumes the existing record.
type Attach struct {
	PlayerID string
	Name     string
	ConnID   string
	Rejoin   bool
	Outbox   chan protocol.ServerEvent
	Reply    chan AttachResult
}

type AttachResult struct {
	Snapshot    *Snapshot
	Reconnected bool
	Err         error
}

// AddMember joins a player without a connection (HTTP join); they attach a
// channel later with Rejoin set.
type AddMember struct {
	PlayerID string
	Name     string
	Reply    chan error
}

// Detach reports a closed socket. The member record survives for the grace
// period; only the connection goes away.
type Detach struct{ ConnID string }

type Leave struct {
	PlayerID string
	Reason   string
}

type Ready struct {
	PlayerID string
	Ready    bool
	Reply    chan error
}

type Chat struct {
	PlayerID string
	Text     string
	Reply    chan error
}

type Act struct {
	Action game.Action
	Reply  chan ActResult
}

type ActResult struct {
	Version int
	Events  []game.Event
	Diff    view.ViewDiff
	Err     error
}

type SyncReq struct {
	PlayerID string
	SyncType string
	Reply    chan SyncResult
}

type SyncResult struct {
	Payload any
	Err     error
}

type Heartbeat struct {
	PlayerID string
	At       time.Time
	Reply    chan bool
}

// Kick never reports why it failed; untrusted clients fish for details.
type Kick struct {
	RequesterID string
	TargetID    string
	Reply       chan bool
}

type TransferHost struct {
	RequesterID string
	TargetID    string
	Reply       chan error
}

type GetInfo struct{ Reply chan Info }

// Disband tears the room down, notifying connected members first.
type Disband struct{ Notice string }

type timerFired struct{ gen uint64 }
type sweepTick struct{ now time.Time }

func (Attach) isRoomMsg()       {}
func (AddMember) isRoomMsg()    {}
func (Detach) isRoomMsg()       {}
func (Leave) isRoomMsg()        {}
func (Ready) isRoomMsg()        {}
func (Chat) isRoomMsg()         {}
func (Act) isRoomMsg()          {}
func (SyncReq) isRoomMsg()      {}
func (Heartbeat) isRoomMsg()    {}
func (Kick) isRoomMsg()         {}
func (TransferHost) isRoomMsg() {}
func (GetInfo) isRoomMsg()      {}
func (Disband) isRoomMsg()      {}
func (timerFired) isRoomMsg()   {}
func (sweepTick) isRoomMsg()    {}

type Settings struct {
	MaxPlayers int    `json:"maxPlayers"`
	Public     bool   `json:"public"`
	Difficulty string `json:"difficulty"`
}

type Member struct {
	PlayerID       string    `json:"playerId"`
	Name           string    `json:"name"`
	Role           string    `json:"role,omitempty"`
	Ready          bool      `json:"ready"`
	JoinedAt       time.Time `json:"joinedAt"`
	Connected      bool      `json:"connected"`
	DisconnectedAt time.Time `json:"-"`
}

type Info struct {
	Code         string
	Name         string
	HostID       string
	Settings     Settings
	Members      []Member
	Phase        game.Phase
	Version      int
	AllReady     bool
	LastActivity time.Time
}

type LogEntry struct {
	Kind    string `json:"kind"` // join | leave | phase | system
	Message string `json:"message"`
	At      int64  `json:"at"`
}

// Snapshot is the full-resync payload: everything a (re)joining client needs,
// already filtered for that player.
type Snapshot struct {
	Code        string                   `json:"code"`
	Name        string                   `json:"name"`
	HostID      string                   `json:"hostId"`
	Settings    Settings                 `json:"settings"`
	Members     []protocol.MemberInfo    `json:"members"`
	Version     int                      `json:"version"`
	View        view.PlayerView          `json:"view"`
	Chat        []protocol.ChatBroadcast `json:"chat"`
	EventLog    []LogEntry               `json:"eventLog"`
	Reconnected bool                     `json:"reconnected"`
}

// Deps are the room's narrow callbacks into its owner. They are invoked from
// the room goroutine and must not send back into the room's inbox.
type Deps struct {
	OnPlayerRemoved func(playerID string)
	OnRoomClosed    func(code string)
	Persist         func(code string, info Info, state game.State)
	Audit           func(code, kind, actor, detail string)
}

type Config struct {
	HeartbeatGrace time.Duration
	MemberGrace    time.Duration
	SweepEvery     time.Duration
}

type client struct {
	outbox   chan protocol.ServerEvent
	connID   string
	lastBeat time.Time
}

type Room struct {
	inbox chan Msg

	code         string
	name         string
	hostID       string
	settings     Settings
	members      []*Member // join order
	clients      map[string]*client
	state        game.State
	version      int
	chat         []protocol.ChatBroadcast
	eventLog     []LogEntry
	createdAt    time.Time
	lastActivity time.Time

	cfg       Config
	deps      Deps
	log       *zap.Logger
	rng       *rand.Rand
	turnTimer *time.Timer
	closed    bool
	ctx       context.Context
	cancel    context.CancelFunc
}

const maxChatHistory = 200
const maxEventLog = 200

func New(parent context.Context, code, name, hostID string, settings Settings, rules game.Rules, cfg Config, deps Deps, log *zap.Logger) *Room {
	ctx, cancel := context.WithCancel(parent)
	if cfg.SweepEvery <= 0 {
		cfg.SweepEvery = 10 * time.Second
	}
	r := &Room{
		inbox:        make(chan Msg, 64),
		code:         code,
		name:         name,
		hostID:       hostID,
		settings:     settings,
		clients:      make(map[string]*client),
		state:        game.NewState(rules),
		createdAt:    time.Now(),
		lastActivity: time.Now(),
		cfg:          cfg,
		deps:         deps,
		log:          log.With(zap.String("room", code)),
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
		ctx:          ctx,
		cancel:       cancel,
	}
	go r.loop()
	go r.sweeper()
	return r
}

func (r *Room) Inbox() chan<- Msg { return r.inbox }
func (r *Room) Code() string      { return r.code }

// Done closes when the room has shut down. Senders must stop waiting on a
// reply once it does: a message parked in the inbox buffer after the loop has
// exited is never answered.
func (r *Room) Done() <-chan struct{} { return r.ctx.Done() }

// Ask round-trips m through the room loop and waits for its reply. It fails
// instead of blocking forever when the room shuts down in the window between
// the caller looking the room up and the loop reading the message; a reply
// sent just before the close is still honored.
func Ask[T any](r *Room, m Msg, reply <-chan T) (T, bool) {
	var zero T
	select {
	case r.inbox <- m:
	case <-r.ctx.Done():
		return zero, false
	}
	select {
	case v := <-reply:
		return v, true
	case <-r.ctx.Done():
		select {
		case v := <-reply:
			return v, true
		case <-time.After(time.Second):
			return zero, false
		}
	}
}

func (r *Room) sweeper() {
	t := time.NewTicker(r.cfg.SweepEvery)
	defer t.Stop()
	for {
		select {
		case <-r.ctx.Done():
			return
		case now := <-t.C:
			select {
			case r.inbox <- sweepTick{now: now}:
			case <-r.ctx.Done():
				return
			}
		}
	}
}

func (r *Room) loop() {
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown("")
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Attach:
				msg.Reply <- r.handleAttach(msg)
			case AddMember:
				msg.Reply <- r.handleAddMember(msg.PlayerID, msg.Name)
			case Detach:
				r.handleDetach(msg.ConnID)
			case Leave:
				r.handleLeave(msg.PlayerID, msg.Reason)
			case Ready:
				msg.Reply <- r.handleReady(msg.PlayerID, msg.Ready)
			case Chat:
				msg.Reply <- r.handleChat(msg.PlayerID, msg.Text)
			case Act:
				msg.Reply <- r.handleAct(msg.Action)
			case SyncReq:
				msg.Reply <- r.handleSync(msg.PlayerID, msg.SyncType)
			case Heartbeat:
				msg.Reply <- r.handleHeartbeat(msg.PlayerID, msg.At)
			case Kick:
				msg.Reply <- r.handleKick(msg.RequesterID, msg.TargetID)
			case TransferHost:
				msg.Reply <- r.handleTransferHost(msg.RequesterID, msg.TargetID)
			case GetInfo:
				msg.Reply <- r.info()
			case Disband:
				r.shutdown(msg.Notice)
				return
			case timerFired:
				r.handleTimer(msg.gen)
			case sweepTick:
				r.handleSweep(msg.now)
			}
		}
	}
}

func (r *Room) member(playerID string) *Member {
	for _, m := range r.members {
		if m.PlayerID == playerID {
			return m
		}
	}
	return nil
}

func (r *Room) touch() { r.lastActivity = time.Now() }

func (r *Room) info() Info {
	members := make([]Member, len(r.members))
	allReady := len(r.members) > 0
	for i, m := range r.members {
		members[i] = *m
		if !m.Ready {
			allReady = false
		}
	}
	return Info{
		Code:         r.code,
		Name:         r.name,
		HostID:       r.hostID,
		Settings:     r.settings,
		Members:      members,
		Phase:        r.state.Phase,
		Version:      r.version,
		AllReady:     allReady,
		LastActivity: r.lastActivity,
	}
}

func (r *Room) handleAttach(msg Attach) AttachResult {
	m := r.member(msg.PlayerID)
	reconnected := false
	newMember := false
	if m != nil {
		// Same logical membership; only the connection is replaced.
		if old, ok := r.clients[msg.PlayerID]; ok {
			close(old.outbox)
		}
		reconnected = m.Connected || msg.Rejoin || !m.DisconnectedAt.IsZero()
		m.Connected = true
		m.DisconnectedAt = time.Time{}
	} else {
		if msg.Rejoin {
			// Grace period expired; the member went through the leave path.
			return AttachResult{Err: protocol.ErrRoomNotFound}
		}
		if err := r.addMember(msg.PlayerID, msg.Name); err != nil {
			return AttachResult{Err: err}
		}
		m = r.member(msg.PlayerID)
		m.Connected = true
		newMember = true
	}
	r.clients[msg.PlayerID] = &client{outbox: msg.Outbox, connID: msg.ConnID, lastBeat: time.Now()}
	r.touch()

	switch {
	case reconnected:
		r.broadcastExcept(msg.PlayerID, protocol.ServerEvent{
			Event:   protocol.EventPlayerReconnected,
			Payload: map[string]any{"playerId": msg.PlayerID},
		})
		r.logEvent("system", fmt.Sprintf("%s reconnected", m.Name))
	case newMember:
		r.broadcastExcept(msg.PlayerID, protocol.ServerEvent{
			Event:   protocol.EventPlayerJoined,
			Payload: r.memberInfo(m),
		})
		r.logEvent("join", fmt.Sprintf("%s joined the room", m.Name))
	}
	snap := r.snapshotFor(msg.PlayerID, reconnected)
	r.persist()
	return AttachResult{Snapshot: &snap, Reconnected: reconnected}
}

func (r *Room) handleAddMember(playerID, name string) error {
	if r.member(playerID) != nil {
		return protocol.ErrAlreadyInRoom
	}
	if err := r.addMember(playerID, name); err != nil {
		return err
	}
	r.broadcastExcept(playerID, protocol.ServerEvent{
		Event:   protocol.EventPlayerJoined,
		Payload: r.memberInfo(r.member(playerID)),
	})
	r.logEvent("join", fmt.Sprintf("%s joined the room", name))
	r.persist()
	return nil
}

func (r *Room) addMember(playerID, name string) error {
	if len(r.members) >= r.settings.MaxPlayers {
		return protocol.ErrRoomFull
	}
	r.members = append(r.members, &Member{PlayerID: playerID, Name: name, JoinedAt: time.Now()})
	r.state.AddPlayer(playerID, name, "")
	r.touch()
	if len(r.members) > r.settings.MaxPlayers {
		// Invariant breach; tear the room down rather than limp along.
		r.log.Error("member count exceeds capacity, disbanding",
			zap.Int("members", len(r.members)), zap.Int("max", r.settings.MaxPlayers))
		r.shutdown("room state corrupted")
		return protocol.ErrRoomFull
	}
	return nil
}

func (r *Room) handleDetach(connID string) {
	for playerID, c := range r.clients {
		if c.connID != connID {
			continue
		}
		close(c.outbox)
		delete(r.clients, playerID)
		if m := r.member(playerID); m != nil {
			m.Connected = false
			m.DisconnectedAt = time.Now()
			r.broadcast(protocol.ServerEvent{
				Event:   protocol.EventPlayerDisconnected,
				Payload: map[string]any{"playerId": playerID},
			})
			r.logEvent("system", fmt.Sprintf("%s lost connection", m.Name))
		}
		return
	}
}

func (r *Room) handleLeave(playerID, reason string) {
	m := r.member(playerID)
	if m == nil {
		return
	}
	r.removeMember(playerID, reason)
}

// removeMember runs the one true leave path: drops the connection, the member
// record, the game-state player, reassigns the host, and disbands when empty.
func (r *Room) removeMember(playerID, reason string) {
	m := r.member(playerID)
	if m == nil {
		return
	}
	if c, ok := r.clients[playerID]; ok {
		close(c.outbox)
		delete(r.clients, playerID)
	}
	for i, mm := range r.members {
		if mm.PlayerID == playerID {
			r.members = append(r.members[:i], r.members[i+1:]...)
			break
		}
	}
	genBefore := r.state.Turn.Generation
	r.state.RemovePlayer(playerID)
	r.touch()
	if r.deps.OnPlayerRemoved != nil {
		r.deps.OnPlayerRemoved(playerID)
	}
	if r.deps.Audit != nil {
		r.deps.Audit(r.code, "leave", playerID, reason)
	}

	if reason == "timeout" {
		r.broadcast(protocol.ServerEvent{
			Event:   protocol.EventSystem,
			Payload: map[string]any{"message": fmt.Sprintf("%s was removed after losing connection", m.Name)},
		})
	}
	r.broadcast(protocol.ServerEvent{
		Event:   protocol.EventPlayerLeft,
		Payload: map[string]any{"playerId": playerID, "reason": reason},
	})
	r.logEvent("leave", fmt.Sprintf("%s left the room", m.Name))

	if len(r.members) == 0 {
		r.shutdown("")
		return
	}
	if r.hostID == playerID {
		// Deterministic: earliest joined remaining member.
		next := r.members[0]
		for _, mm := range r.members[1:] {
			if mm.JoinedAt.Before(next.JoinedAt) {
				next = mm
			}
		}
		r.hostID = next.PlayerID
		r.broadcast(protocol.ServerEvent{
			Event:   protocol.EventHostChanged,
			Payload: map[string]any{"hostId": next.PlayerID},
		})
		r.logEvent("system", fmt.Sprintf("%s is now the host", next.Name))
	}
	if r.state.Turn.Generation != genBefore {
		// The leaver held a spot in the turn order. Everyone needs the new
		// order, and the deadline must track the new actor.
		r.version++
		r.fanOut(playerID, nil, game.Diff{Turn: &r.state.Turn, Players: r.state.Players})
		r.armTurnTimer()
	}
	r.persist()
}

func (r *Room) handleReady(playerID string, ready bool) error {
	m := r.member(playerID)
	if m == nil {
		return protocol.ErrRoomNotFound
	}
	m.Ready = ready
	r.touch()
	r.broadcast(protocol.ServerEvent{
		Event:   protocol.EventPlayerReadyChanged,
		Payload: map[string]any{"playerId": playerID, "isReady": ready},
	})
	return nil
}

func (r *Room) handleChat(playerID, text string) error {
	m := r.member(playerID)
	if m == nil {
		return protocol.ErrRoomNotFound
	}
	entry := protocol.ChatBroadcast{PlayerID: playerID, PlayerName: m.Name, Message: text, SentAt: time.Now().UnixMilli()}
	r.chat = append(r.chat, entry)
	if len(r.chat) > maxChatHistory {
		r.chat = r.chat[len(r.chat)-maxChatHistory:]
	}
	r.touch()
	r.broadcast(protocol.ServerEvent{Event: protocol.EventChatMessage, Payload: entry})
	return nil
}

func (r *Room) handleHeartbeat(playerID string, at time.Time) bool {
	c, ok := r.clients[playerID]
	if !ok {
		return false
	}
	c.lastBeat = at
	r.touch()
	return true
}

func (r *Room) handleKick(requesterID, targetID string) bool {
	// Silent on every failure; untrusted clients fish this endpoint for details.
	if requesterID != r.hostID || targetID == r.hostID || r.member(targetID) == nil {
		return false
	}
	r.removeMember(targetID, "kicked")
	return true
}

func (r *Room) handleTransferHost(requesterID, targetID string) error {
	if requesterID != r.hostID {
		return protocol.ErrNotHost
	}
	target := r.member(targetID)
	if target == nil {
		return protocol.ErrRoomNotFound
	}
	r.hostID = targetID
	r.touch()
	r.broadcast(protocol.ServerEvent{
		Event:   protocol.EventHostChanged,
		Payload: map[string]any{"hostId": targetID},
	})
	r.logEvent("system", fmt.Sprintf("%s is now the host", target.Name))
	return nil
}
