// Package registry is the single source of truth for which rooms exist and
// who belongs to each. The code→room map lives under a reader/writer lock;
// the playerID→code index is derived bookkeeping, never a second source of
// truth for membership — rooms own their members.
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/veilbound/veilbound-backend/internal/game"
	"github.com/veilbound/veilbound-backend/internal/protocol"
	"github.com/veilbound/veilbound-backend/internal/room"
)

type Config struct {
	RoomTTL          time.Duration
	SweepInterval    time.Duration
	HeartbeatGrace   time.Duration
	MemberGrace      time.Duration
	ScenarioMajority float64
	BattleTurnLimit  time.Duration
	ScenarioLimit    time.Duration
}

type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*room.Room
	index map[string]string // playerID -> room code; derived, invalidated on mutation

	cfg     Config
	log     *zap.Logger
	persist room.Deps // persistence hooks shared by every room
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// PersistHooks are the write-behind callbacks handed to each room.
type PersistHooks struct {
	Persist func(code string, info room.Info, state game.State)
	Audit   func(code, kind, actor, detail string)
}

func New(parent context.Context, cfg Config, hooks PersistHooks, log *zap.Logger) *Registry {
	ctx, cancel := context.WithCancel(parent)
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 30 * time.Minute
	}
	if cfg.RoomTTL <= 0 {
		cfg.RoomTTL = 2 * time.Hour
	}
	r := &Registry{
		rooms:  make(map[string]*room.Room),
		index:  make(map[string]string),
		cfg:    cfg,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
	r.persist = room.Deps{Persist: hooks.Persist, Audit: hooks.Audit}
	r.wg.Add(1)
	go r.sweepLoop()
	return r
}

// Stop cancels the sweep and disbands every room.
func (g *Registry) Stop() {
	g.cancel()
	g.mu.RLock()
	rooms := make([]*room.Room, 0, len(g.rooms))
	for _, rm := range g.rooms {
		rooms = append(rooms, rm)
	}
	g.mu.RUnlock()
	for _, rm := range rooms {
		select {
		case rm.Inbox() <- room.Disband{Notice: "server shutting down"}:
		case <-time.After(time.Second):
		}
	}
	g.wg.Wait()
}

func (g *Registry) rules() game.Rules {
	return game.Rules{
		ScenarioMajority:   g.cfg.ScenarioMajority,
		BattleTurnLimitSec: int(g.cfg.BattleTurnLimit / time.Second),
		ScenarioLimitSec:   int(g.cfg.ScenarioLimit / time.Second),
	}
}

// CreateRoom registers a new room with the caller as host. The host is a
// member from the start.
func (g *Registry) CreateRoom(hostID, hostName, name string, maxPlayers int, public bool, difficulty string) (*room.Room, string, error) {
	if maxPlayers < 2 || maxPlayers > 6 {
		return nil, "", protocol.ErrInvalidSize
	}
	if hostID == "" {
		return nil, "", fmt.Errorf("%w: missing host id", game.ErrInvalidAction)
	}

	g.mu.Lock()
	if _, taken := g.index[hostID]; taken {
		g.mu.Unlock()
		return nil, "", protocol.ErrAlreadyInRoom
	}
	code, err := g.newCodeLocked()
	if err != nil {
		g.mu.Unlock()
		return nil, "", err
	}
	rules := g.rules()
	rules.Difficulty = difficulty
	deps := g.persist
	deps.OnPlayerRemoved = g.releasePlayer
	deps.OnRoomClosed = g.releaseRoom
	rm := room.New(g.ctx, code, name, hostID,
		room.Settings{MaxPlayers: maxPlayers, Public: public, Difficulty: difficulty},
		rules,
		room.Config{HeartbeatGrace: g.cfg.HeartbeatGrace, MemberGrace: g.cfg.MemberGrace},
		deps, g.log)
	g.rooms[code] = rm
	g.index[hostID] = code
	g.mu.Unlock()

	reply := make(chan error, 1)
	joinErr, ok := room.Ask(rm, room.AddMember{PlayerID: hostID, Name: hostName, Reply: reply}, reply)
	if !ok {
		g.releasePlayer(hostID)
		return nil, "", protocol.ErrRoomNotFound
	}
	if joinErr != nil {
		g.releasePlayer(hostID)
		return nil, "", joinErr
	}
	g.log.Info("room created", zap.String("code", code), zap.String("host", hostID))
	return rm, code, nil
}

// Join adds a member to an existing room. The index entry is reserved before
// talking to the room so a player can never land in two rooms at once; the
// reservation is released if the room says no, or if it shut down before
// answering.
func (g *Registry) Join(code, playerID, displayName string) (*room.Room, error) {
	g.mu.Lock()
	rm, ok := g.rooms[code]
	if !ok {
		g.mu.Unlock()
		return nil, protocol.ErrRoomNotFound
	}
	if existing, taken := g.index[playerID]; taken {
		g.mu.Unlock()
		if existing == code {
			return rm, protocol.ErrAlreadyInRoom
		}
		return nil, protocol.ErrAlreadyInRoom
	}
	g.index[playerID] = code
	g.mu.Unlock()

	reply := make(chan error, 1)
	addErr, ok := room.Ask(rm, room.AddMember{PlayerID: playerID, Name: displayName, Reply: reply}, reply)
	if !ok {
		g.releasePlayer(playerID)
		return nil, protocol.ErrRoomNotFound
	}
	if addErr != nil {
		g.releasePlayer(playerID)
		return nil, addErr
	}
	return rm, nil
}

// Get returns the room for a code, or nil.
func (g *Registry) Get(code string) *room.Room {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.rooms[code]
}

// LookupPlayer resolves a player's current room from the derived index.
func (g *Registry) LookupPlayer(playerID string) (*room.Room, string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	code, ok := g.index[playerID]
	if !ok {
		return nil, "", false
	}
	rm, ok := g.rooms[code]
	return rm, code, ok
}

// Leave runs the normal leave path for a player, wherever they are.
func (g *Registry) Leave(playerID, reason string) {
	rm, _, ok := g.LookupPlayer(playerID)
	if !ok {
		return
	}
	select {
	case rm.Inbox() <- room.Leave{PlayerID: playerID, Reason: reason}:
	case <-rm.Done():
	}
}

// Kick returns false for any refusal; deliberately unexplained.
func (g *Registry) Kick(code, hostID, targetID string) bool {
	rm := g.Get(code)
	if rm == nil {
		return false
	}
	reply := make(chan bool, 1)
	kicked, ok := room.Ask(rm, room.Kick{RequesterID: hostID, TargetID: targetID, Reply: reply}, reply)
	return ok && kicked
}

func (g *Registry) TransferHost(code, hostID, targetID string) error {
	rm := g.Get(code)
	if rm == nil {
		return protocol.ErrRoomNotFound
	}
	reply := make(chan error, 1)
	err, ok := room.Ask(rm, room.TransferHost{RequesterID: hostID, TargetID: targetID, Reply: reply}, reply)
	if !ok {
		return protocol.ErrRoomNotFound
	}
	return err
}

// ListPublic projects every public room into a summary. Reads outnumber
// writes here, hence the RLock and the per-room info round-trip.
func (g *Registry) ListPublic() []protocol.RoomSummary {
	g.mu.RLock()
	rooms := make([]*room.Room, 0, len(g.rooms))
	for _, rm := range g.rooms {
		rooms = append(rooms, rm)
	}
	g.mu.RUnlock()

	out := []protocol.RoomSummary{}
	for _, rm := range rooms {
		reply := make(chan room.Info, 1)
		info, ok := room.Ask(rm, room.GetInfo{Reply: reply}, reply)
		if !ok || !info.Settings.Public {
			continue
		}
		out = append(out, protocol.RoomSummary{
			Code:       info.Code,
			Name:       info.Name,
			Players:    len(info.Members),
			MaxPlayers: info.Settings.MaxPlayers,
			Difficulty: info.Settings.Difficulty,
			Phase:      string(info.Phase),
			AllReady:   info.AllReady,
		})
	}
	return out
}

// releasePlayer and releaseRoom are the rooms' callbacks; they only touch the
// derived index and must stay cheap — they run on room goroutines.
func (g *Registry) releasePlayer(playerID string) {
	g.mu.Lock()
	delete(g.index, playerID)
	g.mu.Unlock()
}

func (g *Registry) releaseRoom(code string) {
	g.mu.Lock()
	delete(g.rooms, code)
	g.mu.Unlock()
	g.log.Info("room closed", zap.String("code", code))
}

func (g *Registry) sweepLoop() {
	defer g.wg.Done()
	t := time.NewTicker(g.cfg.SweepInterval)
	defer t.Stop()
	for {
		select {
		case <-g.ctx.Done():
			return
		case <-t.C:
			g.sweep()
		}
	}
}

// sweep disbands rooms idle past the TTL. Candidates are gathered without
// holding the lock across room round-trips.
func (g *Registry) sweep() {
	g.mu.RLock()
	rooms := make([]*room.Room, 0, len(g.rooms))
	for _, rm := range g.rooms {
		rooms = append(rooms, rm)
	}
	g.mu.RUnlock()

	cutoff := time.Now().Add(-g.cfg.RoomTTL)
	for _, rm := range rooms {
		reply := make(chan room.Info, 1)
		info, ok := room.Ask(rm, room.GetInfo{Reply: reply}, reply)
		if !ok {
			continue
		}
		if info.LastActivity.Before(cutoff) {
			g.log.Info("disbanding idle room", zap.String("code", info.Code))
			select {
			case rm.Inbox() <- room.Disband{Notice: "room closed for inactivity"}:
			case <-rm.Done():
			}
		}
	}
}
