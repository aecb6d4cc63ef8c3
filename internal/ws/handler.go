// Package ws bridges websocket connections to room actors: one reader loop,
// one writer pump, and a forwarder that copies the room's outbox onto the
// wire. Every client call gets exactly one acknowledgement.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/veilbound/veilbound-backend/internal/auth"
	"github.com/veilbound/veilbound-backend/internal/game"
	"github.com/veilbound/veilbound-backend/internal/protocol"
	"github.com/veilbound/veilbound-backend/internal/registry"
	"github.com/veilbound/veilbound-backend/internal/room"
)

const (
	helloTimeout = 10 * time.Second
	readTimeout  = 90 * time.Second // longer than the heartbeat grace
	writeTimeout = 5 * time.Second
	replyTimeout = 5 * time.Second
)

var errInternal = errors.New("internal error")

func Handler(reg *registry.Registry, verifier *auth.Verifier, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		s := &session{
			conn:     conn,
			reg:      reg,
			verifier: verifier,
			log:      log,
			out:      make(chan protocol.ServerEvent, 32),
		}
		s.run(r)
	}
}

type session struct {
	conn     *websocket.Conn
	reg      *registry.Registry
	verifier *auth.Verifier
	log      *zap.Logger
	out      chan protocol.ServerEvent

	playerID   string
	connID     string
	rm         *room.Room
	roomOutbox chan protocol.ServerEvent
}

func (s *session) run(r *http.Request) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	defer s.conn.Close(websocket.StatusNormalClosure, "bye")

	// Hello writes its acks directly; the pump takes over only once a member
	// is attached, so a refused handshake cannot lose its reply.
	if !s.hello(ctx, r) {
		return
	}
	defer func() { s.rm.Inbox() <- room.Detach{ConnID: s.connID} }()

	// Writer pump: from here on, the only goroutine that touches conn.Write.
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case evt := <-s.out:
				payload, err := json.Marshal(evt)
				if err != nil {
					continue
				}
				wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
				_ = s.conn.Write(wctx, websocket.MessageText, payload)
				wcancel()
			}
		}
	}()

	// Forwarder: room outbox -> wire. The room closes the outbox when the
	// connection is dropped or the room disbands.
	go func() {
		for evt := range s.roomOutbox {
			select {
			case s.out <- evt:
			case <-ctx.Done():
				return
			}
		}
		cancel() // room is done with us
	}()

	for {
		rctx, rcancel := context.WithTimeout(ctx, readTimeout)
		_, data, err := s.conn.Read(rctx)
		rcancel()
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				if ctx.Err() == nil {
					s.log.Debug("socket read failed", zap.Error(err))
				}
			}
			return
		}
		if stop := s.dispatch(data); stop {
			return
		}
	}
}

// hello reads the first frame, which must be join_room, and acknowledges it
// with the full snapshot.
func (s *session) hello(ctx context.Context, r *http.Request) bool {
	hctx, hcancel := context.WithTimeout(ctx, helloTimeout)
	_, data, err := s.conn.Read(hctx)
	hcancel()
	if err != nil {
		return false
	}
	env, err := protocol.DecodeEnvelope(data)
	if err != nil {
		s.ackNow(env.CallID, nil, err)
		return false
	}
	if env.Event != protocol.EventJoinRoom {
		s.ackNow(env.CallID, nil, fmt.Errorf("%w: expected join_room first", game.ErrInvalidAction))
		return false
	}
	p, err := protocol.DecodeJoinRoom(env.Payload)
	if err != nil {
		s.ackNow(env.CallID, nil, err)
		return false
	}
	if err := s.verifier.Verify(r, p.PlayerID); err != nil {
		s.ackNow(env.CallID, nil, err)
		return false
	}
	s.playerID = p.PlayerID
	s.connID = uuid.NewString()

	res, err := s.attach(p)
	if err != nil {
		s.ackNow(env.CallID, nil, err)
		return false
	}
	s.ackNow(env.CallID, res.Snapshot, nil)
	return true
}

// ackNow writes on the caller's goroutine; only valid before the pump starts.
func (s *session) ackNow(callID string, data any, err error) {
	body := protocol.Ack{Success: err == nil, Data: data, Error: protocol.ToError(err)}
	payload, merr := json.Marshal(protocol.ServerEvent{Event: protocol.EventAck, CallID: callID, Payload: body})
	if merr != nil {
		return
	}
	wctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	_ = s.conn.Write(wctx, websocket.MessageText, payload)
}

func (s *session) attach(p protocol.JoinRoomPayload) (room.AttachResult, error) {
	var rm *room.Room
	if p.Rejoin {
		rm = s.reg.Get(p.RoomID)
		if rm == nil {
			return room.AttachResult{}, protocol.ErrRoomNotFound
		}
	} else {
		var err error
		rm, err = s.reg.Join(p.RoomID, p.PlayerID, p.PlayerName)
		if err != nil {
			// A member who joined over HTTP binds their connection here.
			if !errors.Is(err, protocol.ErrAlreadyInRoom) || rm == nil {
				return room.AttachResult{}, err
			}
		}
	}
	outbox := make(chan protocol.ServerEvent, 16)
	reply := make(chan room.AttachResult, 1)
	rm.Inbox() <- room.Attach{
		PlayerID: p.PlayerID,
		Name:     p.PlayerName,
		ConnID:   s.connID,
		Rejoin:   p.Rejoin,
		Outbox:   outbox,
		Reply:    reply,
	}
	res, ok := awaitReply(reply)
	if !ok {
		return room.AttachResult{}, errInternal
	}
	if res.Err != nil {
		return room.AttachResult{}, res.Err
	}
	s.rm = rm
	s.roomOutbox = outbox
	return res, nil
}

// dispatch handles one inbound frame and guarantees a single reply for every
// call shape. Returns true when the session should end (leave_room).
func (s *session) dispatch(data []byte) bool {
	env, err := protocol.DecodeEnvelope(data)
	if err != nil {
		s.ack("", nil, err)
		return false
	}

	switch env.Event {
	case protocol.EventHeartbeat:
		p, err := protocol.DecodeHeartbeat(env.Payload)
		if err != nil {
			s.ack(env.CallID, nil, err)
			return false
		}
		at := time.Now()
		if p.Timestamp > 0 {
			at = time.UnixMilli(p.Timestamp)
		}
		reply := make(chan bool, 1)
		s.rm.Inbox() <- room.Heartbeat{PlayerID: s.playerID, At: at, Reply: reply}
		if alive, ok := awaitReply(reply); !ok || !alive {
			s.ack(env.CallID, nil, protocol.ErrRoomNotFound)
			return false
		}
		s.ack(env.CallID, map[string]any{"alive": true}, nil)

	case protocol.EventLeaveRoom:
		// Fire-and-forget by contract; the player_left broadcast is the echo.
		p, err := protocol.DecodeLeaveRoom(env.Payload)
		reason := "left"
		if err == nil && p.Reason != "" {
			reason = p.Reason
		}
		s.rm.Inbox() <- room.Leave{PlayerID: s.playerID, Reason: reason}
		return true

	case protocol.EventReadyStatus:
		p, err := protocol.DecodeReadyStatus(env.Payload)
		if err != nil {
			s.ack(env.CallID, nil, err)
			return false
		}
		reply := make(chan error, 1)
		s.rm.Inbox() <- room.Ready{PlayerID: s.playerID, Ready: p.IsReady, Reply: reply}
		if err := s.awaitErr(reply); err != nil {
			s.ack(env.CallID, nil, err)
			return false
		}
		s.ack(env.CallID, map[string]any{"isReady": p.IsReady}, nil)

	case protocol.EventChatMessage:
		p, err := protocol.DecodeChatMessage(env.Payload)
		if err != nil {
			s.ack(env.CallID, nil, err)
			return false
		}
		reply := make(chan error, 1)
		s.rm.Inbox() <- room.Chat{PlayerID: s.playerID, Text: p.Message, Reply: reply}
		s.ack(env.CallID, nil, s.awaitErr(reply))

	case protocol.EventPlayerAction:
		p, err := protocol.DecodePlayerAction(env.Payload)
		if err != nil {
			s.ack(env.CallID, nil, err)
			return false
		}
		action, err := protocol.DecodeAction(p)
		if err != nil {
			s.ack(env.CallID, nil, err)
			return false
		}
		action.PlayerID = s.playerID
		s.sendAct(env.CallID, action)

	case protocol.EventScenarioChoice:
		p, err := protocol.DecodeScenarioChoice(env.Payload)
		if err != nil {
			s.ack(env.CallID, nil, err)
			return false
		}
		s.sendAct(env.CallID, game.Action{
			Type:       game.ActScenarioChoice,
			PlayerID:   s.playerID,
			ScenarioID: p.ScenarioID,
			ChoiceID:   p.ChoiceID,
		})

	case protocol.EventRequestSync:
		p, err := protocol.DecodeRequestSync(env.Payload)
		if err != nil {
			s.ack(env.CallID, nil, err)
			return false
		}
		reply := make(chan room.SyncResult, 1)
		s.rm.Inbox() <- room.SyncReq{PlayerID: s.playerID, SyncType: p.SyncType, Reply: reply}
		if res, ok := awaitReply(reply); ok {
			s.ack(env.CallID, res.Payload, res.Err)
		} else {
			s.ack(env.CallID, nil, errInternal)
		}

	default:
		s.ack(env.CallID, nil, fmt.Errorf("%w: unknown event %q", game.ErrInvalidAction, env.Event))
	}
	return false
}

func (s *session) sendAct(callID string, a game.Action) {
	reply := make(chan room.ActResult, 1)
	s.rm.Inbox() <- room.Act{Action: a, Reply: reply}
	res, ok := awaitReply(reply)
	if !ok {
		s.ack(callID, nil, errInternal)
		return
	}
	if res.Err != nil {
		s.ack(callID, nil, res.Err)
		return
	}
	s.ack(callID, map[string]any{"version": res.Version, "events": res.Events, "diff": res.Diff}, nil)
}

// ack emits the one reply a call is owed: a success payload or a structured
// error. Unmapped internal failures surface as a generic failure body.
func (s *session) ack(callID string, data any, err error) {
	body := protocol.Ack{Success: err == nil, Data: data, Error: protocol.ToError(err)}
	select {
	case s.out <- protocol.ServerEvent{Event: protocol.EventAck, CallID: callID, Payload: body}:
	case <-time.After(writeTimeout):
	}
}

func (s *session) awaitErr(ch <-chan error) error {
	err, ok := awaitReply(ch)
	if !ok {
		return errInternal
	}
	return err
}

// awaitReply bounds every wait on a room so a wedged loop can never leave a
// caller without their single reply.
func awaitReply[T any](ch <-chan T) (T, bool) {
	select {
	case v := <-ch:
		return v, true
	case <-time.After(replyTimeout):
		var zero T
		return zero, false
	}
}
