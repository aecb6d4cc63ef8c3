package room

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/veilbound/veilbound-backend/internal/game"
	"github.com/veilbound/veilbound-backend/internal/protocol"
	"github.com/veilbound/veilbound-backend/internal/view"
)

const recvTimeout = 3 * time.Second

func newTestRoom(t *testing.T, maxPlayers int, rules game.Rules, cfg Config, deps Deps) *Room {
	t.Helper()
	r := New(context.Background(), "TESTRM", "Test Room", "h",
		Settings{MaxPlayers: maxPlayers, Public: true, Difficulty: "normal"},
		rules, cfg, deps, zap.NewNop())
	t.Cleanup(func() {
		select {
		case r.Inbox() <- Disband{}:
		case <-time.After(time.Second):
		}
	})
	return r
}

func attach(t *testing.T, r *Room, playerID, name string, rejoin bool) (chan protocol.ServerEvent, AttachResult) {
	t.Helper()
	outbox := make(chan protocol.ServerEvent, 64)
	reply := make(chan AttachResult, 1)
	r.Inbox() <- Attach{PlayerID: playerID, Name: name, ConnID: "conn-" + playerID, Rejoin: rejoin, Outbox: outbox, Reply: reply}
	select {
	case res := <-reply:
		return outbox, res
	case <-time.After(recvTimeout):
		t.Fatalf("attach %s: no reply", playerID)
		return nil, AttachResult{}
	}
}

func mustAttach(t *testing.T, r *Room, playerID, name string) chan protocol.ServerEvent {
	t.Helper()
	outbox, res := attach(t, r, playerID, name, false)
	if res.Err != nil {
		t.Fatalf("attach %s: %v", playerID, res.Err)
	}
	return outbox
}

func setReady(t *testing.T, r *Room, playerID string) {
	t.Helper()
	reply := make(chan error, 1)
	r.Inbox() <- Ready{PlayerID: playerID, Ready: true, Reply: reply}
	if err := <-reply; err != nil {
		t.Fatalf("ready %s: %v", playerID, err)
	}
}

func act(t *testing.T, r *Room, a game.Action) ActResult {
	t.Helper()
	reply := make(chan ActResult, 1)
	r.Inbox() <- Act{Action: a, Reply: reply}
	select {
	case res := <-reply:
		return res
	case <-time.After(recvTimeout):
		t.Fatalf("act %s: no reply", a.Type)
		return ActResult{}
	}
}

func getInfo(t *testing.T, r *Room) Info {
	t.Helper()
	reply := make(chan Info, 1)
	r.Inbox() <- GetInfo{Reply: reply}
	select {
	case info := <-reply:
		return info
	case <-time.After(recvTimeout):
		t.Fatalf("getInfo: no reply")
		return Info{}
	}
}

// waitForEvent drains the outbox until the named event arrives.
func waitForEvent(t *testing.T, ch chan protocol.ServerEvent, event string) protocol.ServerEvent {
	t.Helper()
	deadline := time.After(recvTimeout)
	for {
		select {
		case evt, ok := <-ch:
			if !ok {
				t.Fatalf("outbox closed while waiting for %s", event)
			}
			if evt.Event == event {
				return evt
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", event)
		}
	}
}

// waitForGameEvent skips frames until a game_event of the given type shows up.
func waitForGameEvent(t *testing.T, ch chan protocol.ServerEvent, et game.EventType) game.Event {
	t.Helper()
	deadline := time.After(recvTimeout)
	for {
		select {
		case evt, ok := <-ch:
			if !ok {
				t.Fatalf("outbox closed while waiting for %s", et)
			}
			if evt.Event != protocol.EventGameEvent {
				continue
			}
			ge, ok := evt.Payload.(game.Event)
			if !ok {
				t.Fatalf("game_event payload has type %T", evt.Payload)
			}
			if ge.Type == et {
				return ge
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", et)
		}
	}
}

func TestReadyFlowAndCapacity(t *testing.T) {
	r := newTestRoom(t, 2, game.Rules{}, Config{}, Deps{})
	mustAttach(t, r, "h", "Hana")
	mustAttach(t, r, "p1", "Piet")

	if getInfo(t, r).AllReady {
		t.Fatalf("room ready before anyone flagged")
	}
	setReady(t, r, "h")
	setReady(t, r, "p1")
	info := getInfo(t, r)
	if !info.AllReady {
		t.Fatalf("want all ready, members: %+v", info.Members)
	}
	if len(info.Members) != 2 {
		t.Fatalf("want 2 members, got %d", len(info.Members))
	}

	_, res := attach(t, r, "p2", "Paula", false)
	if !errors.Is(res.Err, protocol.ErrRoomFull) {
		t.Fatalf("want ErrRoomFull, got %v", res.Err)
	}
}

func TestChat_ReachesEveryMemberOnce(t *testing.T) {
	r := newTestRoom(t, 4, game.Rules{}, Config{}, Deps{})
	hOut := mustAttach(t, r, "h", "Hana")
	pOut := mustAttach(t, r, "p1", "Piet")
	waitForEvent(t, hOut, protocol.EventPlayerJoined)

	reply := make(chan error, 1)
	r.Inbox() <- Chat{PlayerID: "p1", Text: "hello?", Reply: reply}
	if err := <-reply; err != nil {
		t.Fatalf("chat: %v", err)
	}

	for name, ch := range map[string]chan protocol.ServerEvent{"host": hOut, "sender": pOut} {
		evt := waitForEvent(t, ch, protocol.EventChatMessage)
		msg, ok := evt.Payload.(protocol.ChatBroadcast)
		if !ok {
			t.Fatalf("%s: payload type %T", name, evt.Payload)
		}
		if msg.PlayerName != "Piet" || msg.Message != "hello?" {
			t.Fatalf("%s: wrong chat payload %+v", name, msg)
		}
	}
}

func TestRejoin_ResumesMembership(t *testing.T) {
	r := newTestRoom(t, 4, game.Rules{}, Config{MemberGrace: time.Minute}, Deps{})
	hOut := mustAttach(t, r, "h", "Hana")
	mustAttach(t, r, "p1", "Piet")
	waitForEvent(t, hOut, protocol.EventPlayerJoined)

	r.Inbox() <- Detach{ConnID: "conn-p1"}
	waitForEvent(t, hOut, protocol.EventPlayerDisconnected)
	info := getInfo(t, r)
	if len(info.Members) != 2 {
		t.Fatalf("member dropped on disconnect: %+v", info.Members)
	}

	_, res := attach(t, r, "p1", "Piet", true)
	if res.Err != nil {
		t.Fatalf("rejoin: %v", res.Err)
	}
	if !res.Reconnected {
		t.Fatalf("rejoin not flagged as reconnect")
	}
	if len(res.Snapshot.Members) != 2 {
		t.Fatalf("snapshot lost a member: %+v", res.Snapshot.Members)
	}
	waitForEvent(t, hOut, protocol.EventPlayerReconnected)
}

func TestRejoin_AfterGraceExpiryFails(t *testing.T) {
	r := newTestRoom(t, 4, game.Rules{}, Config{}, Deps{})
	mustAttach(t, r, "h", "Hana")

	_, res := attach(t, r, "ghost", "Ghost", true)
	if !errors.Is(res.Err, protocol.ErrRoomNotFound) {
		t.Fatalf("want ErrRoomNotFound for expired rejoin, got %v", res.Err)
	}
}

func TestHostLeave_TransfersToEarliestJoined(t *testing.T) {
	var removed []string
	removedCh := make(chan string, 8)
	r := newTestRoom(t, 4, game.Rules{}, Config{}, Deps{
		OnPlayerRemoved: func(id string) { removedCh <- id },
	})
	mustAttach(t, r, "h", "Hana")
	pOut := mustAttach(t, r, "p1", "Piet")
	mustAttach(t, r, "p2", "Paula")

	r.Inbox() <- Leave{PlayerID: "h", Reason: "left"}
	waitForEvent(t, pOut, protocol.EventPlayerLeft)
	evt := waitForEvent(t, pOut, protocol.EventHostChanged)
	payload := evt.Payload.(map[string]any)
	if payload["hostId"] != "p1" {
		t.Fatalf("want earliest joined as host, got %v", payload["hostId"])
	}
	if getInfo(t, r).HostID != "p1" {
		t.Fatalf("room host not updated")
	}

	select {
	case id := <-removedCh:
		removed = append(removed, id)
	case <-time.After(recvTimeout):
		t.Fatalf("registry was not told about the removal")
	}
	if removed[0] != "h" {
		t.Fatalf("wrong removal reported: %v", removed)
	}
}

func TestKick_SilentOnEveryFailure(t *testing.T) {
	r := newTestRoom(t, 4, game.Rules{}, Config{}, Deps{})
	mustAttach(t, r, "h", "Hana")
	mustAttach(t, r, "p1", "Piet")

	kick := func(requester, target string) bool {
		reply := make(chan bool, 1)
		r.Inbox() <- Kick{RequesterID: requester, TargetID: target, Reply: reply}
		return <-reply
	}

	if kick("p1", "h") {
		t.Fatalf("non-host kicked the host")
	}
	if kick("h", "h") {
		t.Fatalf("host kicked themselves")
	}
	if kick("h", "nobody") {
		t.Fatalf("kicked a player who is not in the room")
	}
	if !kick("h", "p1") {
		t.Fatalf("host could not kick a member")
	}
	if len(getInfo(t, r).Members) != 1 {
		t.Fatalf("kicked member still present")
	}
}

func TestStartGame_GatedOnReadyFlags(t *testing.T) {
	r := newTestRoom(t, 4, game.Rules{}, Config{}, Deps{})
	hOut := mustAttach(t, r, "h", "Hana")
	pOut := mustAttach(t, r, "p1", "Piet")
	waitForEvent(t, hOut, protocol.EventPlayerJoined)

	res := act(t, r, game.Action{Type: game.ActStartGame, PlayerID: "h"})
	if !errors.Is(res.Err, game.ErrNotReady) {
		t.Fatalf("want ErrNotReady, got %v", res.Err)
	}

	setReady(t, r, "h")
	setReady(t, r, "p1")
	res = act(t, r, game.Action{Type: game.ActStartGame, PlayerID: "h"})
	if res.Err != nil {
		t.Fatalf("start: %v", res.Err)
	}
	if res.Version != 1 {
		t.Fatalf("want version 1 after first commit, got %d", res.Version)
	}

	// Both members see the start and the state diff, in commit order.
	for _, ch := range []chan protocol.ServerEvent{hOut, pOut} {
		waitForGameEvent(t, ch, game.EvtGameStarted)
		evt := waitForEvent(t, ch, protocol.EventStateDiff)
		payload := evt.Payload.(map[string]any)
		if payload["version"] != 1 {
			t.Fatalf("diff version: %v", payload["version"])
		}
	}
	if getInfo(t, r).Phase != game.PhaseInterrogation {
		t.Fatalf("phase did not advance")
	}
}

func TestActionRejection_NotBroadcast(t *testing.T) {
	r := newTestRoom(t, 4, game.Rules{}, Config{}, Deps{})
	hOut := mustAttach(t, r, "h", "Hana")
	mustAttach(t, r, "p1", "Piet")
	waitForEvent(t, hOut, protocol.EventPlayerJoined)

	res := act(t, r, game.Action{Type: game.ActStartGame, PlayerID: "p1"})
	if !errors.Is(res.Err, game.ErrNotHost) {
		t.Fatalf("want ErrNotHost, got %v", res.Err)
	}
	select {
	case evt := <-hOut:
		t.Fatalf("rejected action leaked a broadcast: %+v", evt)
	case <-time.After(100 * time.Millisecond):
	}
	if getInfo(t, r).Version != 0 {
		t.Fatalf("version bumped on rejected action")
	}
}

func startScenario(t *testing.T, r *Room) {
	t.Helper()
	setReady(t, r, "h")
	setReady(t, r, "p1")
	if res := act(t, r, game.Action{Type: game.ActStartGame, PlayerID: "h"}); res.Err != nil {
		t.Fatalf("start: %v", res.Err)
	}
	if res := act(t, r, game.Action{Type: game.ActBeginScenario, PlayerID: "h", ScenarioID: "bridge_toll"}); res.Err != nil {
		t.Fatalf("begin scenario: %v", res.Err)
	}
}

func TestScenarioChoice_HiddenFromTeammates(t *testing.T) {
	r := newTestRoom(t, 4, game.Rules{}, Config{}, Deps{})
	hOut := mustAttach(t, r, "h", "Hana")
	pOut := mustAttach(t, r, "p1", "Piet")
	waitForEvent(t, hOut, protocol.EventPlayerJoined)
	startScenario(t, r)

	res := act(t, r, game.Action{Type: game.ActScenarioChoice, PlayerID: "p1", ChoiceID: "pay"})
	if res.Err != nil {
		t.Fatalf("choice: %v", res.Err)
	}

	// The teammate learns that p1 chose, never what.
	evt := waitForEvent(t, hOut, protocol.EventScenarioChoiceMade)
	ge, ok := evt.Payload.(game.Event)
	if !ok {
		t.Fatalf("payload type %T", evt.Payload)
	}
	if ge.PlayerID != "p1" {
		t.Fatalf("wrong actor: %q", ge.PlayerID)
	}
	if ge.ChoiceID != "" {
		t.Fatalf("choice id leaked to teammate: %q", ge.ChoiceID)
	}

	// The teammate's diff carries a has-chosen flag, not the pick.
	dv := waitForEvent(t, hOut, protocol.EventStateDiff)
	diffPayload := dv.Payload.(map[string]any)
	vd, ok := diffPayload["diff"].(view.ViewDiff)
	if !ok {
		t.Fatalf("diff payload type %T", diffPayload["diff"])
	}
	if vd.Scenario == nil || !vd.Scenario.Chosen["p1"] {
		t.Fatalf("has-chosen flag missing: %+v", vd.Scenario)
	}
	if vd.Scenario.YourChoice != "" {
		t.Fatalf("pick leaked through the diff: %q", vd.Scenario.YourChoice)
	}

	// The chooser does not get the others-only broadcast back.
	deadline := time.After(100 * time.Millisecond)
	for {
		select {
		case evt := <-pOut:
			if evt.Event == protocol.EventScenarioChoiceMade {
				t.Fatalf("actor received the others-only broadcast")
			}
		case <-deadline:
			return
		}
	}
}

func TestDisband_NotifiesConnectedMembers(t *testing.T) {
	closed := make(chan string, 1)
	r := New(context.Background(), "GONE01", "Doomed", "h",
		Settings{MaxPlayers: 4}, game.Rules{}, Config{}, Deps{
			OnRoomClosed: func(code string) { closed <- code },
		}, zap.NewNop())
	hOut := mustAttach(t, r, "h", "Hana")

	r.Inbox() <- Disband{Notice: "idle too long"}
	evt := waitForEvent(t, hOut, protocol.EventRoomDisbanded)
	payload := evt.Payload.(map[string]any)
	if payload["reason"] != "idle too long" {
		t.Fatalf("wrong notice: %v", payload["reason"])
	}
	select {
	case code := <-closed:
		if code != "GONE01" {
			t.Fatalf("wrong code released: %s", code)
		}
	case <-time.After(recvTimeout):
		t.Fatalf("registry never told the room closed")
	}
	// The outbox closes after the notice.
	for {
		if _, ok := <-hOut; !ok {
			return
		}
	}
}

func TestTurnTimeout_AutoPassesTheActor(t *testing.T) {
	r := newTestRoom(t, 4, game.Rules{BattleTurnLimitSec: 1}, Config{}, Deps{})
	hOut := mustAttach(t, r, "h", "Hana")
	mustAttach(t, r, "p1", "Piet")
	waitForEvent(t, hOut, protocol.EventPlayerJoined)

	setReady(t, r, "h")
	setReady(t, r, "p1")
	if res := act(t, r, game.Action{Type: game.ActStartGame, PlayerID: "h"}); res.Err != nil {
		t.Fatalf("start: %v", res.Err)
	}
	if res := act(t, r, game.Action{Type: game.ActBeginBattle, PlayerID: "h", EnemyID: "goblin_scout"}); res.Err != nil {
		t.Fatalf("begin battle: %v", res.Err)
	}

	// Nobody acts; the limit expires and the turn moves on its own.
	ge := waitForGameEvent(t, hOut, game.EvtTurnAdvanced)
	if ge.PlayerID != "p1" {
		t.Fatalf("want turn handed to p1, got %q", ge.PlayerID)
	}
}

func TestSweep_ExpiresDisconnectedMembers(t *testing.T) {
	r := newTestRoom(t, 4, game.Rules{}, Config{
		MemberGrace: 50 * time.Millisecond,
		SweepEvery:  25 * time.Millisecond,
	}, Deps{})
	hOut := mustAttach(t, r, "h", "Hana")
	mustAttach(t, r, "p1", "Piet")
	waitForEvent(t, hOut, protocol.EventPlayerJoined)

	r.Inbox() <- Detach{ConnID: "conn-p1"}
	waitForEvent(t, hOut, protocol.EventPlayerDisconnected)
	sys := waitForEvent(t, hOut, protocol.EventSystem)
	sysPayload := sys.Payload.(map[string]any)
	if sysPayload["message"] != "Piet was removed after losing connection" {
		t.Fatalf("wrong system notice: %v", sysPayload["message"])
	}
	evt := waitForEvent(t, hOut, protocol.EventPlayerLeft)
	payload := evt.Payload.(map[string]any)
	if payload["reason"] != "timeout" {
		t.Fatalf("want timeout removal, got %v", payload["reason"])
	}
	if len(getInfo(t, r).Members) != 1 {
		t.Fatalf("expired member still present")
	}
}

func TestAsk_FailsFastAfterShutdown(t *testing.T) {
	r := New(context.Background(), "DEAD01", "Closing", "h",
		Settings{MaxPlayers: 4}, game.Rules{}, Config{}, Deps{}, zap.NewNop())
	mustAttach(t, r, "h", "Hana")
	r.Inbox() <- Disband{}
	select {
	case <-r.Done():
	case <-time.After(recvTimeout):
		t.Fatalf("room never shut down")
	}

	// A join that raced the disband lands in the inbox buffer after the loop
	// has exited. The caller must get a refusal, not block forever.
	reply := make(chan error, 1)
	start := time.Now()
	_, ok := Ask(r, AddMember{PlayerID: "late", Name: "Late", Reply: reply}, reply)
	if ok {
		t.Fatalf("ask succeeded against a closed room")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("ask took %v to give up", elapsed)
	}
}

func TestActorLeaveMidBattle_TurnMovesOn(t *testing.T) {
	r := newTestRoom(t, 4, game.Rules{BattleTurnLimitSec: 1}, Config{}, Deps{})
	mustAttach(t, r, "h", "Hana")
	pOut := mustAttach(t, r, "p1", "Piet")
	mustAttach(t, r, "p2", "Paula")
	setReady(t, r, "h")
	setReady(t, r, "p1")
	setReady(t, r, "p2")
	if res := act(t, r, game.Action{Type: game.ActStartGame, PlayerID: "h"}); res.Err != nil {
		t.Fatalf("start: %v", res.Err)
	}
	if res := act(t, r, game.Action{Type: game.ActBeginBattle, PlayerID: "h", EnemyID: "goblin_scout"}); res.Err != nil {
		t.Fatalf("begin battle: %v", res.Err)
	}

	// The acting player walks out. The survivors need the new order, and the
	// turn deadline must follow the new actor.
	r.Inbox() <- Leave{PlayerID: "h", Reason: "left"}
	waitForEvent(t, pOut, protocol.EventPlayerLeft)
	dv := waitForEvent(t, pOut, protocol.EventStateDiff)
	vd := dv.Payload.(map[string]any)["diff"].(view.ViewDiff)
	if vd.Turn == nil {
		t.Fatalf("no turn state in the diff after the actor left")
	}
	if vd.Turn.Actor() != "p1" {
		t.Fatalf("want p1 as the new actor, got %q", vd.Turn.Actor())
	}

	// Nobody acts; the re-armed limit expires and the turn moves on its own.
	ge := waitForGameEvent(t, pOut, game.EvtTurnAdvanced)
	if ge.PlayerID != "p2" {
		t.Fatalf("want turn handed to p2, got %q", ge.PlayerID)
	}
}
