package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/veilbound/veilbound-backend/internal/game"
)

// DecodeEnvelope sniffs the event name before committing to a typed decode,
// so malformed frames fail fast without a partial unmarshal.
func DecodeEnvelope(data []byte) (Envelope, error) {
	if !gjson.ValidBytes(data) {
		return Envelope{}, fmt.Errorf("%w: malformed json", game.ErrInvalidAction)
	}
	event := gjson.GetBytes(data, "event")
	if !event.Exists() || event.String() == "" {
		return Envelope{}, fmt.Errorf("%w: missing event name", game.ErrInvalidAction)
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", game.ErrInvalidAction, err)
	}
	return env, nil
}

// DecodeAction turns a player_action payload into a typed game action. The
// boundary validates shape; legality is the state machine's job.
func DecodeAction(p PlayerActionPayload) (game.Action, error) {
	t := game.ActionType(p.ActionType)
	switch t {
	case game.ActStartGame, game.ActAdvancePhase, game.ActBeginBattle, game.ActBeginScenario,
		game.ActAttack, game.ActUseAbility, game.ActDefend, game.ActFlee,
		game.ActMove, game.ActInvestigate, game.ActShareClue, game.ActAskQuestion:
	default:
		return game.Action{}, fmt.Errorf("%w: unknown action type %q", game.ErrInvalidAction, p.ActionType)
	}
	a := game.Action{Type: t, PlayerID: p.PlayerID}
	if len(p.ActionData) > 0 {
		var d ActionData
		if err := json.Unmarshal(p.ActionData, &d); err != nil {
			return game.Action{}, fmt.Errorf("%w: bad action data: %v", game.ErrInvalidAction, err)
		}
		a.TargetID = d.TargetID
		a.AbilityID = d.AbilityID
		a.LocationID = d.LocationID
		a.ClueID = d.ClueID
		a.QuestionID = d.QuestionID
		a.EnemyID = d.EnemyID
		a.ScenarioID = d.ScenarioID
		if d.Phase != "" {
			a.TargetID = d.Phase
		}
	}
	return a, nil
}

func decodePayload[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, fmt.Errorf("%w: missing payload", game.ErrInvalidAction)
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("%w: %v", game.ErrInvalidAction, err)
	}
	return v, nil
}

func DecodeJoinRoom(raw json.RawMessage) (JoinRoomPayload, error) {
	p, err := decodePayload[JoinRoomPayload](raw)
	if err == nil && (p.RoomID == "" || p.PlayerID == "") {
		return p, fmt.Errorf("%w: roomId and playerId required", game.ErrInvalidAction)
	}
	return p, err
}

func DecodeLeaveRoom(raw json.RawMessage) (LeaveRoomPayload, error) {
	return decodePayload[LeaveRoomPayload](raw)
}

func DecodeReadyStatus(raw json.RawMessage) (ReadyStatusPayload, error) {
	return decodePayload[ReadyStatusPayload](raw)
}

func DecodeChatMessage(raw json.RawMessage) (ChatMessagePayload, error) {
	p, err := decodePayload[ChatMessagePayload](raw)
	if err == nil && p.Message == "" {
		return p, fmt.Errorf("%w: empty message", game.ErrInvalidAction)
	}
	return p, err
}

func DecodePlayerAction(raw json.RawMessage) (PlayerActionPayload, error) {
	return decodePayload[PlayerActionPayload](raw)
}

func DecodeScenarioChoice(raw json.RawMessage) (ScenarioChoicePayload, error) {
	p, err := decodePayload[ScenarioChoicePayload](raw)
	if err == nil && (p.ScenarioID == "" || p.ChoiceID == "") {
		return p, fmt.Errorf("%w: scenarioId and choiceId required", game.ErrInvalidAction)
	}
	return p, err
}

func DecodeRequestSync(raw json.RawMessage) (RequestSyncPayload, error) {
	p, err := decodePayload[RequestSyncPayload](raw)
	if err != nil {
		return p, err
	}
	switch p.SyncType {
	case "", "full", "battle", "scenario", "exploration":
		return p, nil
	default:
		return p, fmt.Errorf("%w: bad syncType %q", game.ErrInvalidAction, p.SyncType)
	}
}

func DecodeHeartbeat(raw json.RawMessage) (HeartbeatPayload, error) {
	return decodePayload[HeartbeatPayload](raw)
}
