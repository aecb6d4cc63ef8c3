// Package protocol defines the wire shapes shared by the websocket channel
// and the HTTP surface: the client call envelope, typed payloads per event,
// server push events, and the error taxonomy.
package protocol

import "encoding/json"

// Client -> server event names.
const (
	EventJoinRoom       = "join_room"
	EventLeaveRoom      = "leave_room"
	EventReadyStatus    = "ready_status"
	EventChatMessage    = "chat_message"
	EventPlayerAction   = "player_action"
	EventScenarioChoice = "scenario_choice"
	EventRequestSync    = "request_sync"
	EventHeartbeat      = "heartbeat"
)

// Server -> client event names.
const (
	EventAck                = "ack"
	EventRoomSnapshot       = "room_snapshot"
	EventStateDiff          = "state_diff"
	EventPlayerJoined       = "player_joined"
	EventPlayerLeft         = "player_left"
	EventPlayerReadyChanged = "player_ready_changed"
	EventPlayerDisconnected = "player_disconnected"
	EventPlayerReconnected  = "player_reconnected"
	EventHostChanged        = "host_changed"
	EventScenarioChoiceMade = "scenario_choice_made"
	EventScenarioResolved   = "scenario_resolved"
	EventGameEvent          = "game_event"
	EventSystem             = "system"
	EventRoomDisbanded      = "room_disbanded"
)

// Envelope is the request frame for every client-initiated call. CallID
// correlates the single reply the server owes the caller.
type Envelope struct {
	Event   string          `json:"event"`
	CallID  string          `json:"call_id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ServerEvent is the push/reply frame.
type ServerEvent struct {
	Event   string `json:"event"`
	CallID  string `json:"call_id,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

// Ack is the payload of every reply: success with data, or a structured error.
type Ack struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type JoinRoomPayload struct {
	RoomID     string `json:"roomId"`
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	Rejoin     bool   `json:"rejoin,omitempty"`
}

type LeaveRoomPayload struct {
	RoomID   string `json:"roomId"`
	PlayerID string `json:"playerId"`
	Reason   string `json:"reason,omitempty"`
}

type ReadyStatusPayload struct {
	RoomID   string `json:"roomId"`
	PlayerID string `json:"playerId"`
	IsReady  bool   `json:"isReady"`
}

type ChatMessagePayload struct {
	RoomID   string `json:"roomId"`
	PlayerID string `json:"playerId"`
	Message  string `json:"message"`
}

type PlayerActionPayload struct {
	RoomID     string          `json:"roomId"`
	PlayerID   string          `json:"playerId"`
	ActionType string          `json:"actionType"`
	ActionData json.RawMessage `json:"actionData,omitempty"`
}

// ActionData carries the per-action fields of a player_action.
type ActionData struct {
	TargetID   string `json:"targetId,omitempty"`
	AbilityID  string `json:"abilityId,omitempty"`
	LocationID string `json:"locationId,omitempty"`
	ClueID     string `json:"clueId,omitempty"`
	QuestionID string `json:"questionId,omitempty"`
	EnemyID    string `json:"enemyId,omitempty"`
	ScenarioID string `json:"scenarioId,omitempty"`
	Phase      string `json:"phase,omitempty"`
}

type ScenarioChoicePayload struct {
	PlayerID   string `json:"playerId"`
	ScenarioID string `json:"scenarioId"`
	ChoiceID   string `json:"choiceId"`
}

type RequestSyncPayload struct {
	RoomID   string `json:"roomId"`
	PlayerID string `json:"playerId"`
	SyncType string `json:"syncType"` // full | battle | scenario | exploration
}

type HeartbeatPayload struct {
	RoomID    string `json:"roomId"`
	PlayerID  string `json:"playerId"`
	Timestamp int64  `json:"timestamp"`
}

type ChatBroadcast struct {
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	Message    string `json:"message"`
	SentAt     int64  `json:"sentAt"`
}

type MemberInfo struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Role     string `json:"role,omitempty"`
	Ready    bool   `json:"ready"`
	Host     bool   `json:"host"`
	Online   bool   `json:"online"`
	JoinedAt int64  `json:"joinedAt"`
}

type RoomSummary struct {
	Code       string `json:"code"`
	Name       string `json:"name"`
	Players    int    `json:"players"`
	MaxPlayers int    `json:"maxPlayers"`
	Difficulty string `json:"difficulty"`
	Phase      string `json:"phase"`
	AllReady   bool   `json:"allReady"`
}
