package protocol

import (
	"errors"

	"github.com/veilbound/veilbound-backend/internal/game"
)

// Registry-level sentinels. Game-level ones live in the game package; both
// map onto the wire taxonomy here.
var ErrRoomNotFound = errors.New("room not found")
var ErrRoomFull = errors.New("room is full")
var ErrAlreadyInRoom = errors.New("player already in a room")
var ErrInvalidSize = errors.New("max players must be between 2 and 6")
var ErrNotHost = errors.New("requester is not the host")
var ErrSessionNotFound = errors.New("session not found")
var ErrAuthRequired = errors.New("authentication required")
var ErrAuthInvalid = errors.New("authentication invalid")

// Wire error codes.
const (
	CodeRoomNotFound      = "RoomNotFound"
	CodeRoomFull          = "RoomFull"
	CodeAlreadyInRoom     = "AlreadyInRoom"
	CodeInvalidSize       = "InvalidSize"
	CodeNotHost           = "NotHost"
	CodeNotYourTurn       = "NotYourTurn"
	CodeInvalidAction     = "InvalidAction"
	CodeNotEnoughResource = "NotEnoughResource"
	CodeOnCooldown        = "OnCooldown"
	CodeSessionNotFound   = "SessionNotFound"
	CodeAuthRequired      = "AuthRequired"
	CodeAuthInvalid       = "AuthInvalid"
	CodeInternal          = "Internal"
)

// ToError maps an error to its wire body. Anything unmapped is a generic
// internal failure so the caller still gets exactly one structured reply.
func ToError(err error) *ErrorBody {
	if err == nil {
		return nil
	}
	code := CodeInternal
	switch {
	case errors.Is(err, ErrRoomNotFound):
		code = CodeRoomNotFound
	case errors.Is(err, ErrRoomFull):
		code = CodeRoomFull
	case errors.Is(err, ErrAlreadyInRoom):
		code = CodeAlreadyInRoom
	case errors.Is(err, ErrInvalidSize):
		code = CodeInvalidSize
	case errors.Is(err, ErrNotHost), errors.Is(err, game.ErrNotHost):
		code = CodeNotHost
	case errors.Is(err, game.ErrNotYourTurn):
		code = CodeNotYourTurn
	case errors.Is(err, game.ErrNotEnoughResource):
		code = CodeNotEnoughResource
	case errors.Is(err, game.ErrOnCooldown):
		code = CodeOnCooldown
	case errors.Is(err, game.ErrInvalidAction), errors.Is(err, game.ErrWrongPhase),
		errors.Is(err, game.ErrGameEnded), errors.Is(err, game.ErrNotReady):
		code = CodeInvalidAction
	case errors.Is(err, ErrSessionNotFound):
		code = CodeSessionNotFound
	case errors.Is(err, ErrAuthRequired):
		code = CodeAuthRequired
	case errors.Is(err, ErrAuthInvalid):
		code = CodeAuthInvalid
	}
	msg := err.Error()
	if code == CodeInternal {
		msg = "internal error"
	}
	return &ErrorBody{Code: code, Message: msg}
}
