package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/veilbound/veilbound-backend/internal/auth"
	"github.com/veilbound/veilbound-backend/internal/protocol"
	"github.com/veilbound/veilbound-backend/internal/registry"
	"github.com/veilbound/veilbound-backend/internal/room"
)

type createRoomRequest struct {
	HostID     string `json:"hostId"`
	HostName   string `json:"hostName"`
	Name       string `json:"name"`
	MaxPlayers int    `json:"maxPlayers"`
	Public     bool   `json:"public"`
	Difficulty string `json:"difficulty"`
}

func CreateRoom(reg *registry.Registry, verifier *auth.Verifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createRoomRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, &protocol.ErrorBody{Code: protocol.CodeInvalidAction, Message: "bad json"})
			return
		}
		if err := verifier.Verify(r, req.HostID); err != nil {
			writeErr(w, err)
			return
		}
		if req.Name == "" {
			req.Name = req.HostName + "'s room"
		}
		if req.Difficulty == "" {
			req.Difficulty = "normal"
		}
		_, code, err := reg.CreateRoom(req.HostID, req.HostName, req.Name, req.MaxPlayers, req.Public, req.Difficulty)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"code": code})
	}
}

func ListRooms(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"rooms": reg.ListPublic()})
	}
}

type joinRequest struct {
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
}

func JoinRoom(reg *registry.Registry, verifier *auth.Verifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")
		var req joinRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, &protocol.ErrorBody{Code: protocol.CodeInvalidAction, Message: "bad json"})
			return
		}
		if err := verifier.Verify(r, req.PlayerID); err != nil {
			writeErr(w, err)
			return
		}
		rm, err := reg.Join(code, req.PlayerID, req.PlayerName)
		if err != nil {
			writeErr(w, err)
			return
		}
		info, ok := roomInfo(rm)
		if !ok {
			writeErr(w, protocol.ErrRoomNotFound)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"code":        info.Code,
			"name":        info.Name,
			"hostId":      info.HostID,
			"playerCount": len(info.Members),
			"maxPlayers":  info.Settings.MaxPlayers,
		})
	}
}

type leaveRequest struct {
	PlayerID string `json:"playerId"`
	Reason   string `json:"reason"`
}

func LeaveRoom(reg *registry.Registry, verifier *auth.Verifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req leaveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, &protocol.ErrorBody{Code: protocol.CodeInvalidAction, Message: "bad json"})
			return
		}
		if err := verifier.Verify(r, req.PlayerID); err != nil {
			writeErr(w, err)
			return
		}
		reason := req.Reason
		if reason == "" {
			reason = "left"
		}
		reg.Leave(req.PlayerID, reason)
		writeJSON(w, http.StatusOK, map[string]any{"left": true})
	}
}

type readyRequest struct {
	PlayerID string `json:"playerId"`
	IsReady  bool   `json:"isReady"`
}

func ReadyStatus(reg *registry.Registry, verifier *auth.Verifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")
		var req readyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, &protocol.ErrorBody{Code: protocol.CodeInvalidAction, Message: "bad json"})
			return
		}
		if err := verifier.Verify(r, req.PlayerID); err != nil {
			writeErr(w, err)
			return
		}
		rm := reg.Get(code)
		if rm == nil {
			writeErr(w, protocol.ErrRoomNotFound)
			return
		}
		reply := make(chan error, 1)
		readyErr, ok := room.Ask(rm, room.Ready{PlayerID: req.PlayerID, Ready: req.IsReady, Reply: reply}, reply)
		if !ok {
			writeErr(w, protocol.ErrRoomNotFound)
			return
		}
		if readyErr != nil {
			writeErr(w, readyErr)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"isReady": req.IsReady})
	}
}

type kickRequest struct {
	HostID   string `json:"hostId"`
	TargetID string `json:"targetId"`
}

func KickPlayer(reg *registry.Registry, verifier *auth.Verifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")
		var req kickRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, &protocol.ErrorBody{Code: protocol.CodeInvalidAction, Message: "bad json"})
			return
		}
		if err := verifier.Verify(r, req.HostID); err != nil {
			writeErr(w, err)
			return
		}
		// Silent refusal: the response never explains a false.
		kicked := reg.Kick(code, req.HostID, req.TargetID)
		writeJSON(w, http.StatusOK, map[string]any{"kicked": kicked})
	}
}

type transferRequest struct {
	HostID   string `json:"hostId"`
	TargetID string `json:"targetId"`
}

func TransferHost(reg *registry.Registry, verifier *auth.Verifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")
		var req transferRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, &protocol.ErrorBody{Code: protocol.CodeInvalidAction, Message: "bad json"})
			return
		}
		if err := verifier.Verify(r, req.HostID); err != nil {
			writeErr(w, err)
			return
		}
		if err := reg.TransferHost(code, req.HostID, req.TargetID); err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"hostId": req.TargetID})
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// roomInfo fails instead of waiting forever when the room disbanded between
// the registry lookup and the round-trip.
func roomInfo(rm *room.Room) (room.Info, bool) {
	reply := make(chan room.Info, 1)
	return room.Ask(rm, room.GetInfo{Reply: reply}, reply)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, err error) {
	body := protocol.ToError(err)
	writeError(w, statusFor(body.Code), body)
}

func writeError(w http.ResponseWriter, status int, body *protocol.ErrorBody) {
	writeJSON(w, status, map[string]any{"error": body})
}

func statusFor(code string) int {
	switch code {
	case protocol.CodeRoomNotFound, protocol.CodeSessionNotFound:
		return http.StatusNotFound
	case protocol.CodeRoomFull, protocol.CodeAlreadyInRoom:
		return http.StatusConflict
	case protocol.CodeAuthRequired:
		return http.StatusUnauthorized
	case protocol.CodeAuthInvalid, protocol.CodeNotHost:
		return http.StatusForbidden
	case protocol.CodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}
