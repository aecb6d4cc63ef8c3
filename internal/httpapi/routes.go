package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/veilbound/veilbound-backend/internal/auth"
	"github.com/veilbound/veilbound-backend/internal/registry"
	"github.com/veilbound/veilbound-backend/internal/ws"
)

func SetupRoutes(reg *registry.Registry, verifier *auth.Verifier, log *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(RequestLogger(log))

	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(reg, verifier, log))

	r.Route("/rooms", func(r chi.Router) {
		r.Post("/", CreateRoom(reg, verifier))
		r.Get("/", ListRooms(reg))
		r.Route("/{code}", func(r chi.Router) {
			r.Post("/join", JoinRoom(reg, verifier))
			r.Post("/leave", LeaveRoom(reg, verifier))
			r.Post("/ready", ReadyStatus(reg, verifier))
			r.Post("/kick", KickPlayer(reg, verifier))
			r.Post("/transfer-host", TransferHost(reg, verifier))
		})
	})
	return r
}
