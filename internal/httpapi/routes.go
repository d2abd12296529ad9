package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/DoyleJ11/matchmaking-client/internal/ws"
)

func SetupRoutes(h Hub, log *zap.SugaredLogger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(h, log))

	// Operational controls
	r.Post("/ping/refresh", RefreshPing(h))
	r.Post("/criteria/save", SaveCriteria(h))
	r.Get("/dump/{kind}", Dump(h))
	r.Get("/dump", Dump(h))
	return r
}
