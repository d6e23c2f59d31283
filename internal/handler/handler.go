// Package handler provides the HTTP API for the game server.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"

	"giocasconto/internal/game"
	"giocasconto/internal/game/demo"
	"giocasconto/internal/repository"
	"giocasconto/internal/service"
)

// errorBody is the JSON shape of every non-2xx response.
type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: message})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// NewRouter assembles the API routes.
func NewRouter(
	engine *game.Engine,
	players *service.PlayerService,
	auth *service.AdminAuth,
	demoDriver *demo.Driver,
	mirror *repository.CSVMirror,
) *httprouter.Router {
	sessions := NewSessionHandler(engine, players)
	admins := NewAdminHandler(auth, players)
	mirrors := NewMirrorHandler(mirror)
	demos := NewDemoHandler(demoDriver)

	mux := httprouter.New()

	mux.PanicHandler = func(w http.ResponseWriter, r *http.Request, v any) {
		log.Error().Interface("panic", v).Str("path", r.URL.Path).Msg("Handler panicked")
		writeError(w, http.StatusInternalServerError, "internal server error")
	}

	mux.GET("/api/player", mirrors.Get)
	mux.POST("/api/player", mirrors.Upsert)

	mux.POST("/api/session", sessions.Start)
	mux.GET("/api/session/:id", sessions.Snapshot)
	mux.POST("/api/session/:id/select", sessions.Select)
	mux.POST("/api/session/:id/ack", sessions.Ack)
	mux.GET("/api/session/:id/events", sessions.Events)
	mux.GET("/api/session/:id/reward/qr", sessions.RewardQR)

	mux.GET("/api/demo", demos.Snapshot)
	mux.GET("/api/demo/events", demos.Events)

	mux.POST("/api/admin/login", admins.Login)
	mux.POST("/api/admin/logout", admins.requireToken(admins.Logout))
	mux.GET("/api/admin/players", admins.requireToken(admins.ListPlayers))
	mux.POST("/api/admin/players/:phone/reset", admins.requireToken(admins.ResetPlayer))
	mux.DELETE("/api/admin/players/:phone", admins.requireToken(admins.DeletePlayer))
	mux.DELETE("/api/admin/players", admins.requireToken(admins.DeleteAllPlayers))
	mux.GET("/api/admin/export", admins.requireToken(admins.Export))

	return mux
}
