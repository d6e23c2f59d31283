package handler

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"

	"giocasconto/internal/game"
	"giocasconto/internal/game/demo"
)

// DemoHandler exposes the attract-mode board.
type DemoHandler struct {
	driver *demo.Driver
}

// NewDemoHandler creates a new DemoHandler.
func NewDemoHandler(driver *demo.Driver) *DemoHandler {
	return &DemoHandler{driver: driver}
}

type demoSnapshot struct {
	Running bool            `json:"running"`
	Cards   []game.CardView `json:"cards"`
}

// Snapshot returns the current demo board.
func (h *DemoHandler) Snapshot(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, demoSnapshot{
		Running: h.driver.Running(),
		Cards:   h.driver.Snapshot(),
	})
}

// Events streams demo board events over a WebSocket. The demo stream never
// ends on its own; it follows every suspend and resume of the driver.
func (h *DemoHandler) Events(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	events, cancel := h.driver.Subscribe()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		cancel()
		log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	initial := demoSnapshot{
		Running: h.driver.Running(),
		Cards:   h.driver.Snapshot(),
	}
	streamEvents(conn, cancel, initial, events)
}
