package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"
	"github.com/skip2/go-qrcode"

	"giocasconto/internal/game"
	"giocasconto/internal/model"
	"giocasconto/internal/reward"
	"giocasconto/internal/service"
)

// qrSize is the pixel width of generated reward QR codes.
const qrSize = 320

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// SessionHandler exposes the game session lifecycle over HTTP.
type SessionHandler struct {
	engine  *game.Engine
	players *service.PlayerService
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(engine *game.Engine, players *service.PlayerService) *SessionHandler {
	return &SessionHandler{engine: engine, players: players}
}

type startRequest struct {
	Phone string `json:"phone"`
}

type cooldownBody struct {
	Error   string    `json:"error"`
	RetryAt time.Time `json:"retryAt"`
}

// Start logs a player in and deals a fresh board.
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req startRequest
	if !decodeBody(w, r, &req) {
		return
	}

	phone, alreadyClaimed, err := h.players.Login(r.Context(), req.Phone)
	if err != nil {
		var cd *reward.CooldownError
		switch {
		case errors.Is(err, model.ErrInvalidPhone):
			writeError(w, http.StatusBadRequest, "invalid phone number")
		case errors.Is(err, reward.ErrAlreadyRewarded):
			writeError(w, http.StatusForbidden, "reward already claimed")
		case errors.As(err, &cd):
			writeJSON(w, http.StatusForbidden, cooldownBody{
				Error:   "cooldown active",
				RetryAt: cd.Until,
			})
		default:
			log.Error().Err(err).Msg("Login failed")
			writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	snap, err := h.engine.Start(phone, alreadyClaimed)
	if err != nil {
		if errors.Is(err, game.ErrSessionActive) {
			writeError(w, http.StatusConflict, "session already active for this phone")
			return
		}
		log.Error().Err(err).Msg("Failed to start session")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusCreated, snap)
}

// Snapshot returns the current state of a session.
func (h *SessionHandler) Snapshot(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	snap, err := h.engine.Snapshot(ps.ByName("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type selectRequest struct {
	Position int `json:"position"`
}

// Select flips a card.
func (h *SessionHandler) Select(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req selectRequest
	if !decodeBody(w, r, &req) {
		return
	}

	snap, err := h.engine.Select(ps.ByName("id"), req.Position)
	if err != nil {
		switch {
		case errors.Is(err, game.ErrSessionNotFound):
			writeError(w, http.StatusNotFound, "session not found")
		case errors.Is(err, game.ErrInvalidPosition):
			writeError(w, http.StatusBadRequest, "invalid card position")
		case errors.Is(err, game.ErrNotPlaying):
			writeError(w, http.StatusConflict, "session is not accepting moves")
		default:
			log.Error().Err(err).Msg("Select failed")
			writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

// Ack tears a finished session down.
func (h *SessionHandler) Ack(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if err := h.engine.Ack(ps.ByName("id")); err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// Events streams session events over a WebSocket. The first frame is the
// current snapshot so late subscribers can render the full board state.
func (h *SessionHandler) Events(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")

	snap, err := h.engine.Snapshot(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	events, cancel, err := h.engine.Subscribe(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		cancel()
		log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	streamEvents(conn, cancel, snap, events)
}

// streamEvents pumps the initial snapshot and then every event to the client
// until the client disconnects or the event channel closes.
func streamEvents(conn *websocket.Conn, cancel func(), initial any, events <-chan game.Event) {
	defer conn.Close()
	defer cancel()

	// A client that never reads must not block the writer; the engine drops
	// events for slow subscribers, but the connection itself still needs a
	// reader to observe close frames.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	if initial != nil {
		if err := conn.WriteJSON(initial); err != nil {
			return
		}
	}

	for ev := range events {
		if err := conn.WriteJSON(ev); err != nil {
			return
		}
	}
}

// RewardQR renders the session's discount code as a PNG QR code. It only
// exists once the session has finished with a reward.
func (h *SessionHandler) RewardQR(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	snap, err := h.engine.Snapshot(ps.ByName("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if snap.RewardCode == "" {
		writeError(w, http.StatusNotFound, "no reward for this session")
		return
	}

	png, err := qrcode.Encode(snap.RewardCode, qrcode.Medium, qrSize)
	if err != nil {
		log.Error().Err(err).Msg("QR generation failed")
		writeError(w, http.StatusInternalServerError, "qr generation failed")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}
