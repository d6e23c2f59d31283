package handler

import (
	"errors"
	"net/http"
	"sort"
	"strings"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"

	"giocasconto/internal/model"
	"giocasconto/internal/repository"
	"giocasconto/internal/service"
)

// AdminHandler serves the back-office routes. Every route except Login goes
// through requireToken.
type AdminHandler struct {
	auth    *service.AdminAuth
	players *service.PlayerService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(auth *service.AdminAuth, players *service.PlayerService) *AdminHandler {
	return &AdminHandler{auth: auth, players: players}
}

type adminLoginRequest struct {
	Passphrase string `json:"passphrase"`
}

type adminLoginResponse struct {
	Token string `json:"token"`
}

// Login exchanges the admin passphrase for a bearer token.
func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req adminLoginRequest
	if !decodeBody(w, r, &req) {
		return
	}

	token, err := h.auth.Login(req.Passphrase)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTooManyAttempts):
			writeError(w, http.StatusTooManyRequests, "too many login attempts")
		case errors.Is(err, service.ErrBadPassphrase):
			writeError(w, http.StatusUnauthorized, "wrong passphrase")
		default:
			log.Error().Err(err).Msg("Admin login failed")
			writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	writeJSON(w, http.StatusOK, adminLoginResponse{Token: token})
}

// bearerToken extracts the token from the Authorization header.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return ""
	}
	return strings.TrimSpace(auth[len(prefix):])
}

// requireToken rejects requests without a valid admin token.
func (h *AdminHandler) requireToken(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		token := bearerToken(r)
		if token == "" || !h.auth.Validate(token) {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		next(w, r, ps)
	}
}

// Logout invalidates the caller's token.
func (h *AdminHandler) Logout(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	h.auth.Logout(bearerToken(r))
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// ListPlayers returns every ledger record, sorted by phone for a stable
// admin table.
func (h *AdminHandler) ListPlayers(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	records, err := h.players.ListPlayers(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list players")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	list := make([]*model.PlayerRecord, 0, len(records))
	for _, rec := range records {
		list = append(list, rec)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Phone < list[j].Phone })

	writeJSON(w, http.StatusOK, list)
}

// ResetPlayer clears a player's reward state while keeping the best score.
func (h *AdminHandler) ResetPlayer(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	err := h.players.ResetPlayer(r.Context(), ps.ByName("phone"))
	if err != nil {
		if errors.Is(err, repository.ErrPlayerNotFound) {
			writeError(w, http.StatusNotFound, "player not found")
			return
		}
		log.Error().Err(err).Msg("Failed to reset player")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// DeletePlayer removes a single ledger record. Deleting an absent player is
// a no-op.
func (h *AdminHandler) DeletePlayer(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if err := h.players.DeletePlayer(r.Context(), ps.ByName("phone")); err != nil {
		log.Error().Err(err).Msg("Failed to delete player")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// DeleteAllPlayers wipes the ledger.
func (h *AdminHandler) DeleteAllPlayers(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if err := h.players.DeleteAllPlayers(r.Context()); err != nil {
		log.Error().Err(err).Msg("Failed to delete players")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// Export streams the ledger as a spreadsheet-friendly CSV download.
func (h *AdminHandler) Export(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	csv, err := h.players.ExportCSV(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("CSV export failed")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="giocatori.csv"`)
	_, _ = w.Write([]byte(csv))
}
