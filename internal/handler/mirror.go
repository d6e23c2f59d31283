package handler

import (
	"errors"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"

	"giocasconto/internal/model"
	"giocasconto/internal/repository"
)

// MirrorHandler serves the CSV-backed score mirror. It is the compatibility
// surface for clients that only track best score and reward usage.
type MirrorHandler struct {
	mirror *repository.CSVMirror
}

// NewMirrorHandler creates a new MirrorHandler.
func NewMirrorHandler(mirror *repository.CSVMirror) *MirrorHandler {
	return &MirrorHandler{mirror: mirror}
}

// Get looks a player up by the phone query parameter.
func (h *MirrorHandler) Get(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	phone, err := model.ValidatePhone(r.URL.Query().Get("phone"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid phone number")
		return
	}

	rec, err := h.mirror.Get(r.Context(), phone)
	if err != nil {
		if errors.Is(err, repository.ErrPlayerNotFound) {
			writeError(w, http.StatusNotFound, "player not found")
			return
		}
		log.Error().Err(err).Msg("Mirror lookup failed")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// Upsert merges an incoming record into the mirror. Merging keeps the higher
// best score and never clears a claimed reward.
func (h *MirrorHandler) Upsert(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var rec model.MirrorRecord
	if !decodeBody(w, r, &rec) {
		return
	}

	phone, err := model.ValidatePhone(rec.Phone)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid phone number")
		return
	}
	rec.Phone = phone

	if err := h.mirror.Upsert(r.Context(), rec); err != nil {
		log.Error().Err(err).Msg("Mirror upsert failed")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
