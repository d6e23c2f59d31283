// Package service provides the business logic over the ledger: login gating,
// end-of-session persistence, mirror pushes and the admin operations.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"giocasconto/internal/model"
	"giocasconto/internal/pkg/lock"
	"giocasconto/internal/repository"
	"giocasconto/internal/reward"
)

const persistTimeout = 5 * time.Second

// PlayerService owns every read-modify-write cycle against the ledger. A
// per-phone lock serializes writers for the same player within the process;
// ledger failures degrade to a logged no-op and never abort a session.
type PlayerService struct {
	ledger   repository.Ledger
	mirror   *repository.CSVMirror
	locks    *lock.PhoneLock
	cooldown time.Duration
	now      func() time.Time
}

// NewPlayerService creates a PlayerService. mirror may be nil when the mirror
// store is disabled.
func NewPlayerService(ledger repository.Ledger, mirror *repository.CSVMirror, cooldown time.Duration) *PlayerService {
	return &PlayerService{
		ledger:   ledger,
		mirror:   mirror,
		locks:    lock.NewPhoneLock(),
		cooldown: cooldown,
		now:      time.Now,
	}
}

// Login validates a raw phone number and checks the eligibility gates.
// Returns the normalized phone and whether the reward was already claimed
// (always false for a phone allowed through). An unreadable ledger degrades
// to "no record", so play is never blocked by persistence trouble.
func (s *PlayerService) Login(ctx context.Context, rawPhone string) (string, bool, error) {
	phone, err := model.ValidatePhone(rawPhone)
	if err != nil {
		return "", false, err
	}

	rec, err := s.ledger.Get(ctx, phone)
	if err != nil && !errors.Is(err, repository.ErrPlayerNotFound) {
		log.Warn().Str("phone", phone).Err(err).Msg("Ledger unavailable at login, allowing play")
		rec = nil
	}

	if err := reward.CheckEligibility(rec, s.now(), s.cooldown); err != nil {
		return "", false, err
	}

	claimed := rec != nil && rec.RewardClaimed
	return phone, claimed, nil
}

// RecordResult persists a finished session, implementing game.ResultRecorder.
// The merge follows the end-of-session rules: best score only grows, the
// claimed flag only flips to true, reward code and claim time are set when a
// code was newly earned, and the last-played time is always refreshed.
func (s *PlayerService) RecordResult(phone string, sessionBest int, rewardCode string) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	now := s.now()
	var merged *model.PlayerRecord

	err := s.locks.WithLock(phone, func() error {
		var err error
		merged, err = s.ledger.Upsert(ctx, phone, func(existing *model.PlayerRecord) model.PlayerRecord {
			out := model.PlayerRecord{Phone: phone}
			if existing != nil {
				out = *existing
			}
			if sessionBest > out.BestScore {
				out.BestScore = sessionBest
			}
			if rewardCode != "" && !out.RewardClaimed {
				out.RewardClaimed = true
				out.RewardCode = rewardCode
				claimedAt := now
				out.RewardClaimedAt = &claimedAt
			}
			playedAt := now
			out.LastPlayedAt = &playedAt
			return out
		})
		return err
	})
	if err != nil {
		log.Warn().Str("phone", phone).Err(err).Msg("Failed to persist session result")
		return
	}

	s.pushMirror(ctx, merged)
}

// pushMirror forwards the coarse summary to the CSV mirror. Best effort.
func (s *PlayerService) pushMirror(ctx context.Context, rec *model.PlayerRecord) {
	if s.mirror == nil || rec == nil {
		return
	}
	err := s.mirror.Upsert(ctx, model.MirrorRecord{
		Phone:         rec.Phone,
		BestScore:     rec.BestScore,
		RewardClaimed: rec.RewardClaimed,
	})
	if err != nil {
		log.Warn().Str("phone", rec.Phone).Err(err).Msg("Failed to push mirror row")
	}
}

// GetPlayer returns a single ledger record.
func (s *PlayerService) GetPlayer(ctx context.Context, phone string) (*model.PlayerRecord, error) {
	return s.ledger.Get(ctx, model.NormalizePhone(phone))
}

// ListPlayers returns the whole ledger.
func (s *PlayerService) ListPlayers(ctx context.Context) (map[string]*model.PlayerRecord, error) {
	return s.ledger.ListAll(ctx)
}

// ResetPlayer clears the reward state and play dates of one player but keeps
// the best score, re-admitting the phone number to play and win again.
func (s *PlayerService) ResetPlayer(ctx context.Context, phone string) error {
	phone = model.NormalizePhone(phone)
	return s.locks.WithLock(phone, func() error {
		if _, err := s.ledger.Get(ctx, phone); err != nil {
			return err
		}
		_, err := s.ledger.Upsert(ctx, phone, func(existing *model.PlayerRecord) model.PlayerRecord {
			out := model.PlayerRecord{Phone: phone}
			if existing != nil {
				out = *existing
			}
			out.RewardClaimed = false
			out.RewardCode = ""
			out.RewardClaimedAt = nil
			out.LastPlayedAt = nil
			return out
		})
		return err
	})
}

// DeletePlayer removes one player entirely.
func (s *PlayerService) DeletePlayer(ctx context.Context, phone string) error {
	phone = model.NormalizePhone(phone)
	return s.locks.WithLock(phone, func() error {
		return s.ledger.DeleteOne(ctx, phone)
	})
}

// DeleteAllPlayers clears the ledger.
func (s *PlayerService) DeleteAllPlayers(ctx context.Context) error {
	return s.ledger.DeleteAll(ctx)
}

// exportHeader is the fixed admin export header.
const exportHeader = "Telefono;Punteggio massimo;Codice sconto usato;Data sconto;Codice sconto;Data ultima partita"

// noDate is the placeholder for absent timestamps in the export.
const noDate = "–"

func formatExportDate(ts *time.Time) string {
	if ts == nil {
		return noDate
	}
	return ts.Format("02/01/2006 15:04")
}

// ExportCSV renders the admin export: semicolon-delimited, CRLF rows, UTF-8
// BOM so spreadsheet imports pick the right encoding, localized booleans and
// dd/mm/yyyy hh:mm dates. Semicolons inside codes are replaced to keep the
// column count stable.
func (s *PlayerService) ExportCSV(ctx context.Context) (string, error) {
	records, err := s.ledger.ListAll(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read ledger for export: %w", err)
	}

	phones := make([]string, 0, len(records))
	for phone := range records {
		phones = append(phones, phone)
	}
	sort.Strings(phones)

	rows := []string{exportHeader}
	for _, phone := range phones {
		rec := records[phone]
		claimed := "No"
		if rec.RewardClaimed {
			claimed = "Sì"
		}
		code := strings.ReplaceAll(rec.RewardCode, ";", ",")
		if code == "" {
			code = noDate
		}
		rows = append(rows, strings.Join([]string{
			phone,
			fmt.Sprintf("%d", rec.BestScore),
			claimed,
			formatExportDate(rec.RewardClaimedAt),
			code,
			formatExportDate(rec.LastPlayedAt),
		}, ";"))
	}

	return "\uFEFF" + strings.Join(rows, "\r\n") + "\r\n", nil
}
