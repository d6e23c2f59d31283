// Package model defines the data models shared across the GiocaSconto service.
package model

import (
	"errors"
	"strings"
	"time"
)

// MinPhoneDigits is the minimum number of digits a phone number must contain
// to be accepted at login.
const MinPhoneDigits = 8

// ErrInvalidPhone is returned when a phone number fails the digit-count check.
var ErrInvalidPhone = errors.New("phone number must contain at least 8 digits")

// PlayerRecord is the per-player ledger entry, keyed by normalized phone number.
// BestScore is monotonically non-decreasing; RewardClaimed is never cleared
// except by an explicit administrative reset.
type PlayerRecord struct {
	Phone           string     `json:"phone"`
	BestScore       int        `json:"bestScore"`
	RewardClaimed   bool       `json:"rewardClaimed"`
	RewardCode      string     `json:"rewardCode"`
	RewardClaimedAt *time.Time `json:"rewardClaimedAt"`
	LastPlayedAt    *time.Time `json:"lastPlayedAt"`
}

// MirrorRecord is the coarser three-field row kept in the CSV mirror store.
type MirrorRecord struct {
	Phone         string `json:"phone"`
	BestScore     int    `json:"bestScore"`
	RewardClaimed bool   `json:"rewardClaimed"`
}

// Merge folds an incoming mirror row into an existing one. BestScore only
// ever grows and RewardClaimed only ever flips to true.
func (m MirrorRecord) Merge(incoming MirrorRecord) MirrorRecord {
	out := m
	if incoming.BestScore > out.BestScore {
		out.BestScore = incoming.BestScore
	}
	out.RewardClaimed = out.RewardClaimed || incoming.RewardClaimed
	return out
}

// NormalizePhone strips every non-digit character from a phone number.
// Ledger keys are always normalized.
func NormalizePhone(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidatePhone normalizes a raw phone number and checks it carries enough
// digits. Returns the normalized form or ErrInvalidPhone.
func ValidatePhone(raw string) (string, error) {
	phone := NormalizePhone(raw)
	if len(phone) < MinPhoneDigits {
		return "", ErrInvalidPhone
	}
	return phone, nil
}
