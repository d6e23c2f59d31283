// Package reward implements the discount-code reward rule and the
// eligibility gates checked before a session may start.
package reward

import (
	"errors"
	"fmt"
	"time"

	"giocasconto/internal/model"
)

const (
	// DefaultThreshold is the minimum final score required to earn a code.
	DefaultThreshold = 1000
	// DefaultCooldown is how long a phone number is locked out after a
	// completed session.
	DefaultCooldown = 30 * 24 * time.Hour

	codePrefix = "SCONTO"
)

// ErrAlreadyRewarded is returned when a phone number has already claimed its
// discount code. The block is permanent: claiming once excludes the number
// for good, independently of the cooldown.
var ErrAlreadyRewarded = errors.New("discount code already issued for this phone number")

// CooldownError reports that a phone number played too recently. Until is the
// exact instant the cooldown ends.
type CooldownError struct {
	Until time.Time
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("cooldown active until %s", e.Until.Format("02/01/2006"))
}

// Code deterministically derives a discount code from a phone number:
// "SCONTO" + last 4 digits (zero-padded on the left when shorter) + a
// checksum letter 'A'+digitSum%26 over every digit of the normalized number.
func Code(phone string) string {
	digits := model.NormalizePhone(phone)

	last4 := digits
	if len(last4) > 4 {
		last4 = last4[len(last4)-4:]
	}
	for len(last4) < 4 {
		last4 = "0" + last4
	}

	sum := 0
	for _, r := range digits {
		sum += int(r - '0')
	}
	checksum := byte('A' + sum%26)

	return codePrefix + last4 + string(checksum)
}

// Evaluate applies the reward rule to a finished session. It returns the
// earned code, or "" when the score is below the threshold or the player has
// already claimed. Pure: the same inputs always yield the same output.
func Evaluate(finalScore int, phone string, alreadyClaimed bool, threshold int) string {
	if alreadyClaimed || finalScore < threshold {
		return ""
	}
	return Code(phone)
}

// CheckEligibility enforces the login-time gates against an existing ledger
// record. A nil record (first-time player) is always eligible. The claimed
// gate is checked before the cooldown, matching the order players see the
// refusal messages in.
func CheckEligibility(rec *model.PlayerRecord, now time.Time, cooldown time.Duration) error {
	if rec == nil {
		return nil
	}
	if rec.RewardClaimed {
		return ErrAlreadyRewarded
	}
	if rec.LastPlayedAt != nil {
		until := rec.LastPlayedAt.Add(cooldown)
		if now.Before(until) {
			return &CooldownError{Until: until}
		}
	}
	return nil
}
