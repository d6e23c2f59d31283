// Package repository provides the player ledger implementations and the CSV
// mirror store.
package repository

import (
	"context"
	"errors"

	"giocasconto/internal/model"
)

// Common errors for ledger operations.
var (
	ErrPlayerNotFound = errors.New("player not found")
)

// MergeFn computes the new state of a player record during an upsert. It
// receives nil when the phone has no record yet and returns the record to
// store. The ledger applies it under whatever isolation the backend offers.
type MergeFn func(existing *model.PlayerRecord) model.PlayerRecord

// Ledger is the keyed store of per-player records. Keys are normalized phone
// numbers (digits only).
type Ledger interface {
	// Get returns the record for a phone, or ErrPlayerNotFound.
	Get(ctx context.Context, phone string) (*model.PlayerRecord, error)
	// Upsert applies merge to the current record (nil if absent) and stores
	// the result.
	Upsert(ctx context.Context, phone string, merge MergeFn) (*model.PlayerRecord, error)
	// DeleteOne removes a single player. Removing an absent player is not an
	// error.
	DeleteOne(ctx context.Context, phone string) error
	// DeleteAll clears the whole ledger.
	DeleteAll(ctx context.Context) error
	// ListAll returns every record keyed by phone.
	ListAll(ctx context.Context) (map[string]*model.PlayerRecord, error)
}
