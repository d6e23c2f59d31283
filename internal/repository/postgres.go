package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"giocasconto/internal/model"
)

// PostgresLedger is the pgx-backed ledger for deployments where the JSON file
// store is not enough. Upserts run in a transaction with the row locked, so
// concurrent writers for the same phone serialize at the database.
type PostgresLedger struct {
	pool *pgxpool.Pool
}

// NewPostgresLedger creates a PostgresLedger on an existing pool.
func NewPostgresLedger(pool *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{pool: pool}
}

// MigratePlayers creates the players table if it does not exist. Called at
// startup and by the integration tests.
func MigratePlayers(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS players (
			phone VARCHAR(32) PRIMARY KEY,
			best_score INT NOT NULL DEFAULT 0,
			reward_claimed BOOLEAN NOT NULL DEFAULT FALSE,
			reward_code VARCHAR(16) NOT NULL DEFAULT '',
			reward_claimed_at TIMESTAMPTZ,
			last_played_at TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_players_last_played ON players(last_played_at DESC);
	`)
	if err != nil {
		return fmt.Errorf("failed to migrate players table: %w", err)
	}
	return nil
}

const selectPlayerColumns = `phone, best_score, reward_claimed, reward_code, reward_claimed_at, last_played_at`

func scanPlayer(row pgx.Row) (*model.PlayerRecord, error) {
	var rec model.PlayerRecord
	err := row.Scan(
		&rec.Phone,
		&rec.BestScore,
		&rec.RewardClaimed,
		&rec.RewardCode,
		&rec.RewardClaimedAt,
		&rec.LastPlayedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Get retrieves a player record by phone.
// Returns ErrPlayerNotFound if the player does not exist.
func (l *PostgresLedger) Get(ctx context.Context, phone string) (*model.PlayerRecord, error) {
	const query = `
		SELECT ` + selectPlayerColumns + `
		FROM players
		WHERE phone = $1
	`

	rec, err := scanPlayer(l.pool.QueryRow(ctx, query, phone))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPlayerNotFound
		}
		return nil, fmt.Errorf("failed to get player: %w", err)
	}
	return rec, nil
}

// Upsert locks the player's row, applies merge and writes the result back,
// all inside one transaction.
func (l *PostgresLedger) Upsert(ctx context.Context, phone string, merge MergeFn) (*model.PlayerRecord, error) {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin upsert: %w", err)
	}
	defer tx.Rollback(ctx)

	const selectForUpdate = `
		SELECT ` + selectPlayerColumns + `
		FROM players
		WHERE phone = $1
		FOR UPDATE
	`

	existing, err := scanPlayer(tx.QueryRow(ctx, selectForUpdate, phone))
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to read player for upsert: %w", err)
	}

	merged := merge(existing)
	merged.Phone = phone

	const upsert = `
		INSERT INTO players (phone, best_score, reward_claimed, reward_code, reward_claimed_at, last_played_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (phone) DO UPDATE SET
			best_score = EXCLUDED.best_score,
			reward_claimed = EXCLUDED.reward_claimed,
			reward_code = EXCLUDED.reward_code,
			reward_claimed_at = EXCLUDED.reward_claimed_at,
			last_played_at = EXCLUDED.last_played_at
	`

	_, err = tx.Exec(ctx, upsert,
		merged.Phone,
		merged.BestScore,
		merged.RewardClaimed,
		merged.RewardCode,
		merged.RewardClaimedAt,
		merged.LastPlayedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert player: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit upsert: %w", err)
	}
	return &merged, nil
}

// DeleteOne removes a single player. Deleting an absent player is a no-op.
func (l *PostgresLedger) DeleteOne(ctx context.Context, phone string) error {
	const query = `DELETE FROM players WHERE phone = $1`

	if _, err := l.pool.Exec(ctx, query, phone); err != nil {
		return fmt.Errorf("failed to delete player: %w", err)
	}
	return nil
}

// DeleteAll clears the players table.
func (l *PostgresLedger) DeleteAll(ctx context.Context) error {
	if _, err := l.pool.Exec(ctx, `DELETE FROM players`); err != nil {
		return fmt.Errorf("failed to delete players: %w", err)
	}
	return nil
}

// ListAll returns every player record keyed by phone.
func (l *PostgresLedger) ListAll(ctx context.Context) (map[string]*model.PlayerRecord, error) {
	const query = `
		SELECT ` + selectPlayerColumns + `
		FROM players
	`

	rows, err := l.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list players: %w", err)
	}
	defer rows.Close()

	records := map[string]*model.PlayerRecord{}
	for rows.Next() {
		rec, err := scanPlayer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan player: %w", err)
		}
		records[rec.Phone] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating players: %w", err)
	}
	return records, nil
}
