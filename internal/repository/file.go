package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"

	"giocasconto/internal/model"
)

// FileLedger stores the whole ledger as a single JSON mapping on disk. Every
// mutation re-reads the file, applies the change and rewrites it in full, so
// external edits between calls are picked up. A process-wide mutex serializes
// mutations; there is no cross-process locking.
type FileLedger struct {
	path string
	mu   sync.Mutex
}

// NewFileLedger creates a file-backed ledger at path, creating parent
// directories as needed. The file itself is created lazily on first write.
func NewFileLedger(path string) (*FileLedger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}
	return &FileLedger{path: path}, nil
}

// load reads the full mapping from disk. A missing file is an empty ledger;
// a corrupt file is treated as empty too, matching how the original store
// recovered from unparseable payloads, but gets logged so data loss is
// visible.
func (l *FileLedger) load() (map[string]*model.PlayerRecord, error) {
	raw, err := os.ReadFile(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]*model.PlayerRecord{}, nil
		}
		return nil, fmt.Errorf("failed to read ledger file: %w", err)
	}

	records := map[string]*model.PlayerRecord{}
	if len(raw) == 0 {
		return records, nil
	}
	if err := json.Unmarshal(raw, &records); err != nil {
		log.Warn().Str("path", l.path).Err(err).Msg("Ledger file is corrupt, treating as empty")
		return map[string]*model.PlayerRecord{}, nil
	}
	return records, nil
}

// store rewrites the whole mapping. The write goes through a temp file and
// rename so a crash mid-write never leaves a truncated ledger.
func (l *FileLedger) store(records map[string]*model.PlayerRecord) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode ledger: %w", err)
	}

	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write ledger file: %w", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return fmt.Errorf("failed to replace ledger file: %w", err)
	}
	return nil
}

// Get returns the record for a phone, or ErrPlayerNotFound.
func (l *FileLedger) Get(ctx context.Context, phone string) (*model.PlayerRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.load()
	if err != nil {
		return nil, err
	}
	rec, ok := records[phone]
	if !ok {
		return nil, ErrPlayerNotFound
	}
	return rec, nil
}

// Upsert applies merge under the ledger mutex and rewrites the file.
func (l *FileLedger) Upsert(ctx context.Context, phone string, merge MergeFn) (*model.PlayerRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.load()
	if err != nil {
		return nil, err
	}

	merged := merge(records[phone])
	merged.Phone = phone
	records[phone] = &merged

	if err := l.store(records); err != nil {
		return nil, err
	}
	return &merged, nil
}

// DeleteOne removes a single player record.
func (l *FileLedger) DeleteOne(ctx context.Context, phone string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.load()
	if err != nil {
		return err
	}
	if _, ok := records[phone]; !ok {
		return nil
	}
	delete(records, phone)
	return l.store(records)
}

// DeleteAll clears the ledger.
func (l *FileLedger) DeleteAll(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store(map[string]*model.PlayerRecord{})
}

// ListAll returns every record keyed by phone.
func (l *FileLedger) ListAll(ctx context.Context) (map[string]*model.PlayerRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load()
}
