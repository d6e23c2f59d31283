package repository

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"giocasconto/internal/model"
)

// mirrorHeader is the fixed three-column header of the mirror file. Files
// whose first row differs are treated as empty.
var mirrorHeader = []string{"telefono", "punteggio_massimo", "codice_sconto_usato"}

// CSVMirror keeps the coarse per-player summary (phone, best score, reward
// used) in a comma-delimited file. The whole file is parsed and rewritten on
// every upsert.
type CSVMirror struct {
	path string
	mu   sync.Mutex
}

// NewCSVMirror creates the mirror store, writing a header-only file when none
// exists yet.
func NewCSVMirror(path string) (*CSVMirror, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create mirror directory: %w", err)
	}
	m := &CSVMirror{path: path}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := m.write(nil); err != nil {
			return nil, err
		}
		log.Info().Str("path", path).Msg("Created mirror file")
	}
	return m, nil
}

func headerMatches(row []string) bool {
	if len(row) != len(mirrorHeader) {
		return false
	}
	for i, col := range mirrorHeader {
		if row[i] != col {
			return false
		}
	}
	return true
}

// read parses every row. Missing, malformed or header-mismatched files yield
// an empty slice, mirroring how the original backend recovered.
func (m *CSVMirror) read() []model.MirrorRecord {
	f, err := os.Open(m.path)
	if err != nil {
		return nil
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil || len(rows) == 0 || !headerMatches(rows[0]) {
		return nil
	}

	var records []model.MirrorRecord
	for _, row := range rows[1:] {
		if len(row) < 3 {
			continue
		}
		score, _ := strconv.Atoi(row[1])
		records = append(records, model.MirrorRecord{
			Phone:         row[0],
			BestScore:     score,
			RewardClaimed: strings.EqualFold(strings.TrimSpace(row[2]), "true"),
		})
	}
	return records
}

func (m *CSVMirror) write(records []model.MirrorRecord) error {
	f, err := os.Create(m.path)
	if err != nil {
		return fmt.Errorf("failed to write mirror file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(mirrorHeader); err != nil {
		return fmt.Errorf("failed to write mirror header: %w", err)
	}
	for _, rec := range records {
		row := []string{rec.Phone, strconv.Itoa(rec.BestScore), strconv.FormatBool(rec.RewardClaimed)}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write mirror row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush mirror file: %w", err)
	}
	return nil
}

// Get returns the mirror row for a phone, or ErrPlayerNotFound.
func (m *CSVMirror) Get(ctx context.Context, phone string) (*model.MirrorRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, rec := range m.read() {
		if rec.Phone == phone {
			return &rec, nil
		}
	}
	return nil, ErrPlayerNotFound
}

// Upsert merges an incoming row into the file: on an existing phone the best
// score only grows and the reward flag only flips to true; new phones are
// appended as-is.
func (m *CSVMirror) Upsert(ctx context.Context, incoming model.MirrorRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	records := m.read()
	found := false
	for i, rec := range records {
		if rec.Phone == incoming.Phone {
			records[i] = rec.Merge(incoming)
			found = true
			break
		}
	}
	if !found {
		records = append(records, incoming)
	}
	return m.write(records)
}

// ListAll returns every mirror row in file order.
func (m *CSVMirror) ListAll(ctx context.Context) ([]model.MirrorRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read(), nil
}
