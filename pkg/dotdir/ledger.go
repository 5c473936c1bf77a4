package dotdir

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	ledgerFile = "ingested.json"
)

// IngestLedger records which window files have already been fed through the
// pipeline. Extraction mints fresh fact ids on every run, so re-ingesting a
// file duplicates its facts; the watcher consults the ledger to skip files
// it has already handled across restarts.
type IngestLedger struct {
	// Entries is keyed by absolute window file path.
	Entries map[string]IngestEntry `json:"entries"`
}

// IngestEntry describes one ingested window file.
type IngestEntry struct {
	Owner      string    `json:"owner"`
	IngestedAt time.Time `json:"ingested_at"`
	Facts      int       `json:"facts"`
}

// NewIngestLedger returns an empty ledger ready to record entries.
func NewIngestLedger() *IngestLedger {
	return &IngestLedger{Entries: make(map[string]IngestEntry)}
}

// Seen reports whether the given file path has already been recorded.
func (l *IngestLedger) Seen(path string) bool {
	_, ok := l.Entries[path]
	return ok
}

// Record adds or replaces the entry for the given file path.
func (l *IngestLedger) Record(path string, e IngestEntry) {
	if l.Entries == nil {
		l.Entries = make(map[string]IngestEntry)
	}
	l.Entries[path] = e
}

// LoadIngestLedger loads the ingest ledger from a target .engram/ingested.json.
// Returns an empty ledger if no ledger file exists or no .engram/ directory
// was resolved.
// If overrideDir is non-empty, it is used instead of the default ~/.engram/ location.
func (m *Manager) LoadIngestLedger(overrideDir string) (*IngestLedger, error) {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return nil, err
	}
	if dir == "" {
		return NewIngestLedger(), nil
	}

	path := filepath.Join(dir, ledgerFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewIngestLedger(), nil
		}
		return nil, fmt.Errorf("reading ingest ledger: %w", err)
	}

	ledger := NewIngestLedger()
	if err := json.Unmarshal(data, ledger); err != nil {
		return nil, fmt.Errorf("parsing ingest ledger: %w", err)
	}
	if ledger.Entries == nil {
		ledger.Entries = make(map[string]IngestEntry)
	}

	return ledger, nil
}

// SaveIngestLedger persists the ingest ledger to a target .engram/ingested.json.
func (m *Manager) SaveIngestLedger(ledger *IngestLedger, overrideDir string) error {
	if ledger == nil {
		return errors.New("cannot save nil ingest ledger")
	}

	dir, err := m.Target(overrideDir)
	if err != nil {
		return err
	}
	if dir == "" {
		return errors.New("no .engram directory resolved for ingest ledger")
	}

	data, err := json.MarshalIndent(ledger, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling ingest ledger: %w", err)
	}

	path := filepath.Join(dir, ledgerFile)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing ingest ledger: %w", err)
	}

	return nil
}

// ClearIngestLedger removes the ingest ledger file, so every window file in
// a watched directory becomes eligible for ingestion again.
// Returns nil if the file doesn't exist (already cleared).
func (m *Manager) ClearIngestLedger(overrideDir string) error {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return err
	}
	if dir == "" {
		return nil
	}

	path := filepath.Join(dir, ledgerFile)
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("removing ingest ledger: %w", err)
	}

	return nil
}
