// Package history keeps an append-only log of answered questions.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/querypilot/querypilot/internal/agent"
)

var ErrNotFound = errors.New("history entry not found")

const DefaultListLimit = 10

type Entry struct {
	Timestamp    time.Time `json:"timestamp_utc"`
	Question     string    `json:"question"`
	IsComplex    bool      `json:"is_complex"`
	ValidatedSQL string    `json:"validated_sql,omitempty"`
	GeneratedSQL string    `json:"generated_sql,omitempty"`
}

// Indexed is an entry with its 1-based position in the log.
type Indexed struct {
	Index int `json:"index"`
	Entry
}

// NewEntry records a processed question. SQL is kept only for simple
// outcomes; complex requests carry one statement per part.
func NewEntry(question string, outcome agent.Outcome, at time.Time) Entry {
	entry := Entry{
		Timestamp: at.UTC(),
		Question:  question,
		IsComplex: outcome.Kind == agent.KindComplex,
	}
	if outcome.Kind == agent.KindSimple && outcome.Simple != nil {
		entry.ValidatedSQL = outcome.Simple.ValidatedSQL
		entry.GeneratedSQL = outcome.Simple.GeneratedSQL
	}
	return entry
}

// FileStore persists the log as one JSON array. A missing or unreadable file
// is treated as an empty log.
type FileStore struct {
	mu   sync.Mutex
	path string
}

func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("history path is required")
	}
	return &FileStore{path: path}, nil
}

func (s *FileStore) Path() string {
	return s.path
}

// Append adds entry and returns its 1-based index.
func (s *FileStore) Append(entry Entry) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.load()
	entries = append(entries, entry)
	if err := s.save(entries); err != nil {
		return 0, err
	}
	return len(entries), nil
}

// List returns the last limit entries, oldest first, and the log's length.
func (s *FileStore) List(limit int) ([]Indexed, int) {
	s.mu.Lock()
	entries := s.load()
	s.mu.Unlock()

	if limit <= 0 {
		limit = DefaultListLimit
	}
	start := max(0, len(entries)-limit)
	out := make([]Indexed, 0, len(entries)-start)
	for i := start; i < len(entries); i++ {
		out = append(out, Indexed{Index: i + 1, Entry: entries[i]})
	}
	return out, len(entries)
}

func (s *FileStore) All() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *FileStore) Get(index int) (Entry, error) {
	s.mu.Lock()
	entries := s.load()
	s.mu.Unlock()

	if index < 1 || index > len(entries) {
		return Entry{}, fmt.Errorf("%w: index %d", ErrNotFound, index)
	}
	return entries[index-1], nil
}

func (s *FileStore) load() []Entry {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil
	}
	var entries []Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil
	}
	return entries
}

func (s *FileStore) save(entries []Entry) error {
	raw, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create history dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".history-*.json")
	if err != nil {
		return fmt.Errorf("create history temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close history temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace history file: %w", err)
	}
	return nil
}
