// Package transcript persists per-session agent event logs. Every event is
// written to an append-only newline-delimited JSON file on disk and mirrored
// in a byte-bounded in-memory buffer; exceeding the cap evicts the oldest
// in-memory entries while the disk log stays complete.
package transcript

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// DefaultMaxBytes is the default in-memory cap per session.
const DefaultMaxBytes = 10 << 20 // 10 MiB

// evictTarget is the fraction of the cap eviction drains down to. Draining
// well below the cap avoids re-evicting on every subsequent append.
const evictTarget = 0.7

// Info summarizes a session transcript.
type Info struct {
	AgentID     string `json:"agentId"`
	TotalEvents int    `json:"totalEvents"`
	Evicted     bool   `json:"evicted"`
}

// Page is one slice of a transcript.
type Page struct {
	Events      [][]byte `json:"events"`
	TotalEvents int      `json:"totalEvents"`
	Offset      int      `json:"offset"`
}

// Store is the bounded transcript for one session. Safe for concurrent use.
type Store struct {
	logger   *slog.Logger
	file     *os.File
	agentID  string
	path     string
	events   [][]byte
	bytes    int
	maxBytes int
	mu       sync.Mutex
	evicted  bool
	closed   bool
}

// Append records one event: disk first (the log stays complete regardless
// of eviction), then memory, then the cap check.
func (s *Store) Append(raw []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("transcript %s: store closed", s.agentID)
	}

	line := make([]byte, 0, len(raw)+1)
	line = append(line, raw...)
	line = append(line, '\n')
	if _, err := s.file.Write(line); err != nil {
		return fmt.Errorf("transcript %s: write log: %w", s.agentID, err)
	}

	event := make([]byte, len(raw))
	copy(event, raw)
	s.events = append(s.events, event)
	s.bytes += len(event)

	s.evictLocked()
	return nil
}

// evictLocked drops oldest entries once the cap is exceeded, draining to
// the target. The most recently appended event is never evicted.
func (s *Store) evictLocked() {
	if s.bytes <= s.maxBytes {
		return
	}

	target := int(float64(s.maxBytes) * evictTarget)
	dropped := 0
	for s.bytes > target && len(s.events) > 1 {
		s.bytes -= len(s.events[0])
		s.events[0] = nil
		s.events = s.events[1:]
		dropped++
	}

	// A single event larger than the cap is retained as-is; the buffer is
	// still the complete transcript, so nothing was evicted.
	if dropped == 0 {
		return
	}

	if !s.evicted {
		s.evicted = true
		s.logger.Warn("transcript exceeded memory cap, evicting oldest events",
			"agentId", s.agentID, "evictedCount", dropped, "capBytes", s.maxBytes)
	}
}

// Events returns the full transcript. When nothing was evicted this is the
// in-memory buffer; once evicted it re-reads the complete disk log, falling
// back to the partial buffer only if the disk read fails.
func (s *Store) Events() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.evicted {
		if events, err := readLog(s.path); err == nil {
			return events
		}
		s.logger.Warn("transcript disk re-read failed, returning partial buffer", "agentId", s.agentID)
	}
	return copyEvents(s.events)
}

// Info reports counts for this session. An evicted session counts from the
// disk log, which is complete.
func (s *Store) Info() (Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := Info{AgentID: s.agentID, Evicted: s.evicted}
	if !s.evicted {
		info.TotalEvents = len(s.events)
		return info, nil
	}

	events, err := readLog(s.path)
	if err != nil {
		return Info{}, fmt.Errorf("transcript %s: %w", s.agentID, err)
	}
	info.TotalEvents = len(events)
	return info, nil
}

// Page returns min(limit, total-offset) events in original order. An offset
// at or past the end yields an empty page with the correct total, never an
// error.
func (s *Store) Page(offset, limit int) (Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	source := s.events
	if s.evicted {
		events, err := readLog(s.path)
		if err != nil {
			return Page{}, fmt.Errorf("transcript %s: %w", s.agentID, err)
		}
		source = events
	}
	return slicePage(source, offset, limit), nil
}

// Evicted reports whether any in-memory entries were dropped.
func (s *Store) Evicted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evicted
}

// Close flushes and closes the disk log. Further appends fail.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.file.Sync(); err != nil {
		_ = s.file.Close()
		return fmt.Errorf("transcript %s: sync log: %w", s.agentID, err)
	}
	return s.file.Close()
}

// Manager owns the per-session stores and the transcript directory. It also
// answers reads for completed sessions whose store has been closed, straight
// from the disk logs.
type Manager struct {
	logger   *slog.Logger
	stores   map[string]*Store
	dir      string
	maxBytes int
	mu       sync.Mutex
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithMaxBytes overrides the per-session memory cap.
func WithMaxBytes(n int) ManagerOption {
	return func(m *Manager) { m.maxBytes = n }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = logger }
}

// NewManager creates a Manager rooted at dir.
func NewManager(dir string, opts ...ManagerOption) *Manager {
	m := &Manager{
		dir:      dir,
		maxBytes: DefaultMaxBytes,
		stores:   make(map[string]*Store),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	m.logger = m.logger.With("component", "transcript")
	return m
}

// Open creates the store and disk log for a new session, truncating any
// previous log for the same agent id.
func (m *Manager) Open(agentID string) (*Store, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return nil, fmt.Errorf("transcript dir: %w", err)
	}

	path := m.logPath(agentID)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("transcript %s: open log: %w", agentID, err)
	}

	store := &Store{
		agentID:  agentID,
		path:     path,
		file:     file,
		maxBytes: m.maxBytes,
		logger:   m.logger,
	}
	m.stores[agentID] = store
	return store, nil
}

// Get returns the open store for an active session.
func (m *Manager) Get(agentID string) (*Store, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stores[agentID]
	return s, ok
}

// Close closes and forgets the store for a session. The disk log remains
// readable through Info and Page.
func (m *Manager) Close(agentID string) error {
	m.mu.Lock()
	store, ok := m.stores[agentID]
	delete(m.stores, agentID)
	m.mu.Unlock()

	if !ok {
		return nil
	}
	return store.Close()
}

// Info reports counts for an active or completed session.
func (m *Manager) Info(agentID string) (Info, error) {
	if store, ok := m.Get(agentID); ok {
		return store.Info()
	}

	events, err := readLog(m.logPath(agentID))
	if err != nil {
		return Info{}, fmt.Errorf("transcript %s: %w", agentID, err)
	}
	return Info{AgentID: agentID, TotalEvents: len(events)}, nil
}

// Page returns one slice of an active or completed session's transcript.
func (m *Manager) Page(agentID string, offset, limit int) (Page, error) {
	if store, ok := m.Get(agentID); ok {
		return store.Page(offset, limit)
	}

	events, err := readLog(m.logPath(agentID))
	if err != nil {
		return Page{}, fmt.Errorf("transcript %s: %w", agentID, err)
	}
	return slicePage(events, offset, limit), nil
}

// logPath maps an agent id to its disk log, sanitizing path separators so an
// id can never escape the transcript directory.
func (m *Manager) logPath(agentID string) string {
	safe := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(agentID)
	return filepath.Join(m.dir, safe+".jsonl")
}

// readLog loads a complete disk log into memory.
func readLog(path string) ([][]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var events [][]byte
	for _, line := range bytes.Split(data, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		event := make([]byte, len(line))
		copy(event, line)
		events = append(events, event)
	}
	return events, nil
}

func slicePage(events [][]byte, offset, limit int) Page {
	page := Page{TotalEvents: len(events), Offset: offset}
	if offset < 0 {
		offset = 0
		page.Offset = 0
	}
	if offset >= len(events) || limit <= 0 {
		return page
	}

	end := offset + limit
	if end > len(events) {
		end = len(events)
	}
	page.Events = copyEvents(events[offset:end])
	return page
}

func copyEvents(events [][]byte) [][]byte {
	out := make([][]byte, len(events))
	for i, e := range events {
		c := make([]byte, len(e))
		copy(c, e)
		out[i] = c
	}
	return out
}
