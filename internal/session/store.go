// Package session persists a RallySession and its HistoryEntry trail
// to disk, at the path layout
// <cache>/octorus/rally/<sanitized-repo>_<pr>/{session.json,
// history/NNN_{review,fix}.json, logs/<name>.log}.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/octorus/octorus/internal/rally"
	"github.com/octorus/octorus/internal/review"
	"github.com/octorus/octorus/internal/reviewee"
)

// RallySession is the small, frequently-rewritten state record for
// one rally. The authoritative resumability record is the history
// directory, not this file's exact bytes — session.json is a
// convenience snapshot of where the rally currently stands.
type RallySession struct {
	Repo      string      `json:"repo"`
	PRNumber  int         `json:"pr_number"`
	Iteration int         `json:"iteration"`
	State     rally.State `json:"state"`
	StartedAt time.Time   `json:"started_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// New creates a fresh RallySession for repo/prNumber, starting at
// iteration 0 in rally.Initializing.
func New(repo string, prNumber int) *RallySession {
	now := time.Now()
	return &RallySession{
		Repo:      repo,
		PRNumber:  prNumber,
		Iteration: 0,
		State:     rally.Initializing,
		StartedAt: now,
		UpdatedAt: now,
	}
}

// IncrementIteration bumps Iteration and refreshes UpdatedAt.
func (s *RallySession) IncrementIteration() {
	s.Iteration++
	s.UpdatedAt = time.Now()
}

// UpdateState sets State and refreshes UpdatedAt, regardless of
// whether the transition is legal — callers that need the legality
// check should consult rally.State.CanTransition themselves first.
func (s *RallySession) UpdateState(next rally.State) {
	s.State = next
	s.UpdatedAt = time.Now()
}

// HistoryEntryKind discriminates the payload carried by a
// HistoryEntry.
type HistoryEntryKind string

const (
	HistoryReview HistoryEntryKind = "review"
	HistoryFix    HistoryEntryKind = "fix"
)

// HistoryEntry is one append-only record of a completed agent
// invocation, persisted as history/NNN_{review,fix}.json.
type HistoryEntry struct {
	Iteration int              `json:"iteration"`
	Kind      HistoryEntryKind `json:"kind"`
	Timestamp time.Time        `json:"timestamp"`

	Review *review.Output   `json:"review,omitempty"`
	Fix    *reviewee.Output `json:"fix,omitempty"`
}

// NewReviewHistoryEntry builds a HistoryReview entry.
func NewReviewHistoryEntry(iteration int, output review.Output) HistoryEntry {
	return HistoryEntry{Iteration: iteration, Kind: HistoryReview, Timestamp: time.Now(), Review: &output}
}

// NewFixHistoryEntry builds a HistoryFix entry.
func NewFixHistoryEntry(iteration int, output reviewee.Output) HistoryEntry {
	return HistoryEntry{Iteration: iteration, Kind: HistoryFix, Timestamp: time.Now(), Fix: &output}
}

// FileStore is a rally's on-disk home: one directory per (repo, PR)
// pair, holding session.json, a history/ trail, and a logs/ directory.
type FileStore struct {
	root string // <cache>/octorus/rally/<sanitized-repo>_<pr>
}

// NewFileStore returns a FileStore rooted at cacheDir for repo/prNumber.
// cacheDir is typically os.UserCacheDir()'s value; callers pass it
// explicitly so tests can use a temp directory.
func NewFileStore(cacheDir, repo string, prNumber int) (*FileStore, error) {
	sanitized, err := SanitizeRepoName(repo)
	if err != nil {
		return nil, fmt.Errorf("sanitize repo name: %w", err)
	}
	root := filepath.Join(cacheDir, "octorus", "rally", fmt.Sprintf("%s_%d", sanitized, prNumber))
	return &FileStore{root: root}, nil
}

// Root returns the store's rally directory.
func (fs *FileStore) Root() string { return fs.root }

func (fs *FileStore) sessionPath() string { return filepath.Join(fs.root, "session.json") }
func (fs *FileStore) historyDir() string  { return filepath.Join(fs.root, "history") }
func (fs *FileStore) logsDir() string     { return filepath.Join(fs.root, "logs") }

// WriteSession atomically persists sess to session.json (temp file in
// the same directory, then rename — rename is atomic on the same
// filesystem, so a reader never observes a partially-written file).
func (fs *FileStore) WriteSession(sess *RallySession) error {
	if err := os.MkdirAll(fs.root, 0o755); err != nil {
		return fmt.Errorf("create rally dir: %w", err)
	}
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	return atomicWriteFile(fs.sessionPath(), data)
}

// ReadSession loads session.json, if present.
func (fs *FileStore) ReadSession() (*RallySession, error) {
	data, err := os.ReadFile(fs.sessionPath())
	if err != nil {
		return nil, err
	}
	var sess RallySession
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &sess, nil
}

// WriteHistoryEntry appends entry to the history trail as
// history/NNN_review.json or history/NNN_fix.json, zero-padded to
// three digits.
func (fs *FileStore) WriteHistoryEntry(entry HistoryEntry) error {
	dir := fs.historyDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create history dir: %w", err)
	}
	name := fmt.Sprintf("%03d_%s.json", entry.Iteration, entry.Kind)
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal history entry: %w", err)
	}
	return atomicWriteFile(filepath.Join(dir, name), data)
}

// ReadHistory loads every history entry, ordered by iteration and,
// within one iteration, the review entry before the fix entry.
func (fs *FileStore) ReadHistory() ([]HistoryEntry, error) {
	dir := fs.historyDir()
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read history dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}

	var history []HistoryEntry
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read history entry %s: %w", name, err)
		}
		var entry HistoryEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			return nil, fmt.Errorf("unmarshal history entry %s: %w", name, err)
		}
		history = append(history, entry)
	}
	sort.SliceStable(history, func(i, j int) bool {
		if history[i].Iteration != history[j].Iteration {
			return history[i].Iteration < history[j].Iteration
		}
		return history[i].Kind == HistoryReview && history[j].Kind != HistoryReview
	})
	return history, nil
}

// AppendLog appends a single "[RFC3339] message\n" line to
// logs/<name>.log.
func (fs *FileStore) AppendLog(name, message string) error {
	dir := fs.logsDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create logs dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, name+".log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log %s: %w", name, err)
	}
	defer f.Close()

	line := fmt.Sprintf("[%s] %s\n", time.Now().Format(time.RFC3339), message)
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("append log %s: %w", name, err)
	}
	return nil
}

// Cleanup removes the rally's entire directory. `rally --fresh` calls
// it before a new rally starts, discarding the previous run's session
// record and history.
func (fs *FileStore) Cleanup() error {
	if err := os.RemoveAll(fs.root); err != nil {
		return fmt.Errorf("cleanup rally dir: %w", err)
	}
	return nil
}

// atomicWriteFile writes data to path via a temp file in the same
// directory followed by a rename, so a concurrent reader never
// observes a truncated or partially-written file.
func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
