// Package ledger persists per-run download progress so interrupted runs can
// resume. The backing store is a JSON document in the download directory; it
// is written synchronously after every mutation, so an interruption never
// loses more than the in-flight item. The file is not safe for concurrent
// writers.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"
)

// DefaultFilename is the well-known ledger path relative to the download root.
const DefaultFilename = "download_progress.json"

// Failure records a permanently failed download. Failures are never retried
// automatically; the operator clears them explicitly.
type Failure struct {
	GameID    string    `json:"game_id"`
	Name      string    `json:"name"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

type state struct {
	Completed       []string  `json:"completed"`
	Failed          []Failure `json:"failed"`
	LastSection     string    `json:"last_section"`
	TotalDownloaded int       `json:"total_downloaded"`
}

// Ledger is the durable record of which remote ids are completed or failed.
type Ledger struct {
	path      string
	s         state
	completed map[string]struct{}
}

// Load reads the ledger at path, or creates an empty one when the file does
// not exist. Missing document keys take their zero defaults.
func Load(path string) (*Ledger, error) {
	l := &Ledger{
		path:      path,
		s:         state{Completed: []string{}, Failed: []Failure{}},
		completed: make(map[string]struct{}),
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &l.s); err != nil {
		return nil, fmt.Errorf("decode ledger %s: %w", path, err)
	}
	if l.s.Completed == nil {
		l.s.Completed = []string{}
	}
	if l.s.Failed == nil {
		l.s.Failed = []Failure{}
	}
	for _, id := range l.s.Completed {
		l.completed[id] = struct{}{}
	}
	return l, nil
}

// Save writes the ledger document. It is called internally after every
// mutation; exposed so callers can force a write after out-of-band edits.
func (l *Ledger) Save() error {
	data, err := json.MarshalIndent(l.s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}
	if err := os.WriteFile(l.path, data, 0o644); err != nil {
		return fmt.Errorf("write ledger %s: %w", l.path, err)
	}
	return nil
}

// IsCompleted reports whether id has been recorded as completed. Callers must
// still re-verify local presence before trusting the marker.
func (l *Ledger) IsCompleted(id string) bool {
	_, ok := l.completed[id]
	return ok
}

// MarkCompleted records id as satisfied without counting a download
// (fast-skip and local-presence skips).
func (l *Ledger) MarkCompleted(id string) error {
	if l.IsCompleted(id) {
		return nil
	}
	l.s.Completed = append(l.s.Completed, id)
	l.completed[id] = struct{}{}
	return l.Save()
}

// MarkDownloaded records id as completed by an actual transfer.
func (l *Ledger) MarkDownloaded(id string) error {
	if !l.IsCompleted(id) {
		l.s.Completed = append(l.s.Completed, id)
		l.completed[id] = struct{}{}
	}
	l.s.TotalDownloaded++
	return l.Save()
}

// RemoveCompleted drops a stale completion marker. The removal is persisted
// immediately so a crash mid-redownload cannot leave the ledger claiming a
// file that is gone.
func (l *Ledger) RemoveCompleted(id string) error {
	if !l.IsCompleted(id) {
		return nil
	}
	delete(l.completed, id)
	kept := l.s.Completed[:0]
	for _, c := range l.s.Completed {
		if c != id {
			kept = append(kept, c)
		}
	}
	l.s.Completed = kept
	return l.Save()
}

// MarkFailed records a permanent failure for id.
func (l *Ledger) MarkFailed(id, name, errMsg string) error {
	l.s.Failed = append(l.s.Failed, Failure{
		GameID:    id,
		Name:      name,
		Error:     errMsg,
		Timestamp: time.Now(),
	})
	return l.Save()
}

// SetLastSection records the section the run has reached, for resumption.
func (l *Ledger) SetLastSection(section string) error {
	l.s.LastSection = section
	return l.Save()
}

// LastSection returns the resume point, or "" when the run never recorded one.
func (l *Ledger) LastSection() string { return l.s.LastSection }

// CompletedCount returns the number of completed ids.
func (l *Ledger) CompletedCount() int { return len(l.s.Completed) }

// TotalDownloaded returns the number of actual transfers recorded.
func (l *Ledger) TotalDownloaded() int { return l.s.TotalDownloaded }

// Failures returns the recorded permanent failures.
func (l *Ledger) Failures() []Failure { return l.s.Failed }
