// Package queue implements the durable task log: an ordered, append-only JSON
// file of note/link/upload tasks awaiting storage. The router appends to it on
// confirmed store actions and reads/rewrites it for list and delete.
package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

// ErrIO wraps any failure to read or write the underlying log file. Callers
// surface these as server errors; they are never silently masked.
var ErrIO = errors.New("task queue I/O")

// Task types.
const (
	TypeNote   = "note"
	TypeLink   = "link"
	TypeUpload = "upload"
)

// Task is one durable queue entry. Seq is assigned on append, is stable for
// the life of the entry and is the only key delete operations accept.
type Task struct {
	Seq       int64     `json:"seq"`
	Type      string    `json:"type"`
	Content   string    `json:"content"`
	Owner     string    `json:"owner,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Log is a file-backed task queue. All operations are serialized; every
// mutation rewrites the file atomically via temp-file rename.
type Log struct {
	mu   sync.Mutex
	path string
}

// Open binds a Log to path, creating an empty log file when none exists so
// the artifact is always present going forward.
func Open(path string) (*Log, error) {
	l := &Log{path: path}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := l.write([]Task{}); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, fmt.Errorf("%w: stat %s: %v", ErrIO, path, err)
	}

	// Validate the existing file parses before serving from it.
	if _, err := l.LoadAll(); err != nil {
		return nil, err
	}
	return l, nil
}

// LoadAll returns every task in insertion order.
func (l *Log) LoadAll() ([]Task, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.read()
}

// Append assigns the next sequence number, stamps the task if needed, and
// writes it to the tail of the log. The stored task is returned.
func (l *Log) Append(t Task) (Task, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	tasks, err := l.read()
	if err != nil {
		return Task{}, err
	}

	var maxSeq int64
	for _, existing := range tasks {
		if existing.Seq > maxSeq {
			maxSeq = existing.Seq
		}
	}
	t.Seq = maxSeq + 1
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now().UTC()
	}

	if err := l.write(append(tasks, t)); err != nil {
		return Task{}, err
	}
	return t, nil
}

// ReplaceAll rewrites the log with the given tasks, preserving their order
// and sequence numbers.
func (l *Log) ReplaceAll(tasks []Task) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.write(tasks)
}

func (l *Log) read() ([]Task, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrIO, l.path, err)
	}
	var tasks []Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %v", ErrIO, l.path, err)
	}
	return tasks, nil
}

func (l *Log) write(tasks []Task) error {
	if tasks == nil {
		tasks = []Task{}
	}
	data, err := json.MarshalIndent(tasks, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encoding tasks: %v", ErrIO, err)
	}
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("%w: writing %s: %v", ErrIO, tmp, err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: renaming %s: %v", ErrIO, tmp, err)
	}
	return nil
}
