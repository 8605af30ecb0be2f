// Package transcript keeps the per-run conversation transcript.
// The step runner appends diagnostic notes to it when work fails.
package transcript

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"
	"github.com/stevekinney/silvan-sub003/pkg/domain"
)

// Role identifies who produced a note.
type Role string

const (
	RoleSystem    Role = "system"
	RoleAssistant Role = "assistant"
	RoleUser      Role = "user"
)

// Note is one transcript entry.
type Note struct {
	TS     time.Time      `json:"ts"`
	Role   Role           `json:"role"`
	StepID string         `json:"stepId,omitempty"`
	Text   string         `json:"text"`
	Meta   map[string]any `json:"meta,omitempty"`
}

// Transcript appends notes to <dir>/<runId>.jsonl.
type Transcript struct {
	fs  afero.Fs
	dir string
	now func() time.Time
	mu  sync.Mutex
}

// Option configures a Transcript.
type Option func(*Transcript)

func WithFs(fs afero.Fs) Option {
	return func(t *Transcript) { t.fs = fs }
}

func WithClock(now func() time.Time) Option {
	return func(t *Transcript) { t.now = now }
}

func New(dir string, opts ...Option) *Transcript {
	t := &Transcript{fs: afero.NewOsFs(), dir: dir, now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Transcript) path(runID string) string {
	return filepath.Join(t.dir, runID+".jsonl")
}

// Append adds a note for runID.
func (t *Transcript) Append(ctx context.Context, runID string, note Note) error {
	if err := domain.ValidateRunID(runID); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if note.TS.IsZero() {
		note.TS = t.now().UTC()
	}
	if note.Role == "" {
		note.Role = RoleSystem
	}
	line, err := json.Marshal(note)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.fs.MkdirAll(t.dir, 0o755); err != nil {
		return fmt.Errorf("failed to ensure transcript directory: %w", err)
	}
	f, err := t.fs.OpenFile(t.path(runID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open transcript: %w", err)
	}
	defer f.Close()
	_, err = f.Write(append(line, '\n'))
	return err
}

// Read returns every decodable note for runID.
func (t *Transcript) Read(ctx context.Context, runID string) ([]Note, error) {
	if err := domain.ValidateRunID(runID); err != nil {
		return nil, err
	}
	f, err := t.fs.Open(t.path(runID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var notes []Note
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4<<20)
	for scanner.Scan() {
		var n Note
		if err := json.Unmarshal(scanner.Bytes(), &n); err != nil {
			continue
		}
		notes = append(notes, n)
	}
	return notes, scanner.Err()
}
