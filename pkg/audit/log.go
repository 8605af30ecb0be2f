package audit

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/afero"
	"github.com/stevekinney/silvan-sub003/internal/logging"
	"github.com/stevekinney/silvan-sub003/pkg/domain"
)

// DefaultSource is stamped on events that do not name their origin.
const DefaultSource = "silvan"

const maxLineSize = 4 << 20

// Log is the append-only audit journal: one NDJSON file per run.
// Lines are never rewritten. Readers skip lines they cannot decode.
type Log struct {
	fs     afero.Fs
	dir    string
	repoID string
	source string
	logger *slog.Logger
	now    func() time.Time

	mu sync.Mutex
}

// Option configures a Log.
type Option func(*Log)

// WithFs replaces the OS filesystem, typically with afero.NewMemMapFs in tests.
func WithFs(fs afero.Fs) Option {
	return func(l *Log) {
		l.fs = fs
	}
}

// WithRepoID sets the repoId stamped on every event.
func WithRepoID(id string) Option {
	return func(l *Log) {
		l.repoID = id
	}
}

// WithSource sets the default event source.
func WithSource(source string) Option {
	return func(l *Log) {
		l.source = source
	}
}

// WithLogger configures a logger for the Log.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Log) {
		l.logger = logger
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Log) {
		l.now = now
	}
}

// New creates a Log writing under dir.
func New(dir string, opts ...Option) *Log {
	l := &Log{
		fs:     afero.NewOsFs(),
		dir:    dir,
		source: DefaultSource,
		logger: logging.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Path returns the journal file for runID.
func (l *Log) Path(runID string) string {
	return filepath.Join(l.dir, runID+".jsonl")
}

// Append writes event as one line. Missing id, timestamp, level, source and repoId
// are filled in.
func (l *Log) Append(ctx context.Context, event domain.Event) error {
	if err := domain.ValidateRunID(event.RunID); err != nil {
		return fmt.Errorf("audit event: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if event.ID == "" {
		event.ID = ulid.Make().String()
	}
	if event.TS.IsZero() {
		event.TS = l.now().UTC()
	}
	if event.Level == "" {
		event.Level = domain.LevelInfo
	}
	if event.Source == "" {
		event.Source = l.source
	}
	if event.RepoID == "" {
		event.RepoID = l.repoID
	}

	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.fs.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("failed to ensure audit directory: %w", err)
	}
	f, err := l.fs.OpenFile(l.Path(event.RunID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("failed to append audit event: %w", err)
	}
	return nil
}

// Read returns every decodable event for runID in file order.
// A missing journal yields no events and no error.
func (l *Log) Read(ctx context.Context, runID string) ([]domain.Event, error) {
	if err := domain.ValidateRunID(runID); err != nil {
		return nil, err
	}
	f, err := l.fs.Open(l.Path(runID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	events, skipped, err := Decode(f)
	if skipped > 0 {
		l.logger.Warn("skipped malformed audit lines", "run_id", runID, "count", skipped)
	}
	return events, err
}

// Decode parses an NDJSON stream, returning the events and the number of lines skipped.
func Decode(r io.Reader) ([]domain.Event, int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	var events []domain.Event
	skipped := 0
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var ev domain.Event
		if err := json.Unmarshal(line, &ev); err != nil || ev.Type == "" {
			skipped++
			continue
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return events, skipped, fmt.Errorf("failed to read audit log: %w", err)
	}
	return events, skipped, nil
}
