package artifacts

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/stevekinney/silvan-sub003/pkg/domain"
)

// Store keeps step outputs outside the run document.
// Files are replaced by rename, never edited in place.
type Store struct {
	fs  afero.Fs
	dir string
	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithFs replaces the OS filesystem.
func WithFs(fs afero.Fs) Option {
	return func(s *Store) {
		s.fs = fs
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates a Store rooted at dir.
func New(dir string, opts ...Option) *Store {
	s := &Store{fs: afero.NewOsFs(), dir: dir, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Text marks a payload to be stored verbatim rather than as JSON.
type Text string

// Encode serializes payload the way Write stores it.
// Strings and Text are kept verbatim; everything else becomes indented JSON.
func Encode(payload any) ([]byte, domain.ArtifactKind, error) {
	switch v := payload.(type) {
	case string:
		return []byte(v), domain.ArtifactText, nil
	case Text:
		return []byte(v), domain.ArtifactText, nil
	default:
		data, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return nil, "", fmt.Errorf("failed to marshal artifact: %w", err)
		}
		return append(data, '\n'), domain.ArtifactJSON, nil
	}
}

func safe(part string) string {
	return strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(part)
}

// Write stores payload for (runID, stepID, name) and returns its index entry.
func (s *Store) Write(ctx context.Context, runID, stepID, name string, payload any) (domain.ArtifactEntry, error) {
	if runID == "" || stepID == "" || name == "" {
		return domain.ArtifactEntry{}, fmt.Errorf("artifact needs runID, stepID and name")
	}
	if err := ctx.Err(); err != nil {
		return domain.ArtifactEntry{}, err
	}

	data, kind, err := Encode(payload)
	if err != nil {
		return domain.ArtifactEntry{}, err
	}
	ext := ".json"
	if kind == domain.ArtifactText {
		ext = ".txt"
	}

	dir := filepath.Join(s.dir, safe(runID), safe(stepID))
	path := filepath.Join(dir, safe(name)+ext)
	if err := s.writeAtomic(dir, path, data); err != nil {
		return domain.ArtifactEntry{}, &domain.Error{Kind: domain.KindTransient, Op: "artifact.write", Message: "failed to write artifact " + name, Err: err}
	}

	return domain.ArtifactEntry{
		StepID:    stepID,
		Name:      name,
		Path:      path,
		Digest:    domain.DigestBytes(data),
		UpdatedAt: s.now().UTC(),
		Kind:      kind,
	}, nil
}

func (s *Store) writeAtomic(dir, path string, data []byte) error {
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := afero.TempFile(s.fs, dir, ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = s.fs.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return s.fs.Rename(tmpPath, path)
}

// Read returns the stored bytes for entry.
func (s *Store) Read(ctx context.Context, entry domain.ArtifactEntry) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(s.fs, entry.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact %s/%s: %w", entry.StepID, entry.Name, err)
	}
	return data, nil
}

// ReadJSON decodes a JSON artifact into v.
func (s *Store) ReadJSON(ctx context.Context, entry domain.ArtifactEntry, v any) error {
	if entry.Kind != domain.ArtifactJSON {
		return fmt.Errorf("artifact %s/%s is %s, not json", entry.StepID, entry.Name, entry.Kind)
	}
	data, err := s.Read(ctx, entry)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// Verify reports whether the file on disk still matches entry.Digest.
func (s *Store) Verify(ctx context.Context, entry domain.ArtifactEntry) (bool, error) {
	data, err := s.Read(ctx, entry)
	if err != nil {
		return false, err
	}
	return domain.DigestBytes(data) == entry.Digest, nil
}
