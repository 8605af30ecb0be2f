package statestore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Mode selects where a store keeps its files.
type Mode string

const (
	// ModeRepo keeps state inside the project under DirName.
	ModeRepo Mode = "repo"
	// ModeGlobal keeps state in a user-level data directory keyed by repository.
	ModeGlobal Mode = "global"
)

// DirName is the repo-local state directory.
const DirName = ".silvan"

// EnvDataDir overrides the global data directory.
const EnvDataDir = "SILVAN_DATA_DIR"

// Layout is the resolved set of directories a store manages.
type Layout struct {
	Mode     Mode
	RepoRoot string
	RepoID   string

	Root          string
	Runs          string
	Audit         string
	Artifacts     string
	Conversations string
	Queue         string
	Locks         string
}

// NewLayout resolves the directories for repoRoot.
// dataDir is only used in global mode; empty means DefaultDataDir.
func NewLayout(mode Mode, repoRoot, dataDir string) (Layout, error) {
	abs, err := filepath.Abs(repoRoot)
	if err != nil {
		return Layout{}, fmt.Errorf("failed to resolve repo root: %w", err)
	}
	repoID := RepoKey(abs)

	var root string
	switch mode {
	case ModeRepo, "":
		mode = ModeRepo
		root = filepath.Join(abs, DirName)
	case ModeGlobal:
		if dataDir == "" {
			if dataDir, err = DefaultDataDir(); err != nil {
				return Layout{}, err
			}
		}
		root = filepath.Join(dataDir, "repos", repoID)
	default:
		return Layout{}, fmt.Errorf("unknown state mode %q", mode)
	}

	return Layout{
		Mode:          mode,
		RepoRoot:      abs,
		RepoID:        repoID,
		Root:          root,
		Runs:          filepath.Join(root, "runs"),
		Audit:         filepath.Join(root, "audit"),
		Artifacts:     filepath.Join(root, "artifacts"),
		Conversations: filepath.Join(root, "conversations"),
		Queue:         filepath.Join(root, "queue"),
		Locks:         filepath.Join(root, "locks"),
	}, nil
}

// Dirs lists every directory the store bootstraps.
func (l Layout) Dirs() []string {
	return []string{l.Runs, l.Audit, l.Artifacts, l.Conversations, l.Queue, l.Locks}
}

// RepoKey derives a stable, collision-resistant key for an absolute repository path.
// The basename keeps it readable; the hash keeps same-named repositories apart.
func RepoKey(absPath string) string {
	clean := filepath.Clean(absPath)
	sum := sha256.Sum256([]byte(clean))
	base := strings.ToLower(filepath.Base(clean))
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '-'
		}
	}, base)
	if base == "" || base == "." || base == string(filepath.Separator) {
		base = "repo"
	}
	return base + "-" + hex.EncodeToString(sum[:])[:12]
}

// DefaultDataDir returns $SILVAN_DATA_DIR, then $XDG_DATA_HOME/silvan, then ~/.local/share/silvan.
func DefaultDataDir() (string, error) {
	if dir := os.Getenv(EnvDataDir); dir != "" {
		return dir, nil
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "silvan"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "silvan"), nil
}
