// Package checkpoint records working-tree progress as git commits.
package checkpoint

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/stevekinney/silvan-sub003/internal/logging"
	"github.com/stevekinney/silvan-sub003/pkg/adapters/process"
	"github.com/stevekinney/silvan-sub003/pkg/domain"
)

// Executor runs a single command. *process.Runner satisfies it.
type Executor interface {
	Run(ctx context.Context, cmd process.Command) (domain.CommandResult, error)
}

// Git drives the git binary in one working tree.
type Git struct {
	exec   Executor
	dir    string
	binary string
	logger *slog.Logger
}

// Option configures Git.
type Option func(*Git)

// WithBinary overrides the git executable.
func WithBinary(path string) Option {
	return func(g *Git) {
		g.binary = path
	}
}

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Git) {
		g.logger = logger
	}
}

// New creates a Git for the working tree at dir.
func New(exec Executor, dir string, opts ...Option) *Git {
	g := &Git{exec: exec, dir: dir, binary: "git", logger: logging.NewNop()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Result describes a checkpoint.
type Result struct {
	Committed bool   `json:"committed"`
	SHA       string `json:"sha,omitempty"`
}

// Commit stages every change and commits it with message.
// When nothing is staged it returns Committed=false with the current HEAD.
func (g *Git) Commit(ctx context.Context, message string) (Result, error) {
	if _, err := g.git(ctx, "add", "-A"); err != nil {
		return Result{}, err
	}

	// diff --cached --quiet exits 1 when there are staged changes.
	res, err := g.run(ctx, "diff", "--cached", "--quiet")
	if err != nil {
		return Result{}, err
	}
	switch res.ExitCode {
	case 0:
		sha, err := g.head(ctx)
		if err != nil {
			// A repository without commits has no HEAD yet.
			g.logger.Debug("no HEAD to report", "error", err)
			return Result{}, nil
		}
		return Result{SHA: sha}, nil
	case 1:
	default:
		return Result{}, commandError("diff", res)
	}

	if _, err := g.git(ctx, "commit", "--no-verify", "-m", message); err != nil {
		return Result{}, err
	}
	sha, err := g.head(ctx)
	if err != nil {
		return Result{}, err
	}
	g.logger.Info("checkpoint committed", "sha", sha)
	return Result{Committed: true, SHA: sha}, nil
}

var (
	filesRe      = regexp.MustCompile(`(\d+) files? changed`)
	insertionsRe = regexp.MustCompile(`(\d+) insertions?\(\+\)`)
	deletionsRe  = regexp.MustCompile(`(\d+) deletions?\(-\)`)
)

// DiffStat summarizes uncommitted changes against HEAD.
func (g *Git) DiffStat(ctx context.Context) (domain.DiffStat, error) {
	res, err := g.git(ctx, "diff", "HEAD", "--shortstat")
	if err != nil {
		return domain.DiffStat{}, err
	}
	return ParseShortStat(res.Stdout), nil
}

// ParseShortStat parses the output of git diff --shortstat.
func ParseShortStat(out string) domain.DiffStat {
	return domain.DiffStat{
		FilesChanged: firstInt(filesRe, out),
		Insertions:   firstInt(insertionsRe, out),
		Deletions:    firstInt(deletionsRe, out),
	}
}

func firstInt(re *regexp.Regexp, s string) int {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

func (g *Git) head(ctx context.Context) (string, error) {
	res, err := g.git(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Stdout), nil
}

func (g *Git) run(ctx context.Context, args ...string) (domain.CommandResult, error) {
	res, err := g.exec.Run(ctx, process.Command{Path: g.binary, Args: args, Dir: g.dir})
	if err != nil {
		return res, fmt.Errorf("git %s: %w", args[0], err)
	}
	return res, nil
}

// git runs a subcommand that must succeed.
func (g *Git) git(ctx context.Context, args ...string) (domain.CommandResult, error) {
	res, err := g.run(ctx, args...)
	if err != nil {
		return res, err
	}
	if res.ExitCode != 0 {
		return res, commandError(args[0], res)
	}
	return res, nil
}

func commandError(sub string, res domain.CommandResult) error {
	return &domain.Error{
		Kind:    domain.KindTransient,
		Op:      "git " + sub,
		Message: strings.TrimSpace(res.Stderr),
		Code:    strconv.Itoa(res.ExitCode),
	}
}
