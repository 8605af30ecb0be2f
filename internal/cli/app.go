// Package cli assembles a silvan workspace from configuration for the command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	silvan "github.com/stevekinney/silvan-sub003"
	"github.com/stevekinney/silvan-sub003/internal/config"
	"github.com/stevekinney/silvan-sub003/internal/logging"
	"github.com/stevekinney/silvan-sub003/pkg/adapters/process"
	"github.com/stevekinney/silvan-sub003/pkg/autofix"
	"github.com/stevekinney/silvan-sub003/pkg/checkpoint"
	"github.com/stevekinney/silvan-sub003/pkg/ciwait"
	"github.com/stevekinney/silvan-sub003/pkg/observability"
	"github.com/stevekinney/silvan-sub003/pkg/persistence/middleware"
	"github.com/stevekinney/silvan-sub003/pkg/statestore"
)

// Options are the global command-line settings.
type Options struct {
	Dir        string
	ConfigPath string
	LogLevel   string
	// Backend overrides state.backend from the config file.
	Backend string
	Plain   bool
	JSON    bool

	Stdout io.Writer
	Stderr io.Writer
	Getenv func(string) string
}

// App is an opened workspace plus everything a command needs to report on it.
type App struct {
	Config    config.Config
	Workspace *silvan.Workspace
	Metrics   *observability.Metrics
	Logger    *slog.Logger
	Out       *Output

	closeBackend func() error
}

// Open loads configuration and opens the workspace it describes.
func Open(ctx context.Context, opts Options) (*App, error) {
	if opts.Dir == "" {
		opts.Dir = "."
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Getenv == nil {
		opts.Getenv = os.Getenv
	}
	path := opts.ConfigPath
	if path == "" {
		path = config.PathFor(opts.Dir)
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if opts.Backend != "" {
		cfg.State.Backend = opts.Backend
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}
	logger := logging.NewWithWriter(opts.Stderr, logging.ParseLevel(cfg.Log.Level), logging.Format(cfg.Log.Format))

	layout, err := statestore.NewLayout(statestore.Mode(cfg.State.Mode), opts.Dir, cfg.State.DataDir)
	if err != nil {
		return nil, err
	}

	wsOpts, closeBackend, err := backendOptions(cfg, layout, logger)
	if err != nil {
		return nil, err
	}
	if r := cfg.State.Redact; len(r.Keys) > 0 || len(r.Messages) > 0 {
		wsOpts = append(wsOpts, silvan.WithMiddleware(middleware.NewRedactMiddleware(r.Keys, r.Messages)))
	}
	enc, ok, err := EncryptionConfig(opts.Getenv, cfg.State.EncryptionKeyEnv)
	if err != nil {
		_ = closeBackend()
		return nil, err
	}
	if ok {
		wsOpts = append(wsOpts, silvan.WithMiddleware(middleware.NewEncryptionMiddleware(enc)))
	}

	metrics := observability.NewMetrics()
	wsOpts = append(wsOpts,
		silvan.WithMetrics(metrics),
		silvan.WithHooks(observability.LogHooks(logger)),
		silvan.WithLogger(logger),
	)
	ws, err := silvan.Open(ctx, layout, wsOpts...)
	if err != nil {
		_ = closeBackend()
		return nil, err
	}

	return &App{
		Config:       cfg,
		Workspace:    ws,
		Metrics:      metrics,
		Logger:       logger,
		Out:          NewOutput(opts.Stdout, opts.Plain, opts.JSON),
		closeBackend: closeBackend,
	}, nil
}

// Close releases the workspace and backend connections.
func (a *App) Close(ctx context.Context) error {
	return errors.Join(a.Workspace.Close(ctx), a.closeBackend())
}

// VerifyFile is read when the config file lists no verify commands.
const VerifyFile = ".silvan/verify.yaml"

// VerifySetup is what the verify command hands to Workspace.Verify.
type VerifySetup struct {
	Verifier autofix.Verifier
	Options  silvan.VerifyOptions
}

// Verify builds the verifier, fixer and checkpoint helper from configuration.
// dryRun plans fixes without applying them.
func (a *App) Verify(dryRun, commit bool, message string) (VerifySetup, error) {
	root := a.Workspace.Layout().RepoRoot
	commands := a.Config.Verify.Commands
	if len(commands) == 0 {
		var err error
		if commands, err = process.LoadCommands(filepath.Join(root, VerifyFile)); err != nil {
			return VerifySetup{}, err
		}
	}
	if len(commands) == 0 {
		return VerifySetup{}, fmt.Errorf("no verify.commands configured and no %s found", VerifyFile)
	}
	exec := process.NewRunner(process.WithBaseDir(root), process.WithLogger(a.Logger))
	git := checkpoint.New(exec, root, checkpoint.WithLogger(a.Logger))

	setup := VerifySetup{
		Verifier: process.NewVerifier(exec, commands, process.WithVerifierLogger(a.Logger)),
		Options: silvan.VerifyOptions{
			Diff: git,
			AutoFix: autofix.Config{
				Enabled:     a.Config.AutoFix.Enabled,
				MaxAttempts: a.Config.AutoFix.MaxAttempts,
				Apply:       !dryRun,
				DryRun:      dryRun,
			},
			CheckpointMessage: message,
		},
	}
	if len(a.Config.AutoFix.Commands) > 0 {
		fixer := process.NewFixer(exec, a.Config.AutoFix.Commands, process.WithFixerLogger(a.Logger))
		setup.Options.Planner = fixer
		setup.Options.Executor = fixer
	}
	if commit {
		setup.Options.Checkpoint = git
	}
	return setup, nil
}

// CICheck builds the remote check polled by ci-wait from ci.command.
func (a *App) CICheck() (ciwait.Check, error) {
	c := a.Config.CI.Command
	if c.Command == "" {
		return nil, fmt.Errorf("no ci.command configured")
	}
	exec := process.NewRunner(process.WithBaseDir(a.Workspace.Layout().RepoRoot), process.WithLogger(a.Logger))
	return process.CheckCommand(exec, c, a.Config.CI.PendingExitCode), nil
}
