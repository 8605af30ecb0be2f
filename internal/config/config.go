// Package config loads silvan settings from .silvan/config.yaml and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/stevekinney/silvan-sub003/pkg/adapters/process"
	"gopkg.in/yaml.v3"
)

// Environment overrides.
const (
	EnvStateMode = "SILVAN_STATE_MODE"
	EnvDataDir   = "SILVAN_DATA_DIR"
	EnvLogLevel  = "SILVAN_LOG_LEVEL"
	EnvRedisAddr = "SILVAN_REDIS_ADDR"
)

// FileName is the config file looked up under the state directory.
const FileName = "config.yaml"

// Config is the complete settings tree.
type Config struct {
	State   StateConfig   `mapstructure:"state"`
	Redis   RedisConfig   `mapstructure:"redis"`
	AutoFix AutoFixConfig `mapstructure:"autofix"`
	Verify  VerifyConfig  `mapstructure:"verify"`
	CI      CIConfig      `mapstructure:"ci"`
	Log     LogConfig     `mapstructure:"log"`
	Serve   ServeConfig   `mapstructure:"serve"`
}

type StateConfig struct {
	Mode    string     `mapstructure:"mode"`
	DataDir string     `mapstructure:"dataDir"`
	Backend string     `mapstructure:"backend"`
	Lock    LockConfig `mapstructure:"lock"`
	// EncryptionKeyEnv names an environment variable holding a base64 AES key.
	EncryptionKeyEnv string       `mapstructure:"encryptionKeyEnv"`
	Redact           RedactConfig `mapstructure:"redact"`
}

// RedactConfig lists regular expressions masked before documents are stored.
type RedactConfig struct {
	Keys     []string `mapstructure:"keys"`
	Messages []string `mapstructure:"messages"`
}

type LockConfig struct {
	Retries    int           `mapstructure:"retries"`
	RetryDelay time.Duration `mapstructure:"retryDelay"`
	// TTL bounds how long a crashed process can hold the store lock.
	TTL time.Duration `mapstructure:"ttl"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type AutoFixConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	MaxAttempts int  `mapstructure:"maxAttempts"`
	// Commands are fix commands offered to the planner.
	Commands []process.CommandConfig `mapstructure:"commands"`
}

type VerifyConfig struct {
	Commands []process.CommandConfig `mapstructure:"commands"`
}

type CIConfig struct {
	Timeout  time.Duration `mapstructure:"timeout"`
	Interval time.Duration `mapstructure:"interval"`
	// Command reports check status through its exit code.
	Command         process.CommandConfig `mapstructure:"command"`
	PendingExitCode int                   `mapstructure:"pendingExitCode"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type ServeConfig struct {
	Addr string `mapstructure:"addr"`
}

// Default returns the settings used when no file is present.
func Default() Config {
	return Config{
		State: StateConfig{
			Mode:    "repo",
			Backend: "file",
			Lock:    LockConfig{Retries: 20, RetryDelay: 100 * time.Millisecond, TTL: 30 * time.Second},
		},
		Redis:   RedisConfig{Addr: "localhost:6379"},
		AutoFix: AutoFixConfig{Enabled: true, MaxAttempts: 2},
		CI: CIConfig{
			Timeout:         30 * time.Minute,
			Interval:        15 * time.Second,
			PendingExitCode: process.DefaultPendingExitCode,
		},
		Log:   LogConfig{Level: "info", Format: "text"},
		Serve: ServeConfig{Addr: "127.0.0.1:7420"},
	}
}

// Load reads path over the defaults and applies environment overrides.
// A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decode(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}

	applyEnv(&cfg, os.Getenv)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// PathFor returns the default config location for a repository root.
func PathFor(repoRoot string) string {
	return filepath.Join(repoRoot, ".silvan", FileName)
}

func decode(data []byte, cfg *Config) error {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return err
	}
	return dec.Decode(raw)
}

func applyEnv(cfg *Config, getenv func(string) string) {
	if v := getenv(EnvStateMode); v != "" {
		cfg.State.Mode = v
	}
	if v := getenv(EnvDataDir); v != "" {
		cfg.State.DataDir = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		cfg.Log.Level = v
	}
	if v := getenv(EnvRedisAddr); v != "" {
		cfg.Redis.Addr = v
		cfg.State.Backend = "redis"
	}
}

// Validate rejects settings the rest of the program cannot act on.
func (c Config) Validate() error {
	var errs []error
	switch c.State.Mode {
	case "repo", "global":
	default:
		errs = append(errs, fmt.Errorf("state.mode must be repo or global, got %q", c.State.Mode))
	}
	switch c.State.Backend {
	case "file", "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("state.backend must be file, memory or redis, got %q", c.State.Backend))
	}
	if c.State.Lock.TTL <= 0 {
		errs = append(errs, fmt.Errorf("state.lock.ttl must be positive"))
	}
	if c.AutoFix.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("autofix.maxAttempts must not be negative"))
	}
	if c.CI.Timeout <= 0 || c.CI.Interval <= 0 {
		errs = append(errs, fmt.Errorf("ci.timeout and ci.interval must be positive"))
	}
	for i, cmd := range c.Verify.Commands {
		if cmd.Command == "" {
			errs = append(errs, fmt.Errorf("verify.commands[%d] has no command", i))
		}
	}
	for _, p := range append(append([]string{}, c.State.Redact.Keys...), c.State.Redact.Messages...) {
		if _, err := regexp.Compile(p); err != nil {
			errs = append(errs, fmt.Errorf("state.redact pattern %q: %w", p, err))
		}
	}
	for i, cmd := range c.AutoFix.Commands {
		if cmd.Command == "" {
			errs = append(errs, fmt.Errorf("autofix.commands[%d] has no command", i))
		}
	}
	return errors.Join(errs...)
}
