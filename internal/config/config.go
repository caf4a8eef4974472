// Package config handles loading and validation of the supervisor's fleet
// definition: which agent identities to run, which plugins each loads, the
// restart policy, router admission defaults, and the LLM backend settings
// shared by the privileged handlers.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jensabrahamsson/overblick/internal/errs"
)

// identityRE constrains agent identities to names that are safe inside
// socket paths and database filenames.
var identityRE = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// LLMConfig configures the LLM backend used by the Supervisor's privileged
// handlers and handed down to agents via their environment.
type LLMConfig struct {
	// BaseURL overrides the API endpoint (e.g. a local Ollama at
	// "http://localhost:11434/v1"). Empty means no LLM: handlers fall back
	// to their canned responses.
	BaseURL string `yaml:"base_url"`
	// APIKey is the bearer token, if the backend needs one.
	APIKey string `yaml:"api_key"`
	// Model is the default model identifier.
	Model string `yaml:"model"`
	// MaxTokens caps the response length. 0 = provider default.
	MaxTokens int `yaml:"max_tokens"`
	// TimeoutSeconds bounds each completion call the supervisor's handlers
	// make. 0 = 180s. Agents are not handed this value and use the 180s
	// default.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// AgentConfig describes one managed agent identity.
type AgentConfig struct {
	Identity string   `yaml:"identity"`
	Plugins  []string `yaml:"plugins"`

	AutoRestart bool `yaml:"auto_restart"`
	// MaxRestarts caps crash-triggered restarts. 0 = default (3).
	MaxRestarts int `yaml:"max_restarts"`

	// AcceptedTypes lists the inter-agent message types this agent
	// accepts. Empty means accept-all.
	AcceptedTypes []string `yaml:"accepted_types"`
	// MaxQueueSize caps this agent's pending router queue. 0 = default (100).
	MaxQueueSize int `yaml:"max_queue_size"`

	// TickIntervalSeconds is the pause between agentic-loop ticks. 0 = 60.
	TickIntervalSeconds int `yaml:"tick_interval_seconds"`
}

// TickInterval returns the configured tick pause with the default applied.
func (a AgentConfig) TickInterval() time.Duration {
	if a.TickIntervalSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(a.TickIntervalSeconds) * time.Second
}

// Config is the full fleet definition.
type Config struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// SocketDir holds the IPC socket and token files. Empty defaults to
	// <tempdir>/overblick.
	SocketDir string `yaml:"socket_dir"`
	// DataDir holds each agent's SQLite store plus the supervisor's audit
	// database.
	DataDir string `yaml:"data_dir"`
	// AgentBinary is the executable spawned for each agent identity.
	AgentBinary string `yaml:"agent_binary"`

	LLM    LLMConfig     `yaml:"llm"`
	Agents []AgentConfig `yaml:"agents"`
}

// EffectiveSocketDir applies the <tempdir>/overblick default.
func (c *Config) EffectiveSocketDir() string {
	if c.SocketDir != "" {
		return c.SocketDir
	}
	return filepath.Join(os.TempDir(), "overblick")
}

// Parse decodes a fleet YAML document and validates it. It is the canonical
// entry point for loading fleet configurations.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse fleet yaml: %w: %w", err, errs.ErrConfig)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks a Config for structural correctness. It returns the first
// validation error encountered, or nil if the config is valid.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: config must not be nil: %w", errs.ErrConfig)
	}

	switch cfg.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log_level must be debug/info/warn/error, got %q: %w", cfg.LogLevel, errs.ErrConfig)
	}
	switch cfg.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("config: log_format must be text or json, got %q: %w", cfg.LogFormat, errs.ErrConfig)
	}

	if len(cfg.Agents) > 0 && strings.TrimSpace(cfg.AgentBinary) == "" {
		return fmt.Errorf("config: agent_binary must be set when agents are configured: %w", errs.ErrConfig)
	}

	seen := make(map[string]struct{}, len(cfg.Agents))
	for i, a := range cfg.Agents {
		if !identityRE.MatchString(a.Identity) {
			return fmt.Errorf("config: agents[%d]: identity %q must match %s: %w", i, a.Identity, identityRE, errs.ErrConfig)
		}
		if _, dup := seen[a.Identity]; dup {
			return fmt.Errorf("config: agents[%d]: duplicate identity %q: %w", i, a.Identity, errs.ErrConfig)
		}
		seen[a.Identity] = struct{}{}

		if a.MaxRestarts < 0 {
			return fmt.Errorf("config: agents[%d] (%q): max_restarts must not be negative: %w", i, a.Identity, errs.ErrConfig)
		}
		if a.MaxQueueSize < 0 {
			return fmt.Errorf("config: agents[%d] (%q): max_queue_size must not be negative: %w", i, a.Identity, errs.ErrConfig)
		}
	}
	return nil
}

// Loader holds the current fleet configuration and allows hot-reloads: a
// payload that fails validation leaves the live config untouched.
type Loader struct {
	mu     sync.RWMutex
	config *Config
	hash   string
}

// NewLoader creates an empty Loader with no configuration loaded yet.
func NewLoader() *Loader {
	return &Loader{}
}

// LoadFile reads a YAML file from disk, validates it, and applies it.
func (l *Loader) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read fleet file: %w: %w", err, errs.ErrConfig)
	}
	return l.Apply(data)
}

// Apply parses and validates a raw YAML payload, then atomically replaces
// the current config.
func (l *Loader) Apply(data []byte) error {
	cfg, err := Parse(data)
	if err != nil {
		return err
	}

	h := sha256.Sum256(data)
	hash := hex.EncodeToString(h[:])

	l.mu.Lock()
	defer l.mu.Unlock()
	l.config = cfg
	l.hash = hash
	return nil
}

// Config returns the current live fleet config, or nil if none is loaded.
func (l *Loader) Config() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.config
}

// Hash returns the SHA-256 hex digest of the current applied YAML, or ""
// when no config is loaded.
func (l *Loader) Hash() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.hash
}
