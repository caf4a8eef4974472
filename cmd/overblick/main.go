// Overblick is the fleet supervisor binary.
//
// It loads a fleet definition from a YAML file, binds the authenticated IPC
// socket, spawns each configured agent as a child process, and runs until
// it receives an interrupt/termination signal or a shutdown IPC message.
//
// Required environment variables:
//
//	OVERBLICK_FLEET_FILE  - path to the fleet YAML (agents, restart policy, LLM)
//
// Optional environment variables:
//
//	OVERBLICK_DATA_DIR    - overrides the fleet file's data_dir
//	LOG_LEVEL             - "debug", "info", "warn", "error" (default from fleet file, then "info")
//	LOG_FORMAT            - "text" or "json" (default from fleet file, then "text")
package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jensabrahamsson/overblick/internal/config"
	"github.com/jensabrahamsson/overblick/internal/llm"
	"github.com/jensabrahamsson/overblick/internal/observability"
	"github.com/jensabrahamsson/overblick/internal/supervisor"
)

func main() {
	fleetFile := requireEnv("OVERBLICK_FLEET_FILE")

	loader := config.NewLoader()
	if err := loader.LoadFile(fleetFile); err != nil {
		slog.Error("failed to load fleet config", "file", fleetFile, "err", err)
		os.Exit(1)
	}
	cfg := loader.Config()

	observability.Setup(
		envOr("LOG_LEVEL", envOr2(cfg.LogLevel, "info")),
		envOr("LOG_FORMAT", envOr2(cfg.LogFormat, "text")),
	)
	slog.Info("fleet config loaded", "file", fleetFile, "hash", loader.Hash()[:12])

	dataDir := envOr("OVERBLICK_DATA_DIR", envOr2(cfg.DataDir, "/var/lib/overblick"))

	var provider llm.Provider
	if cfg.LLM.BaseURL != "" {
		p, err := llm.NewOpenAI(llm.OpenAIConfig{
			APIKey:    cfg.LLM.APIKey,
			BaseURL:   cfg.LLM.BaseURL,
			Model:     cfg.LLM.Model,
			MaxTokens: cfg.LLM.MaxTokens,
			Timeout:   time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
		})
		if err != nil {
			slog.Error("failed to build LLM provider", "err", err)
			os.Exit(1)
		}
		provider = p
	}

	agentEnv := map[string]string{
		"LOG_LEVEL":    envOr("LOG_LEVEL", envOr2(cfg.LogLevel, "info")),
		"LOG_FORMAT":   envOr("LOG_FORMAT", envOr2(cfg.LogFormat, "text")),
		"LLM_BASE_URL": cfg.LLM.BaseURL,
		"LLM_API_KEY":  cfg.LLM.APIKey,
		"LLM_MODEL":    cfg.LLM.Model,
	}

	s, err := supervisor.New(supervisor.Config{
		SocketDir:   cfg.EffectiveSocketDir(),
		DataDir:     dataDir,
		AgentBinary: cfg.AgentBinary,
		Agents:      cfg.Agents,
		Provider:    provider,
		AgentEnv:    agentEnv,
	})
	if err != nil {
		slog.Error("failed to initialize supervisor", "err", err)
		os.Exit(1)
	}

	if err := s.Run(); err != nil {
		slog.Error("supervisor exited with error", "err", err)
		os.Exit(1)
	}
}

func requireEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		fmt.Fprintf(os.Stderr, "fatal: required environment variable %q is not set\n", key)
		os.Exit(1)
	}
	return v
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envOr2 applies a plain-value fallback, for settings that can come from
// the fleet file before the hardcoded default.
func envOr2(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}
