// Overblick-agent is the child-process binary the supervisor spawns once
// per managed identity. It discovers the supervisor's auth token from the
// socket directory, opens its own per-identity SQLite store, composes its
// configured plugins into one agentic loop, and ticks until it receives
// SIGTERM from the supervisor (or an interrupt when run by hand).
//
// Invocation (matching what the supervisor passes):
//
//	overblick-agent -identity <name> -plugins <a,b> -socket-dir <dir>
//
// Environment (set by the supervisor from the fleet config):
//
//	OVERBLICK_DATA_DIR       - directory for the per-identity database
//	OVERBLICK_TICK_INTERVAL  - seconds between ticks (default 60)
//	LLM_BASE_URL             - OpenAI-compatible endpoint; empty disables planning
//	LLM_API_KEY              - bearer token for the endpoint
//	LLM_MODEL                - model identifier
//	LOG_LEVEL, LOG_FORMAT    - slog configuration
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jensabrahamsson/overblick/internal/agent"
	"github.com/jensabrahamsson/overblick/internal/agentic"
	"github.com/jensabrahamsson/overblick/internal/llm"
	"github.com/jensabrahamsson/overblick/internal/observability"
	"github.com/jensabrahamsson/overblick/internal/planner"
	"github.com/jensabrahamsson/overblick/internal/plugins"
	_ "github.com/jensabrahamsson/overblick/internal/plugins/heartbeat" // built-in plugin
	"github.com/jensabrahamsson/overblick/internal/store"
)

func main() {
	identity := flag.String("identity", "", "agent identity name")
	pluginList := flag.String("plugins", "", "comma-separated plugin names")
	socketDir := flag.String("socket-dir", "", "supervisor IPC socket directory")
	flag.Parse()

	observability.Setup(envOr("LOG_LEVEL", "info"), envOr("LOG_FORMAT", "text"))

	if *identity == "" {
		slog.Error("agent: -identity is required")
		os.Exit(1)
	}

	supClient, err := agent.Discover(*identity, *socketDir)
	if err != nil {
		// Run without a supervisor rather than refuse to start: plugins
		// degrade, and the store/loop still work for standalone use.
		slog.Warn("agent: supervisor not discovered, running standalone", "err", err)
		supClient = nil
	}

	names := splitNonEmpty(*pluginList)
	plugin, err := plugins.Compose(names, plugins.Deps{
		Identity:   *identity,
		Supervisor: supClient,
	})
	if err != nil {
		slog.Error("agent: plugin setup failed", "err", err)
		os.Exit(1)
	}

	dataDir := envOr("OVERBLICK_DATA_DIR", filepath.Join(os.TempDir(), "overblick-data"))
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		slog.Error("agent: create data dir failed", "err", err)
		os.Exit(1)
	}
	db, err := store.Open(filepath.Join(dataDir, *identity+".db"))
	if err != nil {
		slog.Error("agent: open store failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	var provider llm.Provider
	if base := os.Getenv("LLM_BASE_URL"); base != "" {
		p, err := llm.NewOpenAI(llm.OpenAIConfig{
			APIKey:  os.Getenv("LLM_API_KEY"),
			BaseURL: base,
			Model:   envOr("LLM_MODEL", "gpt-4o-mini"),
		})
		if err != nil {
			slog.Error("agent: build LLM provider failed", "err", err)
			os.Exit(1)
		}
		provider = p
	}

	goals := agentic.NewGoalTracker(db)
	if err := goals.Setup(plugin.GetDefaultGoals()); err != nil {
		slog.Error("agent: seed goals failed", "err", err)
		os.Exit(1)
	}

	promptCfg := plugin.GetPlanningPromptConfig()
	loop := agentic.New(agentic.Config{
		Identity: *identity,
		Store:    db,
		Goals:    goals,
		Observer: plugin.CreateObserver(),
		Executor: agentic.NewExecutor(plugin.GetActionHandlers(), 0),
		Planner: planner.New(provider, planner.PromptConfig{
			RolePrompt:       promptCfg.RolePrompt,
			ActionsListing:   promptCfg.ActionsListing,
			SafetyRules:      promptCfg.SafetyRules,
			ValidActionTypes: promptCfg.ValidActionTypes,
		}),
		Reflector: planner.NewReflector(provider, db),
		Plugin:    plugin,
	})

	interval := time.Duration(envInt("OVERBLICK_TICK_INTERVAL", 60)) * time.Second

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("agent: received shutdown signal", "identity", *identity, "signal", sig.String())
		cancel()
	}()

	agent.NewRunner(*identity, loop, interval).Run(ctx)
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
