// Package plugins is the registry the agent binary resolves its -plugins
// flag against. Domain plugins register a Factory under a stable name (via
// an init func in their own package, imported for side effect by
// cmd/overblick-agent) and receive their runtime dependencies when the
// agent constructs them.
package plugins

import (
	"fmt"
	"sort"
	"sync"

	"github.com/jensabrahamsson/overblick/internal/agent"
	"github.com/jensabrahamsson/overblick/internal/agentic"
	"github.com/jensabrahamsson/overblick/internal/errs"
)

// Deps is what every plugin gets handed at construction time.
type Deps struct {
	// Identity is the agent's stable name.
	Identity string
	// Supervisor is the authenticated IPC client to the parent process.
	// Nil when the agent runs without a supervisor (tests, one-off runs).
	Supervisor *agent.SupervisorClient
}

// Factory builds one plugin instance.
type Factory func(deps Deps) agentic.Plugin

var (
	mu       sync.RWMutex
	registry = make(map[string]Factory)
)

// Register installs factory under name. Later registrations for the same
// name replace earlier ones.
func Register(name string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()
	registry[name] = factory
}

// New constructs the named plugin, or fails with a configuration error if
// no factory is registered for it.
func New(name string, deps Deps) (agentic.Plugin, error) {
	mu.RLock()
	factory, ok := registry[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("plugins: unknown plugin %q (registered: %v): %w", name, Names(), errs.ErrConfig)
	}
	return factory(deps), nil
}

// Names returns all registered plugin names, sorted.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
