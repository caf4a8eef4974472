// Package supervisor implements the parent process of the fleet: it
// generates the session auth token, owns the authenticated IPC endpoint and
// the message router, spawns each configured agent as a supervised child
// process, and mediates every privileged operation (health, research, email
// consultation, permissions) on the agents' behalf.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/jensabrahamsson/overblick/internal/config"
	"github.com/jensabrahamsson/overblick/internal/handlers"
	"github.com/jensabrahamsson/overblick/internal/ipc"
	"github.com/jensabrahamsson/overblick/internal/llm"
	"github.com/jensabrahamsson/overblick/internal/process"
	"github.com/jensabrahamsson/overblick/internal/router"
	"github.com/jensabrahamsson/overblick/internal/store"
)

// State is the Supervisor's lifecycle state. Transitions are one-way:
// Init → Starting → Running → Stopping → Stopped.
type State string

const (
	StateInit     State = "init"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateStopped  State = "stopped"
)

// SocketName is the well-known name agents dial: the socket lives at
// <dir>/overblick-supervisor.sock.
const SocketName = "supervisor"

// Config assembles everything New needs. The caller (cmd/overblick) builds
// it from the fleet YAML plus process environment.
type Config struct {
	// SocketDir holds the socket and token files.
	SocketDir string
	// DataDir holds the supervisor's own audit database and is handed to
	// children for their per-identity stores.
	DataDir string
	// AgentBinary is the executable spawned per agent identity.
	AgentBinary string
	// Agents lists the managed identities in start order.
	Agents []config.AgentConfig
	// Provider backs the privileged handlers. May be nil — handlers then
	// use their canned fallbacks.
	Provider llm.Provider
	// AgentEnv is extra environment merged into every child (LLM settings,
	// log level).
	AgentEnv map[string]string
}

// Supervisor owns the fleet's lifecycle.
type Supervisor struct {
	cfg Config

	mu    sync.RWMutex
	state State
	token string

	server *ipc.Server
	router *router.Router
	db     *store.Store
	audit  *store.AuditLog

	agents       []*process.Agent // insertion order; stopped in reverse
	agentsByName map[string]*process.Agent

	health   *handlers.HealthInquiryHandler
	research *handlers.ResearchHandler
	email    *handlers.EmailConsultationHandler

	ctx       context.Context
	cancel    context.CancelFunc
	monitorWG sync.WaitGroup

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
	doneCh       chan struct{}
}

// New constructs a Supervisor, opening its audit database under
// cfg.DataDir. No sockets are bound and no children spawned until Start.
func New(cfg Config) (*Supervisor, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("supervisor: data dir is required")
	}
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("supervisor: create data dir: %w", err)
	}

	db, err := store.Open(filepath.Join(cfg.DataDir, "supervisor.db"))
	if err != nil {
		return nil, fmt.Errorf("supervisor: open audit store: %w", err)
	}
	audit := store.NewAuditLog(db)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Supervisor{
		cfg:          cfg,
		state:        StateInit,
		router:       router.New(audit),
		db:           db,
		audit:        audit,
		agentsByName: make(map[string]*process.Agent),
		health:       handlers.NewHealthInquiryHandler(cfg.Provider, audit, SocketName),
		research:     handlers.NewResearchHandler(cfg.Provider, audit),
		email:        handlers.NewEmailConsultationHandler(cfg.Provider, audit),
		ctx:          ctx,
		cancel:       cancel,
		shutdownCh:   make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
	return s, nil
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Supervisor) running() bool {
	return s.State() == StateRunning
}

// Router returns the message router, exposed for tests and embedders that
// pre-register non-process agents.
func (s *Supervisor) Router() *router.Router { return s.router }

// RejectedCount returns the IPC auth rejection counter.
func (s *Supervisor) RejectedCount() int64 { return s.server.RejectedCount() }

// Start generates the session token, binds the IPC endpoint, spawns every
// configured agent, and transitions to Running. A socket bind failure is
// the one fatal startup error; an individual agent failing to spawn is
// logged and left to the restart policy.
func (s *Supervisor) Start() error {
	s.setState(StateStarting)

	token, err := ipc.GenerateToken()
	if err != nil {
		return fmt.Errorf("supervisor: %w", err)
	}
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()

	s.server = ipc.NewServer(SocketName, s.cfg.SocketDir, token)
	s.installHandlers()
	if err := s.server.Start(); err != nil {
		return fmt.Errorf("supervisor: %w", err)
	}

	for _, ac := range s.cfg.Agents {
		if err := s.startAgent(ac); err != nil {
			slog.Error("supervisor: agent failed to start", "identity", ac.Identity, "err", err)
		}
	}

	s.setState(StateRunning)
	s.audit.Log("supervisor_started", "lifecycle", map[string]any{
		"agents": len(s.cfg.Agents),
	}, true)
	slog.Info("supervisor running", "agents", len(s.cfg.Agents), "socket_dir", s.cfg.SocketDir)
	return nil
}

// startAgent registers the identity with the router, spawns its process,
// and begins an independent monitor task. Router registration happens even
// if the spawn fails so messages for the agent queue while the restart
// policy brings it up.
func (s *Supervisor) startAgent(ac config.AgentConfig) error {
	accepted := make(map[string]struct{}, len(ac.AcceptedTypes))
	for _, t := range ac.AcceptedTypes {
		accepted[t] = struct{}{}
	}
	s.router.RegisterAgent(ac.Identity, accepted, ac.MaxQueueSize)

	env := make(map[string]string, len(s.cfg.AgentEnv)+2)
	for k, v := range s.cfg.AgentEnv {
		env[k] = v
	}
	env["OVERBLICK_DATA_DIR"] = s.cfg.DataDir
	env["OVERBLICK_TICK_INTERVAL"] = fmt.Sprintf("%d", int(ac.TickInterval().Seconds()))

	agent := process.New(process.Spec{
		Identity:    ac.Identity,
		Plugins:     ac.Plugins,
		SocketDir:   s.cfg.SocketDir,
		BinaryPath:  s.cfg.AgentBinary,
		ExtraEnv:    env,
		MaxRestarts: ac.MaxRestarts,
		AutoRestart: ac.AutoRestart,
	})

	s.mu.Lock()
	s.agents = append(s.agents, agent)
	s.agentsByName[ac.Identity] = agent
	s.mu.Unlock()

	err := agent.Start()

	s.monitorWG.Add(1)
	go func() {
		defer s.monitorWG.Done()
		s.monitorAgent(agent)
	}()

	return err
}

// monitorAgent waits for the child to exit and applies the restart policy:
// while the Supervisor is Running and the agent qualifies, wait the linear
// backoff (2s × attempt) and respawn. Manual stops never qualify because
// Stop transitions the agent out of Crashed.
func (s *Supervisor) monitorAgent(agent *process.Agent) {
	for {
		if agent.State() == process.StateRunning || agent.State() == process.StateStopping {
			agent.Monitor(s.ctx)
		}
		if !agent.ShouldRestart(s.running()) {
			return
		}

		backoff := agent.RestartBackoff()
		slog.Info("supervisor: scheduling agent restart",
			"identity", agent.Identity(),
			"attempt", agent.RestartCount()+1,
			"backoff", backoff)
		select {
		case <-s.ctx.Done():
			return
		case <-time.After(backoff):
		}
		if !s.running() {
			return
		}

		agent.IncrementRestartCount()
		if err := agent.Start(); err != nil {
			slog.Error("supervisor: agent restart failed", "identity", agent.Identity(), "err", err)
		}
	}
}

// Status assembles the status_response payload: supervisor state, per-agent
// state/restart/exit, and routing counters.
func (s *Supervisor) Status() map[string]any {
	s.mu.RLock()
	agents := make(map[string]any, len(s.agents))
	running := 0
	for name, a := range s.agentsByName {
		agents[name] = a.ToMap()
		if a.State() == process.StateRunning {
			running++
		}
	}
	total := len(s.agents)
	state := s.state
	s.mu.RUnlock()

	out := map[string]any{
		"supervisor_state": string(state),
		"agents":           agents,
		"total_agents":     total,
		"running_agents":   running,
		"routing":          s.router.Stats(),
	}
	if s.server != nil {
		out["rejected_count"] = s.server.RejectedCount()
	}
	return out
}

// SignalShutdown sets the shutdown event. Safe to call from any goroutine,
// any number of times.
func (s *Supervisor) SignalShutdown() {
	s.shutdownOnce.Do(func() { close(s.shutdownCh) })
}

// Stop performs an orderly shutdown: agents in reverse insertion order,
// then the IPC server (which unlinks the socket and token files), then the
// monitor tasks and the audit sink.
func (s *Supervisor) Stop() {
	if st := s.State(); st == StateStopping || st == StateStopped {
		return
	}
	s.setState(StateStopping)
	slog.Info("supervisor stopping")

	s.mu.RLock()
	agents := make([]*process.Agent, len(s.agents))
	copy(agents, s.agents)
	s.mu.RUnlock()
	for i := len(agents) - 1; i >= 0; i-- {
		if err := agents[i].Stop(); err != nil {
			slog.Warn("supervisor: agent stop failed", "identity", agents[i].Identity(), "err", err)
		}
	}

	if s.server != nil {
		s.server.Stop()
	}

	s.cancel()
	s.monitorWG.Wait()

	s.audit.Log("supervisor_stopped", "lifecycle", nil, true)
	if err := s.db.Close(); err != nil {
		slog.Warn("supervisor: close audit store failed", "err", err)
	}

	s.setState(StateStopped)
	close(s.doneCh)
	slog.Info("supervisor stopped")
}

// Done is closed once Stop completes, for callers that need to block on
// full shutdown.
func (s *Supervisor) Done() <-chan struct{} { return s.doneCh }

// Run starts the Supervisor, installs interrupt/termination handlers that
// set the shutdown event, blocks until that event fires, and stops. It
// returns the Start error, if any; an orderly shutdown returns nil.
func (s *Supervisor) Run() error {
	if err := s.Start(); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		slog.Info("supervisor: received shutdown signal", "signal", sig.String())
	case <-s.shutdownCh:
		slog.Info("supervisor: shutdown requested")
	}

	s.Stop()
	return nil
}
