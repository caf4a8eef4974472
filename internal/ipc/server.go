package ipc

import (
	"bufio"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/jensabrahamsson/overblick/internal/errs"
)

// Handler processes one envelope and optionally returns a reply envelope.
// A nil reply means the connection is closed without writing anything back.
type Handler func(Envelope) (*Envelope, error)

// Server is a Unix-domain-socket IPC endpoint. At most one handler may be
// registered per message type. The server accepts connections concurrently
// but processes each connection's single line to completion before closing
// it — there is no multiplexing within one connection.
type Server struct {
	name      string
	dir       string
	authToken string

	mu       sync.RWMutex
	handlers map[string]Handler

	rejected atomic.Int64

	listener net.Listener
	wg       sync.WaitGroup
	closed   atomic.Bool
}

// NewServer constructs a Server bound to <dir>/overblick-<name>.sock. The
// caller generates authToken once (see GenerateToken) and passes the empty
// string to disable authentication entirely.
func NewServer(name, dir, authToken string) *Server {
	return &Server{
		name:      name,
		dir:       dir,
		authToken: authToken,
		handlers:  make(map[string]Handler),
	}
}

// SocketPath returns <dir>/overblick-<name>.sock.
func (s *Server) SocketPath() string {
	return filepath.Join(s.dir, fmt.Sprintf("overblick-%s.sock", s.name))
}

// TokenPath returns <dir>/overblick-<name>.token.
func (s *Server) TokenPath() string {
	return filepath.Join(s.dir, fmt.Sprintf("overblick-%s.token", s.name))
}

// RejectedCount returns the number of messages rejected for auth mismatch.
func (s *Server) RejectedCount() int64 {
	return s.rejected.Load()
}

// On registers handler for msgType. A later call for the same type replaces
// the previous handler.
func (s *Server) On(msgType string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[msgType] = h
}

// Start creates the socket directory, removes any stale socket file, binds
// the listener, writes the token file (if a token is configured), and
// begins accepting connections in the background.
func (s *Server) Start() error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("ipc: create socket dir: %w: %w", err, errs.ErrConfig)
	}

	sockPath := s.SocketPath()
	if _, err := os.Stat(sockPath); err == nil {
		if err := os.Remove(sockPath); err != nil {
			return fmt.Errorf("ipc: remove stale socket: %w: %w", err, errs.ErrConfig)
		}
	}

	ln, err := net.Listen("unix", sockPath)
	if err != nil {
		return fmt.Errorf("ipc: bind socket: %w: %w", err, errs.ErrConfig)
	}
	if err := os.Chmod(sockPath, 0o600); err != nil {
		ln.Close()
		return fmt.Errorf("ipc: chmod socket: %w: %w", err, errs.ErrConfig)
	}

	if s.authToken != "" {
		if err := os.WriteFile(s.TokenPath(), []byte(s.authToken), 0o600); err != nil {
			ln.Close()
			return fmt.Errorf("ipc: write token file: %w: %w", err, errs.ErrConfig)
		}
		if err := os.Chmod(s.TokenPath(), 0o600); err != nil {
			ln.Close()
			return fmt.Errorf("ipc: chmod token file: %w: %w", err, errs.ErrConfig)
		}
	}

	s.listener = ln
	s.wg.Add(1)
	go s.acceptLoop()

	slog.Info("ipc server listening", "path", sockPath)
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.closed.Load() {
				return
			}
			slog.Warn("ipc: accept failed", "err", err)
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

// handleConn reads exactly one line, validates and dispatches it, writes
// back the reply if any, and closes. A single malformed connection never
// tears down the listener.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	reader := bufio.NewReaderSize(conn, MaxMessageSize)
	line, err := reader.ReadSlice('\n')
	if err != nil {
		// Oversized, unterminated, or EOF-before-newline: drop silently.
		return
	}
	if len(line) > MaxMessageSize {
		slog.Warn("ipc: message too large, rejecting", "size", len(line))
		return
	}

	env, err := Unmarshal(line[:len(line)-1])
	if err != nil {
		slog.Warn("ipc: invalid message", "err", err)
		return
	}

	if !s.validateAuth(env) {
		n := s.rejected.Add(1)
		slog.Warn("ipc: auth rejected", "sender", env.Sender, "type", env.Type, "total_rejections", n)
		return
	}

	slog.Debug("ipc: received", "type", env.Type, "sender", env.Sender)

	s.mu.RLock()
	handler, ok := s.handlers[env.Type]
	s.mu.RUnlock()
	if !ok {
		slog.Warn("ipc: no handler registered", "type", env.Type)
		return
	}

	reply, err := handler(env)
	if err != nil {
		slog.Error("ipc: handler error", "type", env.Type, "err", err)
		return
	}
	if reply == nil {
		return
	}

	out, err := reply.Marshal()
	if err != nil {
		slog.Error("ipc: marshal reply failed", "err", err)
		return
	}
	if _, err := conn.Write(out); err != nil {
		slog.Warn("ipc: write reply failed", "err", err)
	}
}

func (s *Server) validateAuth(env Envelope) bool {
	if s.authToken == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(env.AuthToken), []byte(s.authToken)) == 1
}

// Stop closes the listener, waits for in-flight connections to finish, and
// unlinks the socket and token files.
func (s *Server) Stop() error {
	if s.closed.Swap(true) {
		return nil
	}
	if s.listener != nil {
		s.listener.Close()
	}
	s.wg.Wait()

	os.Remove(s.SocketPath())
	os.Remove(s.TokenPath())

	slog.Info("ipc server stopped")
	return nil
}
