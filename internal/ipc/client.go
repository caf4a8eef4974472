package ipc

import (
	"bufio"
	"fmt"
	"log/slog"
	"net"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Client connects to a target Server's socket to send one envelope and
// optionally read one reply. Every failure mode (missing socket, connection
// refused, timeout, malformed reply, peer closing without writing) is
// absorbed into a nil return — callers treat nil as "unreachable" and never
// see a raised error for network conditions.
type Client struct {
	dir       string
	target    string
	authToken string
}

// NewClient builds a client for <dir>/overblick-<target>.sock. authToken,
// if non-empty, is injected into every outgoing envelope that doesn't
// already carry one.
func NewClient(target, dir, authToken string) *Client {
	return &Client{dir: dir, target: target, authToken: authToken}
}

// Dir returns the socket directory this client dials into.
func (c *Client) Dir() string { return c.dir }

func (c *Client) socketPath() string {
	return filepath.Join(c.dir, fmt.Sprintf("overblick-%s.sock", c.target))
}

// Send writes env (with AuthToken filled in if unset, and a fresh
// RequestID when the caller didn't correlate it themselves) to the target's
// socket and waits up to timeout for a single-line reply. Returns nil on
// any I/O error, timeout, malformed response, or if the peer closes the
// connection without writing a response.
func (c *Client) Send(env Envelope, timeout time.Duration) *Envelope {
	if c.authToken != "" && env.AuthToken == "" {
		env.AuthToken = c.authToken
	}
	if env.RequestID == "" {
		env.RequestID = uuid.NewString()
	}

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.Dial("unix", c.socketPath())
	if err != nil {
		slog.Debug("ipc client: connect failed", "target", c.target, "err", err)
		return nil
	}
	defer conn.Close()

	out, err := env.Marshal()
	if err != nil {
		slog.Error("ipc client: marshal failed", "err", err)
		return nil
	}

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return nil
	}
	if _, err := conn.Write(out); err != nil {
		slog.Debug("ipc client: write failed", "target", c.target, "err", err)
		return nil
	}

	reader := bufio.NewReaderSize(conn, MaxMessageSize)
	line, err := reader.ReadSlice('\n')
	if err != nil {
		slog.Debug("ipc client: no reply", "target", c.target, "err", err)
		return nil
	}
	if len(line) == 0 || len(line) > MaxMessageSize {
		return nil
	}

	reply, err := Unmarshal(line[:len(line)-1])
	if err != nil {
		slog.Debug("ipc client: malformed reply", "target", c.target, "err", err)
		return nil
	}
	return &reply
}
