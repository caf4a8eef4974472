// Package ipc implements the supervisor's authenticated, length-delimited
// message channel: a one-message-per-connection request/response protocol
// carried over an AF_UNIX stream socket, with a one-shot
// accept/read/dispatch/reply/close cycle per connection.
package ipc

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// MaxMessageSize bounds a single serialized envelope, including its
// trailing newline. Oversized or unterminated lines are dropped by the
// receiver without being deserialized.
const MaxMessageSize = 1024 * 1024 // 1 MiB

// Envelope is the wire message: one UTF-8 JSON object per line.
//
//	{"type":"...","payload":{...},"sender":"...","timestamp":"...","request_id":"...","auth_token":"..."}
//
// Field name on the wire is "type", not "msg_type" — callers should use the
// Type field in Go and rely on the json tag for serialization.
type Envelope struct {
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload"`
	Sender    string         `json:"sender"`
	Timestamp string         `json:"timestamp"`
	RequestID string         `json:"request_id"`
	AuthToken string         `json:"auth_token"`
}

// New builds an envelope with Timestamp set to now and Payload defaulted to
// an empty map so callers never have to nil-check it.
func New(msgType, sender string, payload map[string]any) Envelope {
	if payload == nil {
		payload = map[string]any{}
	}
	return Envelope{
		Type:      msgType,
		Payload:   payload,
		Sender:    sender,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// Marshal serializes the envelope to a single newline-terminated JSON line.
func (e Envelope) Marshal() ([]byte, error) {
	if e.Payload == nil {
		e.Payload = map[string]any{}
	}
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("ipc: marshal envelope: %w", err)
	}
	return append(b, '\n'), nil
}

// Unmarshal parses a single line (without its trailing newline) into an
// envelope.
func Unmarshal(line []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(line, &e); err != nil {
		return Envelope{}, fmt.Errorf("ipc: unmarshal envelope: %w", err)
	}
	if e.Payload == nil {
		e.Payload = map[string]any{}
	}
	return e, nil
}

// GenerateToken returns a cryptographically random 256-bit value, hex
// encoded. Called once per Supervisor startup.
func GenerateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("ipc: generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
