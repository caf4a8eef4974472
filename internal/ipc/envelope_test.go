package ipc

import "testing"

func TestEnvelopeRoundTrip(t *testing.T) {
	env := New("status_request", "agent-a", map[string]any{"x": float64(1)})
	env.RequestID = "req-1"
	env.AuthToken = "deadbeef"

	raw, err := env.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	got, err := Unmarshal(raw[:len(raw)-1])
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if got.Type != env.Type || got.Sender != env.Sender || got.RequestID != env.RequestID || got.AuthToken != env.AuthToken {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, env)
	}
	if got.Payload["x"] != float64(1) {
		t.Fatalf("payload mismatch: got %+v", got.Payload)
	}
}

func TestGenerateTokenIsHexAndUnique(t *testing.T) {
	a, err := GenerateToken()
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	b, err := GenerateToken()
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars (256 bits), got %d", len(a))
	}
	if a == b {
		t.Fatalf("expected distinct tokens across calls")
	}
}

func TestMaxMessageSizeIsOneMiB(t *testing.T) {
	big := make([]byte, MaxMessageSize+1)
	for i := range big {
		big[i] = 'a'
	}
	if len(big) <= MaxMessageSize {
		t.Fatal("test setup broken")
	}
	// The server never even calls Unmarshal on an oversized line (it is
	// dropped at the bufio.ReadSlice boundary); this exercises the size
	// constant callers rely on for that decision.
	if MaxMessageSize != 1024*1024 {
		t.Fatalf("MaxMessageSize changed unexpectedly: %d", MaxMessageSize)
	}
}
