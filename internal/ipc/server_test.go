package ipc

import (
	"testing"
	"time"
)

func TestServerRoundTripWithCorrectToken(t *testing.T) {
	dir := t.TempDir()
	srv := NewServer("test", dir, "correct-token")
	srv.On("status_request", func(env Envelope) (*Envelope, error) {
		reply := New("status_response", "supervisor", map[string]any{
			"supervisor_state": "running",
			"total_agents":     float64(0),
		})
		return &reply, nil
	})
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer srv.Stop()

	client := NewClient("test", dir, "correct-token")
	reply := client.Send(New("status_request", "agent-a", nil), time.Second)
	if reply == nil {
		t.Fatal("expected a reply, got nil")
	}
	if reply.Type != "status_response" {
		t.Fatalf("unexpected reply type: %s", reply.Type)
	}
	if reply.Payload["supervisor_state"] != "running" {
		t.Fatalf("unexpected payload: %+v", reply.Payload)
	}
}

func TestServerRejectsWrongTokenSilentlyAndCountsRejection(t *testing.T) {
	dir := t.TempDir()
	srv := NewServer("test", dir, "correct-token")
	srv.On("status_request", func(env Envelope) (*Envelope, error) {
		reply := New("status_response", "supervisor", nil)
		return &reply, nil
	})
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer srv.Stop()

	client := NewClient("test", dir, "wrong")
	reply := client.Send(New("status_request", "agent-a", nil), time.Second)
	if reply != nil {
		t.Fatalf("expected no reply for bad auth, got %+v", reply)
	}

	// Give the server goroutine a moment to record the rejection.
	deadline := time.Now().Add(time.Second)
	for srv.RejectedCount() != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := srv.RejectedCount(); got != 1 {
		t.Fatalf("expected rejected_count == 1, got %d", got)
	}
}

func TestClientReturnsNilWhenSocketMissing(t *testing.T) {
	dir := t.TempDir()
	client := NewClient("nobody-home", dir, "")
	reply := client.Send(New("status_request", "agent-a", nil), 200*time.Millisecond)
	if reply != nil {
		t.Fatalf("expected nil for missing socket, got %+v", reply)
	}
}

func TestNoHandlerRegisteredClosesWithoutReply(t *testing.T) {
	dir := t.TempDir()
	srv := NewServer("test", dir, "")
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer srv.Stop()

	client := NewClient("test", dir, "")
	reply := client.Send(New("unknown_type", "agent-a", nil), time.Second)
	if reply != nil {
		t.Fatalf("expected nil reply for unregistered type, got %+v", reply)
	}
}
