package process

import (
	"testing"
	"time"
)

func TestNewDefaultsMaxRestarts(t *testing.T) {
	a := New(Spec{Identity: "a"})
	if a.MaxRestarts() != DefaultMaxRestarts {
		t.Fatalf("expected default max restarts %d, got %d", DefaultMaxRestarts, a.MaxRestarts())
	}
}

func TestShouldRestartRequiresAllConditions(t *testing.T) {
	a := New(Spec{Identity: "a", AutoRestart: true, MaxRestarts: 3})

	if a.ShouldRestart(true) {
		t.Fatal("should not restart before a crash is observed")
	}

	a.mu.Lock()
	a.state = StateCrashed
	a.mu.Unlock()

	if !a.ShouldRestart(true) {
		t.Fatal("expected restart to be allowed: running supervisor, crashed agent, under cap")
	}
	if a.ShouldRestart(false) {
		t.Fatal("should not restart when supervisor isn't running")
	}

	a.spec.MaxRestarts = 0
	if a.ShouldRestart(true) {
		t.Fatal("should not restart once restart count reaches the cap")
	}
}

func TestRestartBackoffIsLinear(t *testing.T) {
	a := New(Spec{Identity: "a"})
	if got, want := a.RestartBackoff(), 2*time.Second; got != want {
		t.Fatalf("expected %v before any restart, got %v", want, got)
	}
	a.IncrementRestartCount()
	if got, want := a.RestartBackoff(), 4*time.Second; got != want {
		t.Fatalf("expected %v after one restart, got %v", want, got)
	}
	a.IncrementRestartCount()
	if got, want := a.RestartBackoff(), 6*time.Second; got != want {
		t.Fatalf("expected %v after two restarts, got %v", want, got)
	}
}

func TestJoinComma(t *testing.T) {
	if got := joinComma(nil); got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
	if got := joinComma([]string{"a", "b", "c"}); got != "a,b,c" {
		t.Fatalf("expected a,b,c, got %q", got)
	}
}
