package router

import "testing"

func TestRouteAndCollect(t *testing.T) {
	r := New(nil)
	r.RegisterAgent("a", nil, 0)
	r.RegisterAgent("b", nil, 0)

	msg := r.Route("a", "b", "hello", map[string]any{"x": 1}, 0)
	if msg.Status != StatusPending {
		t.Fatalf("expected Pending, got %s", msg.Status)
	}
	if msg.MessageID != "route-000001" {
		t.Fatalf("expected route-000001, got %s", msg.MessageID)
	}

	collected := r.Collect("b")
	if len(collected) != 1 {
		t.Fatalf("expected 1 collected message, got %d", len(collected))
	}
	if collected[0].SourceAgent != "a" || collected[0].Status != StatusDelivered {
		t.Fatalf("unexpected collected message: %+v", collected[0])
	}

	if second := r.Collect("b"); len(second) != 0 {
		t.Fatalf("expected empty second collect, got %d", len(second))
	}
}

func TestRouteDeadLetterOnUnknownTarget(t *testing.T) {
	r := New(nil)
	r.RegisterAgent("a", nil, 0)

	msg := r.Route("a", "ghost", "x", nil, 0)
	if msg.Status != StatusDeadLetter {
		t.Fatalf("expected DeadLetter, got %s", msg.Status)
	}
	if msg.Error == "" {
		t.Fatal("expected a non-empty error")
	}

	dl := r.DeadLetters(10)
	if len(dl) != 1 || dl[0].MessageID != msg.MessageID {
		t.Fatalf("expected dead letter list to contain exactly this message, got %+v", dl)
	}
}

func TestQueueOverflowRejectsFourthMessage(t *testing.T) {
	r := New(nil)
	r.RegisterAgent("small", nil, 3)

	var statuses []RouteStatus
	for i := 0; i < 4; i++ {
		msg := r.Route("s", "small", "m", map[string]any{"n": i}, 0)
		statuses = append(statuses, msg.Status)
	}

	pending, rejected := 0, 0
	for _, s := range statuses {
		switch s {
		case StatusPending:
			pending++
		case StatusRejected:
			rejected++
		}
	}
	if pending != 3 || rejected != 1 {
		t.Fatalf("expected 3 pending + 1 rejected, got statuses=%v", statuses)
	}
}

func TestCapabilitiesAcceptedTypesFilter(t *testing.T) {
	r := New(nil)
	r.RegisterAgent("picky", map[string]struct{}{"only_this": {}}, 0)

	msg := r.Route("a", "picky", "something_else", nil, 0)
	if msg.Status != StatusRejected {
		t.Fatalf("expected Rejected for non-accepted type, got %s", msg.Status)
	}

	msg2 := r.Route("a", "picky", "only_this", nil, 0)
	if msg2.Status != StatusPending {
		t.Fatalf("expected Pending for accepted type, got %s", msg2.Status)
	}
}
