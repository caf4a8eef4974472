// Package router implements the Supervisor's star-topology inter-agent
// message routing: a queue-per-target dispatcher with capability-based
// admission, TTL expiry, and FIFO-capped delivered/dead-letter history.
package router

import (
	"fmt"
	"sync"
	"time"
)

// RouteStatus is the lifecycle state of a RoutedMessage.
type RouteStatus string

const (
	StatusPending    RouteStatus = "pending"
	StatusDelivered  RouteStatus = "delivered"
	StatusRejected   RouteStatus = "rejected"
	StatusDeadLetter RouteStatus = "dead_letter"
	StatusExpired    RouteStatus = "expired"
)

// Audit is the minimal sink the router writes one entry to per routing
// decision. Implemented by the persistence package's audit log.
type Audit interface {
	Log(action, category string, details map[string]any, success bool) error
}

// RoutedMessage is a message in flight (or resolved) between two agents.
type RoutedMessage struct {
	MessageID    string
	SourceAgent  string
	TargetAgent  string
	MessageType  string
	Payload      map[string]any
	Status       RouteStatus
	CreatedAt    time.Time
	DeliveredAt  time.Time
	TTLSeconds   float64
	Error        string
}

// IsExpired reports whether the message has outlived its TTL.
func (m RoutedMessage) IsExpired(now time.Time) bool {
	return now.Sub(m.CreatedAt).Seconds() > m.TTLSeconds
}

// ToMap renders the message's public dictionary form, as returned to IPC
// callers from collect_messages / route_message.
func (m RoutedMessage) ToMap() map[string]any {
	var delivered any
	if !m.DeliveredAt.IsZero() {
		delivered = m.DeliveredAt.UTC().Format(time.RFC3339)
	}
	var errStr any
	if m.Error != "" {
		errStr = m.Error
	}
	return map[string]any{
		"message_id":    m.MessageID,
		"source_agent":  m.SourceAgent,
		"target_agent":  m.TargetAgent,
		"message_type":  m.MessageType,
		"payload":       m.Payload,
		"status":        string(m.Status),
		"created_at":    m.CreatedAt.UTC().Format(time.RFC3339),
		"delivered_at":  delivered,
		"error":         errStr,
	}
}

// Capabilities declares which message types an agent accepts and how many
// may be queued for it at once.
type Capabilities struct {
	Identity      string
	AcceptedTypes map[string]struct{} // empty/nil means accept-all
	MaxQueueSize  int
}

// Accepts reports whether messageType is permitted for this agent.
func (c Capabilities) Accepts(messageType string) bool {
	if len(c.AcceptedTypes) == 0 {
		return true
	}
	_, ok := c.AcceptedTypes[messageType]
	return ok
}

const (
	// MaxDelivered and MaxDeadLetters cap the delivered/dead-letter
	// history lists. On overflow the oldest entries are dropped.
	MaxDelivered   = 1000
	MaxDeadLetters = 1000

	// defaultTTLSeconds is applied when a caller passes ttl<=0.
	defaultTTLSeconds = 300.0
	// defaultMaxQueueSize is applied when a caller registers with
	// maxQueueSize<=0.
	defaultMaxQueueSize = 100
	// cleanupEvery triggers an expiry sweep every Nth routed message.
	cleanupEvery = 100
)

// Router owns the set of pending, delivered, and dead-lettered messages for
// one Supervisor instance. The Supervisor never shares a Router across
// processes, but it does call into it from multiple IPC-handling
// goroutines, so the struct guards its state with a mutex.
type Router struct {
	mu sync.Mutex

	capabilities map[string]Capabilities
	pending      []*RoutedMessage
	delivered    []*RoutedMessage
	deadLetters  []*RoutedMessage

	messageCounter int64
	audit          Audit
}

// New constructs an empty Router. audit may be nil, in which case routing
// decisions are not recorded anywhere (useful in tests).
func New(audit Audit) *Router {
	return &Router{
		capabilities: make(map[string]Capabilities),
		audit:        audit,
	}
}

// RegisterAgent records identity's capabilities. An empty acceptedTypes set
// means accept-all. maxQueueSize<=0 defaults to 100.
func (r *Router) RegisterAgent(identity string, acceptedTypes map[string]struct{}, maxQueueSize int) {
	if maxQueueSize <= 0 {
		maxQueueSize = defaultMaxQueueSize
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.capabilities[identity] = Capabilities{
		Identity:      identity,
		AcceptedTypes: acceptedTypes,
		MaxQueueSize:  maxQueueSize,
	}
}

// UnregisterAgent removes identity's registration. Already-queued messages
// for that target remain queued; an expiry sweep moves them to dead letters
// once their TTL has passed.
func (r *Router) UnregisterAgent(identity string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.capabilities, identity)
}

// Route attempts to deliver a message from source to target. ttlSeconds<=0
// defaults to 300.
func (r *Router) Route(source, target, messageType string, payload map[string]any, ttlSeconds float64) *RoutedMessage {
	if ttlSeconds <= 0 {
		ttlSeconds = defaultTTLSeconds
	}
	if payload == nil {
		payload = map[string]any{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.messageCounter++
	msg := &RoutedMessage{
		MessageID:   fmt.Sprintf("route-%06d", r.messageCounter),
		SourceAgent: source,
		TargetAgent: target,
		MessageType: messageType,
		Payload:     payload,
		Status:      StatusPending,
		CreatedAt:   time.Now(),
		TTLSeconds:  ttlSeconds,
	}

	caps, ok := r.capabilities[target]
	if !ok {
		msg.Status = StatusDeadLetter
		msg.Error = fmt.Sprintf("Unknown target agent: %s", target)
		r.deadLetters = append(r.deadLetters, msg)
		r.logRoute(msg, false)
		return msg
	}

	if !caps.Accepts(messageType) {
		msg.Status = StatusRejected
		msg.Error = fmt.Sprintf("Agent '%s' does not accept '%s'", target, messageType)
		r.deadLetters = append(r.deadLetters, msg)
		r.logRoute(msg, false)
		return msg
	}

	pendingForTarget := 0
	for _, m := range r.pending {
		if m.TargetAgent == target {
			pendingForTarget++
		}
	}
	if pendingForTarget >= caps.MaxQueueSize {
		msg.Status = StatusRejected
		msg.Error = fmt.Sprintf("Agent '%s' queue full (%d)", target, caps.MaxQueueSize)
		r.deadLetters = append(r.deadLetters, msg)
		r.logRoute(msg, false)
		return msg
	}

	r.pending = append(r.pending, msg)
	r.cleanupIfNeeded()
	r.logRoute(msg, true)
	return msg
}

// Broadcast routes payload to every registered agent (except source and any
// identity in exclude) whose capabilities accept messageType.
func (r *Router) Broadcast(source, messageType string, payload map[string]any, exclude map[string]struct{}) []*RoutedMessage {
	if exclude == nil {
		exclude = make(map[string]struct{})
	}
	exclude[source] = struct{}{}

	r.mu.Lock()
	targets := make([]string, 0, len(r.capabilities))
	for identity, caps := range r.capabilities {
		if _, skip := exclude[identity]; skip {
			continue
		}
		if caps.Accepts(messageType) {
			targets = append(targets, identity)
		}
	}
	r.mu.Unlock()

	messages := make([]*RoutedMessage, 0, len(targets))
	for _, t := range targets {
		messages = append(messages, r.Route(source, t, messageType, payload, 0))
	}
	return messages
}

// Collect returns and removes all pending messages addressed to agent.
// Expired messages are moved to dead letters instead of being returned.
func (r *Router) Collect(agent string) []*RoutedMessage {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	collected := make([]*RoutedMessage, 0)
	remaining := make([]*RoutedMessage, 0, len(r.pending))

	for _, msg := range r.pending {
		if msg.TargetAgent != agent {
			remaining = append(remaining, msg)
			continue
		}
		if msg.IsExpired(now) {
			msg.Status = StatusExpired
			r.deadLetters = append(r.deadLetters, msg)
			continue
		}
		msg.Status = StatusDelivered
		msg.DeliveredAt = now
		collected = append(collected, msg)
		r.delivered = append(r.delivered, msg)
	}

	r.pending = remaining
	return collected
}

// PendingCount returns the number of pending messages, optionally filtered
// by target agent (pass "" for the global count).
func (r *Router) PendingCount(agent string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if agent == "" {
		return len(r.pending)
	}
	n := 0
	for _, m := range r.pending {
		if m.TargetAgent == agent {
			n++
		}
	}
	return n
}

// DeadLetters returns up to limit of the most recent dead-lettered
// messages.
func (r *Router) DeadLetters(limit int) []*RoutedMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit <= 0 || limit > len(r.deadLetters) {
		limit = len(r.deadLetters)
	}
	out := make([]*RoutedMessage, limit)
	copy(out, r.deadLetters[len(r.deadLetters)-limit:])
	return out
}

// Stats returns the routing statistics exposed through the Supervisor's
// status_response payload.
func (r *Router) Stats() map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()

	agents := make(map[string]any, len(r.capabilities))
	for name, caps := range r.capabilities {
		pending := 0
		for _, m := range r.pending {
			if m.TargetAgent == name {
				pending++
			}
		}
		accepted := []string{"*"}
		if len(caps.AcceptedTypes) > 0 {
			accepted = make([]string, 0, len(caps.AcceptedTypes))
			for t := range caps.AcceptedTypes {
				accepted = append(accepted, t)
			}
		}
		agents[name] = map[string]any{
			"accepted_types": accepted,
			"pending":        pending,
		}
	}

	return map[string]any{
		"total_routed":       r.messageCounter,
		"pending":            len(r.pending),
		"delivered":          len(r.delivered),
		"dead_letters":       len(r.deadLetters),
		"registered_agents":  len(r.capabilities),
		"agents":             agents,
	}
}

// CleanupExpired moves every expired pending message to dead letters and
// returns how many were moved.
func (r *Router) CleanupExpired() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cleanupExpiredLocked()
}

func (r *Router) cleanupExpiredLocked() int {
	now := time.Now()
	remaining := make([]*RoutedMessage, 0, len(r.pending))
	expiredCount := 0
	for _, m := range r.pending {
		if m.IsExpired(now) {
			m.Status = StatusExpired
			r.deadLetters = append(r.deadLetters, m)
			expiredCount++
			continue
		}
		remaining = append(remaining, m)
	}
	r.pending = remaining
	r.capLists()
	return expiredCount
}

// cleanupIfNeeded runs an expiry sweep when the message just queued is a
// 100th routed message (rejected and dead-lettered routes advance the
// counter but never reach this call), then caps the delivered/dead-letter
// lists on every call. A quiet system with
// fewer than 100 total routes can therefore accumulate expired pending
// messages; callers needing timely expiry run CleanupExpired on a timer.
func (r *Router) cleanupIfNeeded() {
	if r.messageCounter%cleanupEvery == 0 {
		r.cleanupExpiredLocked()
		return
	}
	r.capLists()
}

func (r *Router) capLists() {
	if len(r.delivered) > MaxDelivered {
		r.delivered = r.delivered[len(r.delivered)-MaxDelivered:]
	}
	if len(r.deadLetters) > MaxDeadLetters {
		r.deadLetters = r.deadLetters[len(r.deadLetters)-MaxDeadLetters:]
	}
}

func (r *Router) logRoute(msg *RoutedMessage, success bool) {
	if r.audit == nil {
		return
	}
	if err := r.audit.Log("message_route", "routing", msg.ToMap(), success); err != nil {
		// Audit is a best-effort write-only sink; a failure here must not
		// affect the routing decision already made.
		_ = err
	}
}
