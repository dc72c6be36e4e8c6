package auth

import (
	"context"
	"sync"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventUserRegistered      ActivityEventType = "user.registered"
	ActivityEventVerificationSent    ActivityEventType = "user.verification.sent"
	ActivityEventAccountVerified     ActivityEventType = "user.verified"
	ActivityEventProfileCompleted    ActivityEventType = "user.profile.completed"
	ActivityEventUserStatusChanged   ActivityEventType = "user.status.changed"
	ActivityEventUserRolesUpdated    ActivityEventType = "user.role.update"
	ActivityEventUserDeleted         ActivityEventType = "user.deleted"
	ActivityEventUserRestored        ActivityEventType = "user.restored"
	ActivityEventUserPurged          ActivityEventType = "user.purged"
	ActivityEventLoginSuccess        ActivityEventType = "user.login"
	ActivityEventLoginFailure        ActivityEventType = "user.login.failure"
	ActivityEventAuthorizationDenied ActivityEventType = "auth.authorization.denied"
)

// ActorRef identifies who/what triggered an action.
type ActorRef struct {
	ID   string `json:"id,omitempty"`
	Type string `json:"type,omitempty"`
}

const (
	ActorTypeSystem = "system"
	ActorTypeUser   = "user"
	ActorTypeAdmin  = "admin"
)

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType `json:"event_type"`
	Actor      ActorRef          `json:"actor"`
	UserID     string            `json:"user_id,omitempty"`
	FromStatus AccountStatus     `json:"from_status,omitempty"`
	ToStatus   AccountStatus     `json:"to_status,omitempty"`
	Metadata   map[string]any    `json:"metadata,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

// MultiActivitySink fans events out to every sink, returning the first error
type MultiActivitySink []ActivitySink

func (m MultiActivitySink) Record(ctx context.Context, event ActivityEvent) error {
	var first error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Record(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// ActivityReader exposes recent activity
type ActivityReader interface {
	Recent(limit int) []ActivityEvent
}

// ActivityFeed keeps the most recent events in memory. Nothing is
// persisted, a restart empties the feed.
type ActivityFeed struct {
	mu     sync.Mutex
	events []ActivityEvent
	next   int
	full   bool
}

// DefaultActivityFeedSize is used when NewActivityFeed gets a non
// positive size
const DefaultActivityFeedSize = 200

func NewActivityFeed(size int) *ActivityFeed {
	if size <= 0 {
		size = DefaultActivityFeedSize
	}
	return &ActivityFeed{events: make([]ActivityEvent, size)}
}

// Record implements ActivitySink.
func (f *ActivityFeed) Record(_ context.Context, event ActivityEvent) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.events[f.next] = event
	f.next = (f.next + 1) % len(f.events)
	if f.next == 0 {
		f.full = true
	}
	return nil
}

// Recent returns up to limit events, newest first. A non positive limit
// returns everything held.
func (f *ActivityFeed) Recent(limit int) []ActivityEvent {
	f.mu.Lock()
	defer f.mu.Unlock()

	count := f.next
	if f.full {
		count = len(f.events)
	}
	if limit <= 0 || limit > count {
		limit = count
	}

	out := make([]ActivityEvent, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (f.next - i + len(f.events)) % len(f.events)
		out = append(out, f.events[idx])
	}
	return out
}

func recordActivity(ctx context.Context, sink ActivitySink, logger Logger, event ActivityEvent) {
	if sink == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if err := sink.Record(ctx, event); err != nil && logger != nil {
		logger.Warn("activity sink failed", "event", event.EventType, "error", err)
	}
}
