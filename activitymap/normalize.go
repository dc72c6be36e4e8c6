// Package activitymap turns auth activity events into the entries shown
// by the admin activity feed.
package activitymap

import (
	"strings"
	"time"

	auth "github.com/felapi/fel-auth"
)

const (
	MetadataKeyActorType  = "actor_type"
	MetadataKeyFromStatus = "from_status"
	MetadataKeyToStatus   = "to_status"
)

const (
	defaultChannel = "auth"
	defaultActorID = "system"
	timeLayout     = "2006-01-02 15:04:05"
)

var descriptions = map[auth.ActivityEventType]string{
	auth.ActivityEventUserRegistered:      "Nuevo usuario registrado",
	auth.ActivityEventVerificationSent:    "Código de verificación enviado",
	auth.ActivityEventAccountVerified:     "Cuenta verificada",
	auth.ActivityEventProfileCompleted:    "Perfil completado",
	auth.ActivityEventUserStatusChanged:   "Estado de usuario actualizado",
	auth.ActivityEventUserRolesUpdated:    "Roles de usuario actualizados",
	auth.ActivityEventUserDeleted:         "Usuario eliminado",
	auth.ActivityEventUserRestored:        "Usuario restaurado",
	auth.ActivityEventUserPurged:          "Usuario eliminado permanentemente",
	auth.ActivityEventLoginSuccess:        "Inicio de sesión",
	auth.ActivityEventLoginFailure:        "Inicio de sesión fallido",
	auth.ActivityEventAuthorizationDenied: "Acceso denegado",
}

// Entry is a single line of the admin activity feed
type Entry struct {
	Type        string         `json:"type"`
	Description string         `json:"description"`
	ActorID     string         `json:"actor_id"`
	UserID      string         `json:"user_id,omitempty"`
	Channel     string         `json:"channel"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Timestamp   string         `json:"timestamp"`
	OccurredAt  time.Time      `json:"occurred_at"`
}

type Option func(*options)

type options struct {
	channel  string
	location *time.Location
	now      func() time.Time
}

// WithChannel overrides the channel reported for every entry
func WithChannel(channel string) Option {
	return func(o *options) {
		if c := strings.TrimSpace(channel); c != "" {
			o.channel = c
		}
	}
}

// WithLocation renders Timestamp in loc instead of UTC
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		if loc != nil {
			o.location = loc
		}
	}
}

// WithClock is used when an event carries no time
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// Normalize maps event to a feed entry. Events without an actor are
// attributed to their user, then to the system.
func Normalize(event auth.ActivityEvent, opts ...Option) Entry {
	o := options{
		channel:  defaultChannel,
		location: time.UTC,
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	at := event.OccurredAt
	if at.IsZero() {
		at = o.now()
	}
	at = at.In(o.location)

	return Entry{
		Type:        string(event.EventType),
		Description: Describe(event.EventType),
		ActorID:     firstNonEmpty(event.Actor.ID, event.UserID, defaultActorID),
		UserID:      strings.TrimSpace(event.UserID),
		Channel:     o.channel,
		Metadata:    metadata(event),
		Timestamp:   at.Format(timeLayout),
		OccurredAt:  at,
	}
}

// Formatter adapts Normalize to the admin controller's formatter
func Formatter(opts ...Option) auth.ActivityFormatter {
	return func(event auth.ActivityEvent) any {
		return Normalize(event, opts...)
	}
}

// Describe returns the human description of t, or t itself when unknown
func Describe(t auth.ActivityEventType) string {
	if d, ok := descriptions[t]; ok {
		return d
	}
	return string(t)
}

func metadata(event auth.ActivityEvent) map[string]any {
	out := make(map[string]any, len(event.Metadata)+3)
	for k, v := range event.Metadata {
		out[k] = v
	}

	if t := strings.TrimSpace(event.Actor.Type); t != "" {
		if _, ok := out[MetadataKeyActorType]; !ok {
			out[MetadataKeyActorType] = t
		}
	}
	if event.FromStatus != "" {
		out[MetadataKeyFromStatus] = string(event.FromStatus)
	}
	if event.ToStatus != "" {
		out[MetadataKeyToStatus] = string(event.ToStatus)
	}

	if len(out) == 0 {
		return nil
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
