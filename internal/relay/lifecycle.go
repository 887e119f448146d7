package relay

import (
	"encoding/json"
	"time"
)

type LifecycleKind string

const (
	LifecycleCreated     LifecycleKind = "created"
	LifecycleParticipant LifecycleKind = "participant" // a user id claimed a role
	LifecycleStarted     LifecycleKind = "started"
	LifecycleEnded       LifecycleKind = "ended"
	LifecycleFeedback    LifecycleKind = "feedback"
	LifecycleRemoved     LifecycleKind = "removed"
)

// LifecycleEvent describes a room state change worth recording outside the
// process. Chat and whiteboard content never leaves the relay.
type LifecycleEvent struct {
	Kind      LifecycleKind   `json:"kind"`
	SessionID string          `json:"sessionId"`
	At        time.Time       `json:"at"`
	StartTime *time.Time      `json:"startTime,omitempty"`
	Role      Role            `json:"role,omitempty"`
	UserID    string          `json:"userId,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	Feedback  json.RawMessage `json:"feedback,omitempty"`
}

// LifecycleSink receives lifecycle events from the relay goroutine.
// Record must return immediately.
type LifecycleSink interface {
	Record(LifecycleEvent)
}

func (r *Relay) emit(ev LifecycleEvent) {
	if ev.At.IsZero() {
		ev.At = r.now()
	}
	for _, s := range r.opts.Sinks {
		s.Record(ev)
	}
}
