package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"classroom-relay/internal/relay"
)

// RecordWriter is the write side of session records. *Postgres
// implements it.
type RecordWriter interface {
	RecordCreated(ctx context.Context, id string, at time.Time) error
	RecordParticipant(ctx context.Context, id, teacherID, studentID string) error
	RecordStarted(ctx context.Context, id string, startedAt time.Time) error
	RecordEnded(ctx context.Context, id string, startedAt *time.Time, endedAt time.Time) error
	RecordFeedback(ctx context.Context, id string, feedback []byte) error
	RecordRemoved(ctx context.Context, id, reason string, at time.Time) error
}

// Recorder persists relay lifecycle events in the background so the
// relay never waits on the database
type Recorder struct {
	w       RecordWriter
	log     *slog.Logger
	queue   chan relay.LifecycleEvent
	timeout time.Duration
}

func NewRecorder(w RecordWriter, log *slog.Logger) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{w: w, log: log, queue: make(chan relay.LifecycleEvent, 512), timeout: 5 * time.Second}
}

// Record queues ev. When the queue is full the event is dropped and logged.
func (r *Recorder) Record(ev relay.LifecycleEvent) {
	select {
	case r.queue <- ev:
	default:
		r.log.Warn("recorder.drop", "session", ev.SessionID, "kind", ev.Kind)
	}
}

// Run writes queued events until ctx is cancelled, then drains what is
// already queued
func (r *Recorder) Run(ctx context.Context) {
	for {
		select {
		case ev := <-r.queue:
			r.write(ctx, ev)
		case <-ctx.Done():
			for {
				select {
				case ev := <-r.queue:
					r.write(context.Background(), ev)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(ctx context.Context, ev relay.LifecycleEvent) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.apply(ctx, ev); err != nil {
		r.log.Error("recorder.write", "session", ev.SessionID, "kind", ev.Kind, "err", err)
	}
}

func (r *Recorder) apply(ctx context.Context, ev relay.LifecycleEvent) error {
	switch ev.Kind {
	case relay.LifecycleCreated:
		return r.w.RecordCreated(ctx, ev.SessionID, ev.At)
	case relay.LifecycleParticipant:
		switch ev.Role {
		case relay.RoleTeacher:
			return r.w.RecordParticipant(ctx, ev.SessionID, ev.UserID, "")
		case relay.RoleStudent:
			return r.w.RecordParticipant(ctx, ev.SessionID, "", ev.UserID)
		}
		return fmt.Errorf("participant event without role for %s", ev.SessionID)
	case relay.LifecycleStarted:
		start := ev.At
		if ev.StartTime != nil {
			start = *ev.StartTime
		}
		return r.w.RecordStarted(ctx, ev.SessionID, start)
	case relay.LifecycleEnded:
		return r.w.RecordEnded(ctx, ev.SessionID, ev.StartTime, ev.At)
	case relay.LifecycleFeedback:
		return r.w.RecordFeedback(ctx, ev.SessionID, ev.Feedback)
	case relay.LifecycleRemoved:
		err := r.w.RecordRemoved(ctx, ev.SessionID, ev.Reason, ev.At)
		if errors.Is(err, ErrNotFound) {
			// created was dropped or failed; nothing to close
			return nil
		}
		return err
	}
	return fmt.Errorf("unknown lifecycle kind %q", ev.Kind)
}
