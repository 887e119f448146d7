// Package relay is the live-session core: it tracks which connections sit
// in which class room, routes chat, whiteboard, control and WebRTC
// signaling events between them, and retires rooms after use.
//
// All room state is owned by a single goroutine started with Run. Every
// other entry point hands a closure to that goroutine, so handlers run to
// completion one at a time and need no locks of their own.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"classroom-relay/internal/classes"
	"classroom-relay/pkg/metrics"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExists   = errors.New("session already exists")
	ErrStopped         = errors.New("relay stopped")
)

// ClassResolver looks up display metadata for a class id
type ClassResolver interface {
	Fetch(ctx context.Context, id string) (classes.Info, error)
}

type Options struct {
	Logger *slog.Logger

	// Classes is optional; without it rooms get placeholder metadata
	Classes        ClassResolver
	ClassesTimeout time.Duration

	EndGrace     time.Duration
	VacancyGrace time.Duration

	ICEServers []webrtc.ICEServer
	Sinks      []LifecycleSink

	// AfterFunc and Now exist for tests
	AfterFunc AfterFunc
	Now       func() time.Time
}

type Relay struct {
	log  *slog.Logger
	opts Options
	now  func() time.Time

	cmds chan func()
	done chan struct{}
	ctx  context.Context

	registry *Registry
	tracker  *Tracker
	reaper   *Reaper
	clients  map[string]Client // attached connections, joined or not
}

// Stats is the liveness view of the relay
type Stats struct {
	Rooms   int `json:"rooms"`
	Clients int `json:"clients"`
	Joined  int `json:"joined"`
}

// Registration pre-creates a room before anyone joins it
type Registration struct {
	ID        string `json:"id"`
	TeacherID string `json:"teacherId"`
	StudentID string `json:"studentId"`
}

func New(opts Options) *Relay {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ClassesTimeout <= 0 {
		opts.ClassesTimeout = 3 * time.Second
	}
	if opts.EndGrace <= 0 {
		opts.EndGrace = 10 * time.Second
	}
	if opts.VacancyGrace <= 0 {
		opts.VacancyGrace = time.Minute
	}

	r := &Relay{
		log:      opts.Logger.With("component", "relay"),
		opts:     opts,
		now:      opts.Now,
		cmds:     make(chan func(), 256),
		done:     make(chan struct{}),
		ctx:      context.Background(),
		registry: NewRegistry(opts.Now),
		tracker:  NewTracker(),
		clients:  map[string]Client{},
	}
	r.reaper = NewReaper(opts.AfterFunc, func(id string, reason Reason, seq uint64) {
		_ = r.post(context.Background(), func() { r.reap(id, reason, seq) })
	})
	return r
}

// Run processes commands until ctx is cancelled
func (r *Relay) Run(ctx context.Context) {
	r.ctx = ctx
	defer close(r.done)
	r.log.Info("relay.started", "endGrace", r.opts.EndGrace, "vacancyGrace", r.opts.VacancyGrace)

	for {
		select {
		case fn := <-r.cmds:
			r.safely(fn)
		case <-ctx.Done():
			r.reaper.StopAll()
			r.log.Info("relay.stopped", "rooms", r.registry.Len(), "clients", len(r.clients))
			return
		}
	}
}

// safely runs one handler, containing any panic to that handler
func (r *Relay) safely(fn func()) {
	defer func() {
		if v := recover(); v != nil {
			r.log.Error("relay.panic", "err", fmt.Sprint(v), "stack", string(debug.Stack()))
		}
	}()
	fn()
}

// post queues fn on the relay goroutine without waiting for it
func (r *Relay) post(ctx context.Context, fn func()) error {
	select {
	case <-r.done:
		return ErrStopped
	default:
	}
	select {
	case r.cmds <- fn:
		return nil
	case <-r.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// exec runs fn on the relay goroutine and waits for it to finish
func (r *Relay) exec(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if err := r.post(ctx, func() {
		defer close(finished)
		fn()
	}); err != nil {
		return err
	}
	select {
	case <-finished:
		return nil
	case <-r.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Attach registers a live connection
func (r *Relay) Attach(ctx context.Context, c Client) error {
	return r.post(ctx, func() {
		r.clients[c.ID()] = c
		metrics.ClientsConnected.Set(float64(len(r.clients)))
		r.log.Debug("relay.attach", "conn", c.ID())
	})
}

// Detach handles a closed connection: its seat is freed and the room
// may be scheduled for removal
func (r *Relay) Detach(ctx context.Context, c Client) error {
	return r.post(ctx, func() {
		r.disconnect(c)
		delete(r.clients, c.ID())
		metrics.ClientsConnected.Set(float64(len(r.clients)))
	})
}

// Dispatch decodes one inbound frame from c and routes it. Frames from a
// single connection must be dispatched from a single goroutine to keep
// their order.
func (r *Relay) Dispatch(ctx context.Context, c Client, raw []byte) error {
	ev, err := Decode(raw)
	if err != nil {
		metrics.EventsDropped.WithLabelValues("malformed").Inc()
		r.log.Warn("relay.decode", "conn", c.ID(), "err", err)
		// replies go through the relay goroutine to stay behind earlier frames
		msg := errorMessage(err.Error())
		return r.post(ctx, func() { r.send(c, msg) })
	}
	return r.post(ctx, func() { r.route(c, ev) })
}

// Snapshot returns the state of one room
func (r *Relay) Snapshot(ctx context.Context, id string) (Snapshot, error) {
	var (
		s     Snapshot
		found bool
	)
	err := r.exec(ctx, func() {
		if rm, ok := r.registry.Get(id); ok {
			s, found = rm.snapshot(), true
		}
	})
	if err != nil {
		return Snapshot{}, err
	}
	if !found {
		return Snapshot{}, ErrSessionNotFound
	}
	return s, nil
}

// Sessions lists every live room
func (r *Relay) Sessions(ctx context.Context) ([]Snapshot, error) {
	out := []Snapshot{}
	err := r.exec(ctx, func() {
		r.registry.Each(func(rm *Room) { out = append(out, rm.snapshot()) })
	})
	return out, err
}

func (r *Relay) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := r.exec(ctx, func() {
		s = Stats{Rooms: r.registry.Len(), Clients: len(r.clients), Joined: r.tracker.Len()}
	})
	return s, err
}

// Register pre-creates a room with the identifiers of who is expected in
// it. An empty id gets a generated one.
func (r *Relay) Register(ctx context.Context, reg Registration) (Snapshot, error) {
	if reg.ID == "" {
		reg.ID = uuid.NewString()
	}
	var (
		s      Snapshot
		exists bool
	)
	err := r.exec(ctx, func() {
		if _, ok := r.registry.Get(reg.ID); ok {
			exists = true
			return
		}
		rm := r.createRoom(reg.ID)
		rm.ExpectedTeacherID = reg.TeacherID
		rm.ExpectedStudentID = reg.StudentID
		if reg.TeacherID != "" {
			r.emit(LifecycleEvent{Kind: LifecycleParticipant, SessionID: rm.ID, Role: RoleTeacher, UserID: reg.TeacherID})
		}
		if reg.StudentID != "" {
			r.emit(LifecycleEvent{Kind: LifecycleParticipant, SessionID: rm.ID, Role: RoleStudent, UserID: reg.StudentID})
		}
		s = rm.snapshot()
		r.log.Info("relay.registered", "session", reg.ID, "teacher", reg.TeacherID, "student", reg.StudentID)
	})
	if err != nil {
		return Snapshot{}, err
	}
	if exists {
		return Snapshot{}, ErrSessionExists
	}
	return s, nil
}

// ForceRemove drops a room immediately, cancelling any pending timer
func (r *Relay) ForceRemove(ctx context.Context, id string) error {
	found := false
	err := r.exec(ctx, func() {
		rm, ok := r.registry.Get(id)
		if !ok {
			return
		}
		found = true
		r.removeRoom(rm, "forced")
	})
	if err != nil {
		return err
	}
	if !found {
		return ErrSessionNotFound
	}
	return nil
}

// createRoom stores a fresh room and starts resolving its class metadata
func (r *Relay) createRoom(id string) *Room {
	rm, created := r.registry.GetOrCreate(id)
	if !created {
		return rm
	}
	metrics.RoomsActive.Set(float64(r.registry.Len()))
	r.log.Info("relay.room.created", "session", id)
	r.emit(LifecycleEvent{Kind: LifecycleCreated, SessionID: id})
	r.resolveClass(rm)
	return rm
}

// removeRoom deletes rm and releases every connection still bound to it
func (r *Relay) removeRoom(rm *Room, reason string) {
	r.reaper.Cancel(rm.ID, "")
	for _, connID := range r.tracker.BoundTo(rm.ID) {
		r.tracker.Unbind(connID)
		if c, ok := r.clients[connID]; ok {
			r.send(c, Message{Type: KindSessionClosed, SessionID: rm.ID, Data: map[string]string{"reason": reason}})
		}
	}
	r.registry.Remove(rm.ID)
	metrics.RoomsActive.Set(float64(r.registry.Len()))
	metrics.RoomsRemoved.WithLabelValues(reason).Inc()
	r.log.Info("relay.room.removed", "session", rm.ID, "reason", reason, "chat", len(rm.Chat))
	r.emit(LifecycleEvent{Kind: LifecycleRemoved, SessionID: rm.ID, Reason: reason})
}

// resolveClass fetches class metadata off the relay goroutine and applies
// it on return, provided the very same room is still registered
func (r *Relay) resolveClass(rm *Room) {
	if r.opts.Classes == nil {
		p := classes.Placeholder(rm.ID)
		rm.Class = &p
		return
	}

	id := rm.ID
	base := r.ctx
	go func() {
		ctx, cancel := context.WithTimeout(base, r.opts.ClassesTimeout)
		defer cancel()

		info, err := r.opts.Classes.Fetch(ctx, id)
		switch {
		case err == nil:
			metrics.MetadataFetches.WithLabelValues("ok").Inc()
		case errors.Is(err, classes.ErrNotFound):
			metrics.MetadataFetches.WithLabelValues("not_found").Inc()
			r.log.Warn("relay.class.not_found", "session", id)
			info = classes.Placeholder(id)
		default:
			metrics.MetadataFetches.WithLabelValues("error").Inc()
			r.log.Warn("relay.class.fetch", "session", id, "err", err)
			info = classes.Placeholder(id)
		}

		_ = r.post(context.Background(), func() {
			cur, ok := r.registry.Get(id)
			if !ok || cur != rm {
				r.log.Debug("relay.class.stale", "session", id)
				return
			}
			cur.Class = &info
			r.broadcast(cur, "", Message{Type: KindClassInfo, SessionID: id, Data: info})
		})
	}()
}

// reap runs on the relay goroutine when a removal timer fires
func (r *Relay) reap(id string, reason Reason, seq uint64) {
	if !r.reaper.take(id, seq) {
		return
	}
	rm, ok := r.registry.Get(id)
	if !ok {
		return
	}
	if reason == ReasonVacated && !rm.Empty() {
		r.log.Debug("reaper.skip", "session", id, "reason", reason)
		return
	}
	r.removeRoom(rm, string(reason))
}

func (r *Relay) send(c Client, m Message) {
	if !c.Send(m) {
		metrics.EventsDropped.WithLabelValues("send_buffer_full").Inc()
		r.log.Warn("relay.send.dropped", "conn", c.ID(), "type", m.Type)
	}
}

// broadcast delivers m to every seated member except the connection
// with id except (empty means nobody is skipped)
func (r *Relay) broadcast(rm *Room, except string, m Message) {
	for _, p := range rm.members() {
		if p.Client == nil || p.Client.ID() == except {
			continue
		}
		r.send(p.Client, m)
	}
}
