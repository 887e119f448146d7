package relay

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"
)

var refTime = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

type fakeClient struct {
	id   string
	mu   sync.Mutex
	msgs []Message
}

func newClient(id string) *fakeClient { return &fakeClient{id: id} }

func (f *fakeClient) ID() string { return f.id }

func (f *fakeClient) Send(m Message) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, m)
	return true
}

func (f *fakeClient) received(kind Kind) []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Message
	for _, m := range f.msgs {
		if m.Type == kind {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeClient) all() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Message{}, f.msgs...)
}

type fakeTimer struct {
	delay   time.Duration
	fn      func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

// fakeTimers records armed timers so tests decide when they fire
type fakeTimers struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (ft *fakeTimers) AfterFunc(d time.Duration, f func()) Timer {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	t := &fakeTimer{delay: d, fn: f}
	ft.timers = append(ft.timers, t)
	return t
}

func (ft *fakeTimers) get(i int) *fakeTimer {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return ft.timers[i]
}

func (ft *fakeTimers) count() int {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return len(ft.timers)
}

// fireArmed fires every timer that has not been stopped
func (ft *fakeTimers) fireArmed() {
	ft.mu.Lock()
	var fns []func()
	for _, t := range ft.timers {
		if !t.stopped {
			t.stopped = true
			fns = append(fns, t.fn)
		}
	}
	ft.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

type recordingSink struct {
	mu     sync.Mutex
	events []LifecycleEvent
}

func (s *recordingSink) Record(ev LifecycleEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) kinds() []LifecycleKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []LifecycleKind
	for _, ev := range s.events {
		out = append(out, ev.Kind)
	}
	return out
}

func startRelay(t *testing.T, opts Options) (*Relay, *fakeTimers) {
	t.Helper()
	timers := &fakeTimers{}
	opts.AfterFunc = timers.AfterFunc
	if opts.Now == nil {
		opts.Now = func() time.Time { return refTime }
	}
	if opts.EndGrace == 0 {
		opts.EndGrace = 5 * time.Second
	}
	if opts.VacancyGrace == 0 {
		opts.VacancyGrace = 30 * time.Second
	}
	r := New(opts)
	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx)
	t.Cleanup(cancel)
	return r, timers
}

func dispatch(t *testing.T, r *Relay, c Client, kind Kind, data any) {
	t.Helper()
	f := map[string]any{"type": kind}
	if data != nil {
		f["data"] = data
	}
	raw, err := json.Marshal(f)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Dispatch(context.Background(), c, raw); err != nil {
		t.Fatalf("dispatch %s: %v", kind, err)
	}
}

func attach(t *testing.T, r *Relay, c Client) {
	t.Helper()
	if err := r.Attach(context.Background(), c); err != nil {
		t.Fatal(err)
	}
}

func join(t *testing.T, r *Relay, c Client, session string, role Role, name string) {
	t.Helper()
	attach(t, r, c)
	dispatch(t, r, c, KindJoin, map[string]string{
		"sessionId": session,
		"userId":    name + "-id",
		"userRole":  string(role),
		"userName":  name,
	})
}

// flush waits until everything queued so far has been processed
func flush(t *testing.T, r *Relay) {
	t.Helper()
	if _, err := r.Stats(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func present(t *testing.T, r *Relay, id string) bool {
	t.Helper()
	_, err := r.Snapshot(context.Background(), id)
	return err == nil
}
