package relay

import (
	"time"

	"github.com/pion/webrtc/v4"

	"classroom-relay/internal/classes"
	"classroom-relay/pkg/metrics"
)

// route applies one event from c. It runs on the relay goroutine.
func (r *Relay) route(c Client, ev Event) {
	if j, ok := ev.(Join); ok {
		metrics.EventsRouted.WithLabelValues(string(KindJoin)).Inc()
		r.join(c, j)
		return
	}

	// everything but join needs a room; unbound senders are ignored
	b, ok := r.tracker.Binding(c.ID())
	if !ok {
		metrics.EventsDropped.WithLabelValues("unbound").Inc()
		r.log.Debug("relay.drop.unbound", "conn", c.ID(), "kind", ev.Kind())
		return
	}
	rm, ok := r.registry.Get(b.SessionID)
	if !ok {
		metrics.EventsDropped.WithLabelValues("no_room").Inc()
		r.log.Debug("relay.drop.no_room", "conn", c.ID(), "session", b.SessionID, "kind", ev.Kind())
		return
	}
	if seated(rm, c) == nil {
		// evicted from its seat by a later join for the same role
		metrics.EventsDropped.WithLabelValues("evicted").Inc()
		r.log.Debug("relay.drop.evicted", "conn", c.ID(), "session", rm.ID, "kind", ev.Kind())
		return
	}
	metrics.EventsRouted.WithLabelValues(string(ev.Kind())).Inc()

	switch e := ev.(type) {
	case Chat:
		r.chat(c, b, rm, e)
	case Draw:
		rm.Whiteboard = append(rm.Whiteboard, DrawEntry{Draw: e, ReceivedAt: r.now()})
		r.broadcast(rm, c.ID(), Message{Type: KindDraw, SessionID: rm.ID, From: b.Role, Data: e})
	case ClearCanvas:
		rm.Whiteboard = nil
		r.broadcast(rm, c.ID(), Message{Type: KindClearCanvas, SessionID: rm.ID, From: b.Role})
	case StartClass:
		r.startClass(b, rm)
	case RestartClass:
		r.broadcast(rm, "", Message{Type: KindClassRestarted, SessionID: rm.ID, From: b.Role})
	case LeaveClass:
		// the binding stays until the connection closes
		r.broadcast(rm, c.ID(), Message{Type: KindUserLeft, SessionID: rm.ID, From: b.Role, Data: r.presence(rm, c, b.Role)})
	case EndClass:
		r.endClass(b, rm)
	case Signal:
		r.log.Debug("relay.signal", append([]any{"session", rm.ID, "from", b.Role}, signalAttrs(e)...)...)
		r.broadcast(rm, c.ID(), Message{Type: e.Kind(), SessionID: rm.ID, From: b.Role, Data: e.Payload})
	case SaveFeedback:
		fb := &Feedback{From: b.Role, Data: e.Data, ReceivedAt: r.now()}
		if p := seated(rm, c); p != nil {
			fb.UserID = p.UserID
		}
		rm.Feedback = fb
		r.log.Info("relay.feedback.saved", "session", rm.ID, "from", b.Role)
		r.emit(LifecycleEvent{Kind: LifecycleFeedback, SessionID: rm.ID, Feedback: e.Data})
	case GetHistory:
		r.send(c, Message{Type: KindSessionHistory, SessionID: rm.ID, Data: historyPayload{
			Chat:       append([]ChatEntry{}, rm.Chat...),
			Whiteboard: append([]DrawEntry{}, rm.Whiteboard...),
		}})
	default:
		r.log.Warn("relay.unhandled", "conn", c.ID(), "kind", ev.Kind())
	}
}

type joinedPayload struct {
	SessionID  string             `json:"sessionId"`
	Role       Role               `json:"role"`
	Teacher    *Participant       `json:"teacher"`
	Student    *Participant       `json:"student"`
	IsActive   bool               `json:"isActive"`
	StartTime  *time.Time         `json:"startTime"`
	Class      *classes.Info      `json:"class,omitempty"`
	ICEServers []webrtc.ICEServer `json:"iceServers,omitempty"`
}

func (r *Relay) join(c Client, j Join) {
	if prev, ok := r.tracker.Binding(c.ID()); ok && (prev.SessionID != j.SessionID || prev.Role != j.Role) {
		// moving rooms or seats frees the old one first
		if old, ok := r.registry.Get(prev.SessionID); ok {
			r.release(old, c, KindUserLeft)
		}
	}

	rm := r.createRoom(j.SessionID)
	r.reaper.Cancel(rm.ID, ReasonVacated)

	slot := rm.slot(j.Role)
	if cur := *slot; cur != nil && cur.Client != nil && cur.Client.ID() != c.ID() {
		// last writer wins; the previous holder keeps its binding but
		// no longer receives room traffic
		r.log.Warn("relay.join.evicted", "session", rm.ID, "role", j.Role, "evicted", cur.Client.ID(), "by", c.ID())
	}
	*slot = &Participant{Client: c, UserID: j.UserID, UserName: j.UserName, Role: j.Role}
	r.tracker.Bind(c.ID(), rm.ID, j.Role)

	r.log.Info("relay.join", "session", rm.ID, "conn", c.ID(), "role", j.Role, "user", j.UserID)
	if j.UserID != "" {
		r.emit(LifecycleEvent{Kind: LifecycleParticipant, SessionID: rm.ID, Role: j.Role, UserID: j.UserID})
	}

	r.send(c, Message{Type: KindSessionJoined, SessionID: rm.ID, Data: joinedPayload{
		SessionID:  rm.ID,
		Role:       j.Role,
		Teacher:    detach(rm.Teacher),
		Student:    detach(rm.Student),
		IsActive:   rm.Active,
		StartTime:  copyTime(rm.StartTime),
		Class:      rm.Class,
		ICEServers: r.opts.ICEServers,
	}})
	r.broadcast(rm, c.ID(), Message{Type: KindUserJoined, SessionID: rm.ID, From: j.Role, Data: presencePayload{
		Role:     j.Role,
		UserID:   j.UserID,
		UserName: j.UserName,
	}})
}

func (r *Relay) chat(c Client, b Binding, rm *Room, e Chat) {
	entry := ChatEntry{
		Sender:    e.Sender,
		Message:   e.Message,
		Kind:      e.Type,
		Role:      b.Role,
		Timestamp: r.now(),
	}
	if p := seated(rm, c); p != nil {
		entry.UserID = p.UserID
		if entry.Sender == "" {
			entry.Sender = p.UserName
		}
	}
	if entry.Kind == "" {
		entry.Kind = "text"
	}
	rm.Chat = append(rm.Chat, entry)
	r.broadcast(rm, "", Message{Type: KindChat, SessionID: rm.ID, From: b.Role, Data: entry})
}

func (r *Relay) startClass(b Binding, rm *Room) {
	rm.Active = true
	if rm.StartTime == nil {
		t := r.now()
		rm.StartTime = &t
	}
	r.log.Info("relay.class.started", "session", rm.ID, "by", b.Role)
	r.broadcast(rm, "", Message{Type: KindClassStarted, SessionID: rm.ID, From: b.Role, Data: classStatePayload{
		IsActive:  true,
		StartTime: copyTime(rm.StartTime),
	}})
	r.emit(LifecycleEvent{Kind: LifecycleStarted, SessionID: rm.ID, StartTime: copyTime(rm.StartTime)})
}

func (r *Relay) endClass(b Binding, rm *Room) {
	rm.Active = false
	end := r.now()
	r.log.Info("relay.class.ended", "session", rm.ID, "by", b.Role)
	r.broadcast(rm, "", Message{Type: KindClassEnded, SessionID: rm.ID, From: b.Role, Data: classStatePayload{
		IsActive:  false,
		StartTime: copyTime(rm.StartTime),
		EndTime:   &end,
	}})
	r.emit(LifecycleEvent{Kind: LifecycleEnded, SessionID: rm.ID, At: end, StartTime: copyTime(rm.StartTime)})
	r.reaper.Schedule(rm.ID, r.opts.EndGrace, ReasonEnded)
}

// disconnect handles a connection that went away
func (r *Relay) disconnect(c Client) {
	b, ok := r.tracker.Binding(c.ID())
	if !ok {
		return
	}
	r.tracker.Unbind(c.ID())
	rm, ok := r.registry.Get(b.SessionID)
	if !ok {
		return
	}
	r.log.Info("relay.disconnect", "session", rm.ID, "conn", c.ID(), "role", b.Role)
	r.release(rm, c, KindUserDisconnected)
}

// release frees c's seat in rm, tells the others, and arms the vacancy
// timer once nobody is left
func (r *Relay) release(rm *Room, c Client, notice Kind) {
	p, ok := rm.vacate(c)
	if !ok {
		return
	}
	r.broadcast(rm, c.ID(), Message{Type: notice, SessionID: rm.ID, From: p.Role, Data: presencePayload{
		Role:     p.Role,
		UserID:   p.UserID,
		UserName: p.UserName,
	}})
	if rm.Empty() {
		r.log.Debug("reaper.armed", "session", rm.ID, "delay", r.opts.VacancyGrace)
		r.reaper.Schedule(rm.ID, r.opts.VacancyGrace, ReasonVacated)
	}
}

func (r *Relay) presence(rm *Room, c Client, role Role) presencePayload {
	out := presencePayload{Role: role}
	if p := seated(rm, c); p != nil {
		out.UserID, out.UserName = p.UserID, p.UserName
	}
	return out
}

// seated returns c's participant record if c currently holds a seat
func seated(rm *Room, c Client) *Participant {
	for _, p := range rm.members() {
		if p.Client != nil && p.Client.ID() == c.ID() {
			return p
		}
	}
	return nil
}
