package relay

import "time"

// Reason says why a room is scheduled for removal
type Reason string

const (
	// ReasonEnded removes the room unconditionally once the timer fires
	ReasonEnded Reason = "ended"
	// ReasonVacated removes the room only if both seats are still empty
	ReasonVacated Reason = "vacated"
)

// Timer is the part of *time.Timer the reaper needs
type Timer interface {
	Stop() bool
}

// AfterFunc arms a one-shot timer calling f after d
type AfterFunc func(d time.Duration, f func()) Timer

func stdAfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

type pendingRemoval struct {
	timer  Timer
	reason Reason
	seq    uint64
}

// Reaper tracks at most one removal timer per session. Timers call fire
// from their own goroutine; fire is expected to hop back onto the relay
// goroutine and call take before acting.
type Reaper struct {
	after   AfterFunc
	fire    func(sessionID string, reason Reason, seq uint64)
	pending map[string]pendingRemoval
	seq     uint64
}

func NewReaper(after AfterFunc, fire func(string, Reason, uint64)) *Reaper {
	if after == nil {
		after = stdAfterFunc
	}
	return &Reaper{after: after, fire: fire, pending: map[string]pendingRemoval{}}
}

// Schedule arms a removal for sessionID, replacing any pending one.
// A pending ended removal is never pushed back by a vacated one.
func (p *Reaper) Schedule(sessionID string, delay time.Duration, reason Reason) {
	if old, ok := p.pending[sessionID]; ok {
		if old.reason == ReasonEnded && reason == ReasonVacated {
			return
		}
		old.timer.Stop()
	}
	p.seq++
	seq := p.seq
	t := p.after(delay, func() { p.fire(sessionID, reason, seq) })
	p.pending[sessionID] = pendingRemoval{timer: t, reason: reason, seq: seq}
}

// Cancel stops the pending removal for sessionID if its reason matches.
// An empty reason cancels whatever is pending.
func (p *Reaper) Cancel(sessionID string, reason Reason) bool {
	old, ok := p.pending[sessionID]
	if !ok || (reason != "" && old.reason != reason) {
		return false
	}
	old.timer.Stop()
	delete(p.pending, sessionID)
	return true
}

// take claims a fired timer. It returns false for a timer that was
// cancelled or replaced after it started firing.
func (p *Reaper) take(sessionID string, seq uint64) bool {
	cur, ok := p.pending[sessionID]
	if !ok || cur.seq != seq {
		return false
	}
	delete(p.pending, sessionID)
	return true
}

// Pending reports the reason of the armed timer for sessionID
func (p *Reaper) Pending(sessionID string) (Reason, bool) {
	cur, ok := p.pending[sessionID]
	return cur.reason, ok
}

func (p *Reaper) StopAll() {
	for id, cur := range p.pending {
		cur.timer.Stop()
		delete(p.pending, id)
	}
}
