package relay

import (
	"testing"
	"time"
)

type fired struct {
	id     string
	reason Reason
	seq    uint64
}

func newTestReaper() (*Reaper, *fakeTimers, *[]fired) {
	timers := &fakeTimers{}
	var calls []fired
	p := NewReaper(timers.AfterFunc, func(id string, reason Reason, seq uint64) {
		calls = append(calls, fired{id, reason, seq})
	})
	return p, timers, &calls
}

func TestReaperReplacesPendingTimer(t *testing.T) {
	p, timers, calls := newTestReaper()

	p.Schedule("s1", time.Minute, ReasonVacated)
	p.Schedule("s1", time.Minute, ReasonVacated)
	if !timers.get(0).stopped {
		t.Fatal("first timer should be stopped when replaced")
	}

	timers.fireArmed()
	if len(*calls) != 1 {
		t.Fatalf("want exactly one firing got %d", len(*calls))
	}
	c := (*calls)[0]
	if !p.take(c.id, c.seq) {
		t.Fatal("live timer should be claimable")
	}
	if p.take(c.id, c.seq) {
		t.Fatal("a timer is claimed once")
	}
}

func TestReaperStaleFiringRejected(t *testing.T) {
	p, timers, calls := newTestReaper()

	p.Schedule("s1", time.Minute, ReasonVacated)
	p.Schedule("s1", time.Minute, ReasonVacated)
	timers.get(0).fn() // raced past Stop

	if p.take((*calls)[0].id, (*calls)[0].seq) {
		t.Fatal("replaced timer must not be claimable")
	}
	if _, ok := p.Pending("s1"); !ok {
		t.Fatal("the newer timer is still pending")
	}
}

func TestReaperEndedNotReplacedByVacated(t *testing.T) {
	p, timers, _ := newTestReaper()

	p.Schedule("s1", time.Second, ReasonEnded)
	p.Schedule("s1", time.Minute, ReasonVacated)
	if timers.count() != 1 {
		t.Fatalf("want 1 timer got %d", timers.count())
	}
	if r, _ := p.Pending("s1"); r != ReasonEnded {
		t.Fatalf("want ended got %s", r)
	}

	// ended replaces vacated though
	p.Schedule("s2", time.Minute, ReasonVacated)
	p.Schedule("s2", time.Second, ReasonEnded)
	if r, _ := p.Pending("s2"); r != ReasonEnded {
		t.Fatalf("want ended got %s", r)
	}
}

func TestReaperCancelByReason(t *testing.T) {
	p, _, _ := newTestReaper()

	p.Schedule("s1", time.Second, ReasonEnded)
	if p.Cancel("s1", ReasonVacated) {
		t.Fatal("vacated cancel must leave an ended timer alone")
	}
	if !p.Cancel("s1", "") {
		t.Fatal("empty reason cancels anything")
	}
	if p.Cancel("s1", "") {
		t.Fatal("nothing left to cancel")
	}
}

func TestReaperStopAll(t *testing.T) {
	p, timers, _ := newTestReaper()
	p.Schedule("a", time.Second, ReasonEnded)
	p.Schedule("b", time.Second, ReasonVacated)
	p.StopAll()

	for i := 0; i < timers.count(); i++ {
		if !timers.get(i).stopped {
			t.Errorf("timer %d still armed", i)
		}
	}
	if _, ok := p.Pending("a"); ok {
		t.Error("nothing should be pending")
	}
}
