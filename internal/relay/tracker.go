package relay

import "sort"

// Binding ties a connection to the room it joined and the seat it claimed
type Binding struct {
	SessionID string
	Role      Role
}

// Tracker is the inverse of room membership: connection id -> binding.
// Like Registry it belongs to the relay goroutine.
type Tracker struct {
	bindings map[string]Binding
}

func NewTracker() *Tracker { return &Tracker{bindings: map[string]Binding{}} }

// Bind records the connection's room, replacing any earlier binding
func (t *Tracker) Bind(connID, sessionID string, role Role) {
	t.bindings[connID] = Binding{SessionID: sessionID, Role: role}
}

// Lookup returns the session a connection is bound to
func (t *Tracker) Lookup(connID string) (string, bool) {
	b, ok := t.bindings[connID]
	return b.SessionID, ok
}

func (t *Tracker) Binding(connID string) (Binding, bool) {
	b, ok := t.bindings[connID]
	return b, ok
}

func (t *Tracker) Unbind(connID string) { delete(t.bindings, connID) }

func (t *Tracker) Len() int { return len(t.bindings) }

// BoundTo lists connections bound to sessionID, sorted
func (t *Tracker) BoundTo(sessionID string) []string {
	var out []string
	for id, b := range t.bindings {
		if b.SessionID == sessionID {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
