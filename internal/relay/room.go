package relay

import (
	"encoding/json"
	"time"

	"classroom-relay/internal/classes"
)

type Role string

const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// ParseRole accepts the two seat names a class has
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleTeacher, RoleStudent:
		return Role(s), true
	}
	return "", false
}

// Participant is the connection occupying a role slot.
// Fields are never mutated after the participant is seated.
type Participant struct {
	Client   Client `json:"-"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	Role     Role   `json:"role"`
}

type ChatEntry struct {
	Sender    string    `json:"sender"`
	Message   string    `json:"message"`
	Kind      string    `json:"type"`
	Role      Role      `json:"role"`
	UserID    string    `json:"userId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type DrawEntry struct {
	Draw
	ReceivedAt time.Time `json:"receivedAt"`
}

type Feedback struct {
	From       Role            `json:"from"`
	UserID     string          `json:"userId,omitempty"`
	Data       json.RawMessage `json:"data"`
	ReceivedAt time.Time       `json:"receivedAt"`
}

// Room is one live class session. It is owned by the relay goroutine and
// must not be touched from anywhere else.
type Room struct {
	ID         string
	Teacher    *Participant
	Student    *Participant
	Chat       []ChatEntry
	Whiteboard []DrawEntry
	Active     bool
	StartTime  *time.Time
	Feedback   *Feedback
	Class      *classes.Info
	CreatedAt  time.Time

	ExpectedTeacherID string
	ExpectedStudentID string
}

func newRoom(id string, now time.Time) *Room {
	return &Room{ID: id, CreatedAt: now}
}

func (r *Room) slot(role Role) **Participant {
	if role == RoleTeacher {
		return &r.Teacher
	}
	return &r.Student
}

// Empty reports whether both role slots are vacant
func (r *Room) Empty() bool { return r.Teacher == nil && r.Student == nil }

func (r *Room) members() []*Participant {
	out := make([]*Participant, 0, 2)
	if r.Teacher != nil {
		out = append(out, r.Teacher)
	}
	if r.Student != nil {
		out = append(out, r.Student)
	}
	return out
}

// vacate clears whichever slot c occupies. A connection that was evicted
// from its slot by a later join holds nothing here.
func (r *Room) vacate(c Client) (*Participant, bool) {
	for _, role := range []Role{RoleTeacher, RoleStudent} {
		s := r.slot(role)
		if *s != nil && (*s).Client != nil && (*s).Client.ID() == c.ID() {
			p := *s
			*s = nil
			return p, true
		}
	}
	return nil, false
}

// Snapshot is a copy of a room's state safe to hand outside the relay
type Snapshot struct {
	ID                string        `json:"id"`
	Teacher           *Participant  `json:"teacher"`
	Student           *Participant  `json:"student"`
	TeacherPresent    bool          `json:"teacherPresent"`
	StudentPresent    bool          `json:"studentPresent"`
	IsActive          bool          `json:"isActive"`
	StartTime         *time.Time    `json:"startTime"`
	ChatCount         int           `json:"chatCount"`
	WhiteboardCount   int           `json:"whiteboardCount"`
	HasFeedback       bool          `json:"hasFeedback"`
	Class             *classes.Info `json:"class,omitempty"`
	ExpectedTeacherID string        `json:"expectedTeacherId,omitempty"`
	ExpectedStudentID string        `json:"expectedStudentId,omitempty"`
	CreatedAt         time.Time     `json:"createdAt"`
}

func (r *Room) snapshot() Snapshot {
	s := Snapshot{
		ID:                r.ID,
		Teacher:           detach(r.Teacher),
		Student:           detach(r.Student),
		TeacherPresent:    r.Teacher != nil,
		StudentPresent:    r.Student != nil,
		IsActive:          r.Active,
		StartTime:         copyTime(r.StartTime),
		ChatCount:         len(r.Chat),
		WhiteboardCount:   len(r.Whiteboard),
		HasFeedback:       r.Feedback != nil,
		ExpectedTeacherID: r.ExpectedTeacherID,
		ExpectedStudentID: r.ExpectedStudentID,
		CreatedAt:         r.CreatedAt,
	}
	if r.Class != nil {
		c := *r.Class
		s.Class = &c
	}
	return s
}

func detach(p *Participant) *Participant {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Client = nil
	return &cp
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
