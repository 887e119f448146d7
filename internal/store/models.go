package store

import (
	"encoding/json"
	"time"
)

// Session record statuses
const (
	StatusCreated = "created"
	StatusActive  = "active"
	StatusEnded   = "ended"
)

// SessionRecord is the durable trace of one class room. Chat and
// whiteboard content is never stored.
type SessionRecord struct {
	ID            string          `json:"id"`
	Status        string          `json:"status"`
	TeacherID     string          `json:"teacherId,omitempty"`
	StudentID     string          `json:"studentId,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	StartedAt     *time.Time      `json:"startedAt,omitempty"`
	EndedAt       *time.Time      `json:"endedAt,omitempty"`
	RemovedAt     *time.Time      `json:"removedAt,omitempty"`
	RemovedReason string          `json:"removedReason,omitempty"`
	Feedback      json.RawMessage `json:"feedback,omitempty"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}
