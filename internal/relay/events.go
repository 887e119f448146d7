package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

type Kind string

// Inbound event kinds. Several are echoed back outbound under the same name.
const (
	KindJoin         Kind = "join-class"
	KindChat         Kind = "chat-message"
	KindDraw         Kind = "whiteboard-draw"
	KindClearCanvas  Kind = "clear-canvas"
	KindStartClass   Kind = "start-class"
	KindRestartClass Kind = "restart-class"
	KindLeaveClass   Kind = "leave-class"
	KindEndClass     Kind = "end-class"
	KindOffer        Kind = "offer"
	KindAnswer       Kind = "answer"
	KindICECandidate Kind = "ice-candidate"
	KindSaveFeedback Kind = "save-feedback"
	KindGetHistory   Kind = "get-session-history"
)

// Outbound-only kinds
const (
	KindSessionJoined    Kind = "session-joined"
	KindUserJoined       Kind = "user-joined"
	KindUserLeft         Kind = "user-left"
	KindUserDisconnected Kind = "user-disconnected"
	KindClassStarted     Kind = "class-started"
	KindClassRestarted   Kind = "class-restarted"
	KindClassEnded       Kind = "class-ended"
	KindClassInfo        Kind = "class-info"
	KindSessionHistory   Kind = "session-history"
	KindSessionClosed    Kind = "session-closed"
	KindError            Kind = "error"
)

var (
	ErrMalformed   = errors.New("malformed event")
	ErrUnknownKind = errors.New("unknown event kind")
)

// Event is one decoded inbound frame
type Event interface {
	Kind() Kind
}

type Join struct {
	SessionID string `json:"sessionId"`
	ClassID   string `json:"classId"`
	UserID    string `json:"userId"`
	UserRole  string `json:"userRole"`
	UserName  string `json:"userName"`
	Role      Role   `json:"-"`
}

type Chat struct {
	Sender  string `json:"sender"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

type Draw struct {
	X1    float64 `json:"x1"`
	Y1    float64 `json:"y1"`
	X2    float64 `json:"x2"`
	Y2    float64 `json:"y2"`
	Color string  `json:"color"`
	Width float64 `json:"width"`
}

// Signal carries an offer, answer or ICE candidate. Payload is relayed as is.
type Signal struct {
	kind    Kind
	Payload json.RawMessage
}

type SaveFeedback struct {
	Data json.RawMessage
}

type (
	ClearCanvas  struct{}
	StartClass   struct{}
	RestartClass struct{}
	LeaveClass   struct{}
	EndClass     struct{}
	GetHistory   struct{}
)

func (Join) Kind() Kind         { return KindJoin }
func (Chat) Kind() Kind         { return KindChat }
func (Draw) Kind() Kind         { return KindDraw }
func (s Signal) Kind() Kind     { return s.kind }
func (SaveFeedback) Kind() Kind { return KindSaveFeedback }
func (ClearCanvas) Kind() Kind  { return KindClearCanvas }
func (StartClass) Kind() Kind   { return KindStartClass }
func (RestartClass) Kind() Kind { return KindRestartClass }
func (LeaveClass) Kind() Kind   { return KindLeaveClass }
func (EndClass) Kind() Kind     { return KindEndClass }
func (GetHistory) Kind() Kind   { return KindGetHistory }

type frame struct {
	Type Kind            `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Decode parses a raw {"type", "data"} frame into its concrete event
func Decode(b []byte) (Event, error) {
	var f frame
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch f.Type {
	case KindJoin:
		var j Join
		if err := decodeData(f.Data, &j); err != nil {
			return nil, err
		}
		if j.SessionID == "" {
			j.SessionID = j.ClassID
		}
		j.SessionID = strings.TrimSpace(j.SessionID)
		if j.SessionID == "" {
			return nil, fmt.Errorf("%w: sessionId required", ErrMalformed)
		}
		role, ok := ParseRole(strings.ToLower(strings.TrimSpace(j.UserRole)))
		if !ok {
			return nil, fmt.Errorf("%w: userRole must be teacher or student", ErrMalformed)
		}
		j.Role = role
		return j, nil

	case KindChat:
		var c Chat
		if err := decodeData(f.Data, &c); err != nil {
			return nil, err
		}
		if strings.TrimSpace(c.Message) == "" {
			return nil, fmt.Errorf("%w: empty message", ErrMalformed)
		}
		return c, nil

	case KindDraw:
		var d Draw
		if err := decodeData(f.Data, &d); err != nil {
			return nil, err
		}
		return d, nil

	case KindOffer, KindAnswer, KindICECandidate:
		if len(f.Data) == 0 || string(f.Data) == "null" {
			return nil, fmt.Errorf("%w: %s without payload", ErrMalformed, f.Type)
		}
		return Signal{kind: f.Type, Payload: f.Data}, nil

	case KindSaveFeedback:
		if len(f.Data) == 0 || string(f.Data) == "null" {
			return nil, fmt.Errorf("%w: empty feedback", ErrMalformed)
		}
		return SaveFeedback{Data: f.Data}, nil

	case KindClearCanvas:
		return ClearCanvas{}, nil
	case KindStartClass:
		return StartClass{}, nil
	case KindRestartClass:
		return RestartClass{}, nil
	case KindLeaveClass:
		return LeaveClass{}, nil
	case KindEndClass:
		return EndClass{}, nil
	case KindGetHistory:
		return GetHistory{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, f.Type)
}

func decodeData(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: missing data", ErrMalformed)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

// Message is one outbound frame
type Message struct {
	Type      Kind   `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	From      Role   `json:"from,omitempty"`
	Data      any    `json:"data,omitempty"`
}

// Client is a connection the relay can deliver to. Send must not block;
// it reports false when the message was dropped.
type Client interface {
	ID() string
	Send(Message) bool
}

type presencePayload struct {
	Role     Role   `json:"role"`
	UserID   string `json:"userId,omitempty"`
	UserName string `json:"userName,omitempty"`
}

type classStatePayload struct {
	IsActive  bool       `json:"isActive"`
	StartTime *time.Time `json:"startTime"`
	EndTime   *time.Time `json:"endTime,omitempty"`
}

type historyPayload struct {
	Chat       []ChatEntry `json:"chatHistory"`
	Whiteboard []DrawEntry `json:"whiteboardHistory"`
}

type errorPayload struct {
	Message string `json:"message"`
}

func errorMessage(msg string) Message {
	return Message{Type: KindError, Data: errorPayload{Message: msg}}
}
