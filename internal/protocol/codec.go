package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Envelope is the wire frame for both directions: an event (or intent)
// name plus its payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Message is a decoded inbound event: the kind tag plus its typed payload.
// Payload is always a non-pointer struct from this package.
type Message struct {
	Event   Event
	Payload any
}

var (
	ErrUnknownEvent   = errors.New("unknown event")
	ErrInvalidPayload = errors.New("invalid payload")
)

var validate = validator.New()

// DecodeMessage parses a raw inbound frame into a typed Message.
// Unknown event names and payloads missing required fields are rejected;
// callers drop such frames instead of trusting their shape.
func DecodeMessage(raw []byte) (*Message, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	event := Event(env.Event)

	var payload any
	switch event {
	case EventExamStarted:
		payload = &ExamStartedPayload{}
	case EventExamWarning:
		payload = &ExamWarningPayload{}
	case EventExamEnded:
		payload = &ExamEndedPayload{}
	case EventExamStopped:
		payload = &ExamStoppedPayload{}
	case EventStudentConnected:
		payload = &StudentConnectedPayload{}
	case EventStudentOffline:
		payload = &StudentOfflinePayload{}
	case EventStudentDisconnected:
		payload = &StudentDisconnectedPayload{}
	case EventFileSubmitted:
		payload = &FileSubmittedPayload{}
	case EventPong:
		payload = &PongPayload{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}

	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, payload); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
	}
	if err := validate.Struct(payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	return &Message{Event: event, Payload: deref(payload)}, nil
}

// IntentMessage is a decoded client frame, as seen by a server.
type IntentMessage struct {
	Intent  Intent
	Payload any
}

// DecodeIntent parses a raw client frame into a typed IntentMessage.
// The simulator uses it; a production server speaks the same frames.
func DecodeIntent(raw []byte) (*IntentMessage, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	intent := Intent(env.Event)

	var payload any
	switch intent {
	case IntentJoinExam:
		payload = &JoinPayload{}
	case IntentLeaveExam:
		payload = &LeavePayload{}
	case IntentHeartbeat:
		payload = &HeartbeatPayload{}
	case IntentStartExam:
		payload = &StartExamPayload{}
	case IntentStopExam:
		payload = &StopExamPayload{}
	case IntentPing:
		payload = &PingPayload{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}

	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, payload); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
	}
	if err := validate.Struct(payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	return &IntentMessage{Intent: intent, Payload: derefIntent(payload)}, nil
}

// EncodeEvent builds the wire frame for a server-to-client event.
func EncodeEvent(event Event, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: string(event), Data: data})
}

// EncodeIntent builds the wire frame for an outbound intent.
func EncodeIntent(intent Intent, payload any) ([]byte, error) {
	if payload != nil {
		if err := validate.Struct(payload); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: string(intent), Data: data})
}

// ExamID extracts the exam identifier from any inbound payload carrying
// one. Views share a single channel, so every consumer filters by it.
func (m *Message) ExamID() (int64, bool) {
	switch p := m.Payload.(type) {
	case ExamStartedPayload:
		return p.ExamID, true
	case ExamWarningPayload:
		return p.ExamID, true
	case ExamEndedPayload:
		return p.ExamID, true
	case ExamStoppedPayload:
		return p.ExamID, true
	case StudentConnectedPayload:
		return p.ExamID, true
	case StudentOfflinePayload:
		return p.ExamID, true
	case StudentDisconnectedPayload:
		return p.ExamID, true
	case FileSubmittedPayload:
		return p.ExamID, true
	default:
		return 0, false
	}
}

func deref(payload any) any {
	switch p := payload.(type) {
	case *ExamStartedPayload:
		return *p
	case *ExamWarningPayload:
		return *p
	case *ExamEndedPayload:
		return *p
	case *ExamStoppedPayload:
		return *p
	case *StudentConnectedPayload:
		return *p
	case *StudentOfflinePayload:
		return *p
	case *StudentDisconnectedPayload:
		return *p
	case *FileSubmittedPayload:
		return *p
	case *PongPayload:
		return *p
	default:
		return payload
	}
}

func derefIntent(payload any) any {
	switch p := payload.(type) {
	case *JoinPayload:
		return *p
	case *LeavePayload:
		return *p
	case *HeartbeatPayload:
		return *p
	case *StartExamPayload:
		return *p
	case *StopExamPayload:
		return *p
	case *PingPayload:
		return *p
	default:
		return payload
	}
}
