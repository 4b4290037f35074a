package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedEvent is returned by ParseSessionEvent for payloads that cannot
// be turned into a SessionEvent. Callers treat it as a permanent client error.
var ErrMalformedEvent = errors.New("malformed session event")

// Session monitoring event names as sent by the provider.
const (
	EventConnectionCreated   = "connectionCreated"
	EventConnectionDestroyed = "connectionDestroyed"
	EventStreamCreated       = "streamCreated"
	EventStreamDestroyed     = "streamDestroyed"
)

// EventEnvelope carries the fields common to every session monitoring event.
type EventEnvelope struct {
	SessionID string `json:"sessionId"`
	ProjectID string `json:"projectId"`
	Event     string `json:"event"`
	Timestamp int64  `json:"timestamp"`
}

// Connection is a single transport connection as reported by the provider.
// Data is the opaque string embedded in the client token.
type Connection struct {
	ID        string `json:"id"`
	CreatedAt int64  `json:"createdAt"`
	Data      string `json:"data"`
}

// Stream is a published media stream.
type Stream struct {
	ID         string     `json:"id"`
	Connection Connection `json:"connection"`
	CreatedAt  int64      `json:"createdAt"`
	Name       string     `json:"name"`
	VideoType  string     `json:"videoType,omitempty"`
}

// ConnectionData is the payload embedded in client tokens; it links a
// provider connection back to a registrant and a room.
type ConnectionData struct {
	RegistrantID string `json:"registrantId"`
	RoomID       string `json:"roomId"`
}

// ParseConnectionData decodes the token data of a connection.
func ParseConnectionData(raw string) (ConnectionData, error) {
	var d ConnectionData
	if strings.TrimSpace(raw) == "" {
		return d, fmt.Errorf("%w: empty connection data", ErrMalformedEvent)
	}
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return d, fmt.Errorf("%w: connection data: %v", ErrMalformedEvent, err)
	}
	if d.RegistrantID == "" || d.RoomID == "" {
		return d, fmt.Errorf("%w: connection data missing registrantId or roomId", ErrMalformedEvent)
	}
	return d, nil
}

// SessionEventVisitor handles every kind of session event. Adding a new event
// kind means adding a method here, so every dispatcher stops compiling until
// it handles the new kind.
type SessionEventVisitor interface {
	VisitConnectionCreated(e ConnectionCreated) error
	VisitConnectionDestroyed(e ConnectionDestroyed) error
	VisitStreamCreated(e StreamCreated) error
	VisitStreamDestroyed(e StreamDestroyed) error
}

// SessionEvent is the closed set of session monitoring events. The unexported
// method keeps implementations inside this package.
type SessionEvent interface {
	Envelope() EventEnvelope
	Accept(v SessionEventVisitor) error
	sessionEvent()
}

// ConnectionCreated reports a new client connection.
type ConnectionCreated struct {
	EventEnvelope
	Connection Connection
}

// ConnectionDestroyed reports a closed client connection.
type ConnectionDestroyed struct {
	EventEnvelope
	Connection Connection
}

// StreamCreated reports a newly published stream.
type StreamCreated struct {
	EventEnvelope
	Stream Stream
}

// StreamDestroyed reports an unpublished stream.
type StreamDestroyed struct {
	EventEnvelope
	Stream Stream
}

func (e ConnectionCreated) Envelope() EventEnvelope   { return e.EventEnvelope }
func (e ConnectionDestroyed) Envelope() EventEnvelope { return e.EventEnvelope }
func (e StreamCreated) Envelope() EventEnvelope       { return e.EventEnvelope }
func (e StreamDestroyed) Envelope() EventEnvelope     { return e.EventEnvelope }

func (e ConnectionCreated) Accept(v SessionEventVisitor) error   { return v.VisitConnectionCreated(e) }
func (e ConnectionDestroyed) Accept(v SessionEventVisitor) error { return v.VisitConnectionDestroyed(e) }
func (e StreamCreated) Accept(v SessionEventVisitor) error       { return v.VisitStreamCreated(e) }
func (e StreamDestroyed) Accept(v SessionEventVisitor) error     { return v.VisitStreamDestroyed(e) }

func (ConnectionCreated) sessionEvent()   {}
func (ConnectionDestroyed) sessionEvent() {}
func (StreamCreated) sessionEvent()       {}
func (StreamDestroyed) sessionEvent()     {}

// rawSessionEvent mirrors the wire shape; exactly one of Connection or Stream
// is set depending on Event.
type rawSessionEvent struct {
	EventEnvelope
	Connection *Connection `json:"connection"`
	Stream     *Stream     `json:"stream"`
}

// ParseSessionEvent decodes a session monitoring webhook body. Unknown event
// names and missing required fields yield ErrMalformedEvent.
func ParseSessionEvent(body []byte) (SessionEvent, error) {
	var raw rawSessionEvent
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if raw.SessionID == "" {
		return nil, fmt.Errorf("%w: missing sessionId", ErrMalformedEvent)
	}

	switch raw.Event {
	case EventConnectionCreated, EventConnectionDestroyed:
		if raw.Connection == nil || raw.Connection.ID == "" {
			return nil, fmt.Errorf("%w: %s without connection", ErrMalformedEvent, raw.Event)
		}
		if raw.Event == EventConnectionCreated {
			return ConnectionCreated{EventEnvelope: raw.EventEnvelope, Connection: *raw.Connection}, nil
		}
		return ConnectionDestroyed{EventEnvelope: raw.EventEnvelope, Connection: *raw.Connection}, nil
	case EventStreamCreated, EventStreamDestroyed:
		if raw.Stream == nil || raw.Stream.ID == "" {
			return nil, fmt.Errorf("%w: %s without stream", ErrMalformedEvent, raw.Event)
		}
		if raw.Event == EventStreamCreated {
			return StreamCreated{EventEnvelope: raw.EventEnvelope, Stream: *raw.Stream}, nil
		}
		return StreamDestroyed{EventEnvelope: raw.EventEnvelope, Stream: *raw.Stream}, nil
	default:
		return nil, fmt.Errorf("%w: unknown event %q", ErrMalformedEvent, raw.Event)
	}
}
