// Package services holds the presence, broadcast, webhook, export and sweep
// business logic. This file centralizes service-level error values and maps
// any error to the failure taxonomy the HTTP layer and workers act on.
//
// Translation into HTTP status codes or response envelopes happens in the
// handler layer; services only return values.
package services

import (
	"context"
	"errors"
	"net"

	"github.com/tbourn/go-live-presence/internal/domain"
	"github.com/tbourn/go-live-presence/internal/media"
	"github.com/tbourn/go-live-presence/internal/repo"
)

var (
	// ErrMissingIdentity is returned when a room or registrant id is empty.
	ErrMissingIdentity = errors.New("room and registrant ids are required")

	// ErrRoomNotFound indicates that the referenced room does not exist.
	ErrRoomNotFound = errors.New("room not found")

	// ErrEventNotFound indicates that the referenced event does not exist.
	ErrEventNotFound = errors.New("event not found")

	// ErrSessionMissing is returned when an event's room has no provider session.
	ErrSessionMissing = errors.New("room has no media session")

	// ErrIngestURIMissing is returned when the broadcasting room has no live
	// channel ingest URI to mirror to.
	ErrIngestURIMissing = errors.New("live channel ingest uri missing")

	// ErrAmbiguousSchedule is returned by ReconcileEvent when more than one
	// broadcastable event is ongoing for a session. Nothing is started or
	// stopped in that case; the webhook path only logs it.
	ErrAmbiguousSchedule = errors.New("more than one ongoing broadcast event for session")

	// ErrInvalidJob is returned for an export job missing its recording key
	// or title.
	ErrInvalidJob = errors.New("recording key and title are required")
)

// ErrorKind is the failure class of an error.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	// KindValidation: malformed input; never retried.
	KindValidation
	// KindTransient: network, 5xx or 429 from an external API.
	KindTransient
	// KindInvariant: the world is in a state that must not be guessed at.
	KindInvariant
	// KindNotFound: a referenced room, event, session or channel is missing.
	KindNotFound
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindTransient:
		return "transient"
	case KindInvariant:
		return "invariant"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// transient is implemented by external API errors that know whether a retry
// could help.
type transient interface {
	Transient() bool
}

// Classify maps err onto the failure taxonomy. nil classifies as internal;
// callers check err != nil first.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, domain.ErrMalformedEvent),
		errors.Is(err, domain.ErrInvalidIngestURI),
		errors.Is(err, ErrMissingIdentity),
		errors.Is(err, ErrInvalidJob),
		errors.Is(err, media.ErrInvalidRole):
		return KindValidation
	case errors.Is(err, ErrAmbiguousSchedule):
		return KindInvariant
	case errors.Is(err, ErrRoomNotFound),
		errors.Is(err, ErrEventNotFound),
		errors.Is(err, ErrSessionMissing),
		errors.Is(err, ErrIngestURIMissing),
		errors.Is(err, repo.ErrNotFound):
		return KindNotFound
	}

	var t transient
	if errors.As(err, &t) {
		if t.Transient() {
			return KindTransient
		}
		return KindInternal
	}
	var ne net.Error
	if errors.As(err, &ne) || errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	return KindInternal
}
