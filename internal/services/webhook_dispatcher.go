// Package services – WebhookDispatcher
//
// WebhookDispatcher routes provider session-monitoring events to presence and
// broadcast handling. It keeps no state between deliveries; re-delivering an
// event re-applies idempotent store and provider operations.
package services

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/tbourn/go-live-presence/internal/domain"
)

// PresenceService is the presence side of webhook handling.
type PresenceService interface {
	AddParticipant(ctx context.Context, roomID, registrantID string, conn *ConnectionRef) (AddResult, error)
	RemoveParticipant(ctx context.Context, roomID, registrantID string, conn *ConnectionRef, removeOnlyConnection bool) error
	TakeLayoutReset(ctx context.Context, sessionID string) (bool, error)
}

// BroadcastService is the broadcast side of webhook handling.
type BroadcastService interface {
	ReconcileSessionBroadcast(ctx context.Context, sessionID string) (ReconcileOutcome, error)
	ResetLayout(ctx context.Context, sessionID string) (int, error)
}

// WebhookDispatcher parses and dispatches session monitoring events.
type WebhookDispatcher struct {
	Presence   PresenceService
	Broadcasts BroadcastService

	// Optional
	Log *zerolog.Logger
}

func (d *WebhookDispatcher) logger() *zerolog.Logger {
	if d.Log != nil {
		return d.Log
	}
	return &log.Logger
}

// Dispatch parses body and routes the event:
//
//	connectionCreated   -> AddParticipant
//	connectionDestroyed -> RemoveParticipant (presence removed unless superseded)
//	streamCreated       -> consume layout reset, reconcile broadcast
//	streamDestroyed     -> reconcile broadcast
//
// Malformed payloads return an error wrapping domain.ErrMalformedEvent.
func (d *WebhookDispatcher) Dispatch(ctx context.Context, body []byte) error {
	tr := otel.Tracer("services/WebhookDispatcher")
	ctx, span := tr.Start(ctx, "Dispatch")
	defer span.End()

	ev, err := domain.ParseSessionEvent(body)
	if err != nil {
		webhookEvents.WithLabelValues("unknown", KindValidation.String()).Inc()
		span.RecordError(err)
		return err
	}
	env := ev.Envelope()
	span.SetAttributes(
		attribute.String("event", env.Event),
		attribute.String("session.id", env.SessionID),
	)

	err = ev.Accept(&dispatch{ctx: ctx, d: d})
	outcome := "ok"
	if err != nil {
		outcome = Classify(err).String()
		span.RecordError(err)
	}
	webhookEvents.WithLabelValues(env.Event, outcome).Inc()
	return err
}

// archiveEvent holds the fields of an archive status callback that are
// worth logging. The rest of the payload is opaque.
type archiveEvent struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionId"`
	Status    string `json:"status"`
	Name      string `json:"name"`
	Reason    string `json:"reason"`
}

// DispatchArchive records an archive status callback. The payload is opaque;
// undecodable bodies are logged and accepted.
func (d *WebhookDispatcher) DispatchArchive(ctx context.Context, body []byte) {
	_, span := otel.Tracer("services/WebhookDispatcher").Start(ctx, "DispatchArchive")
	defer span.End()

	var a archiveEvent
	if err := json.Unmarshal(body, &a); err != nil {
		d.logger().Warn().Err(err).Int("bytes", len(body)).Msg("archive callback not decodable")
		webhookEvents.WithLabelValues("archive", KindValidation.String()).Inc()
		return
	}
	span.SetAttributes(attribute.String("archive.status", a.Status))
	d.logger().Info().
		Str("archive_id", a.ID).
		Str("session_id", a.SessionID).
		Str("status", a.Status).
		Str("reason", a.Reason).
		Msg("archive status")
	webhookEvents.WithLabelValues("archive", "ok").Inc()
}

// dispatch is the per-delivery visitor. Every event kind has a method, so a
// new kind does not compile until it is routed here.
type dispatch struct {
	ctx context.Context
	d   *WebhookDispatcher
}

var _ domain.SessionEventVisitor = (*dispatch)(nil)

func (v *dispatch) VisitConnectionCreated(e domain.ConnectionCreated) error {
	data, err := domain.ParseConnectionData(e.Connection.Data)
	if err != nil {
		return err
	}
	res, err := v.d.Presence.AddParticipant(v.ctx, data.RoomID, data.RegistrantID, &ConnectionRef{
		SessionID:    e.SessionID,
		ConnectionID: e.Connection.ID,
	})
	if err != nil {
		return err
	}
	v.d.logger().Debug().
		Str("room_id", data.RoomID).
		Str("registrant_id", data.RegistrantID).
		Str("connection_id", e.Connection.ID).
		Bool("already_present", res.AlreadyPresent).
		Msg("participant connected")
	return nil
}

func (v *dispatch) VisitConnectionDestroyed(e domain.ConnectionDestroyed) error {
	data, err := domain.ParseConnectionData(e.Connection.Data)
	if err != nil {
		return err
	}
	return v.d.Presence.RemoveParticipant(v.ctx, data.RoomID, data.RegistrantID, &ConnectionRef{
		SessionID:    e.SessionID,
		ConnectionID: e.Connection.ID,
	}, false)
}

func (v *dispatch) VisitStreamCreated(e domain.StreamCreated) error {
	reset, err := v.d.Presence.TakeLayoutReset(v.ctx, e.SessionID)
	if err != nil {
		return err
	}
	outcome, err := v.d.Broadcasts.ReconcileSessionBroadcast(v.ctx, e.SessionID)
	if err != nil {
		return err
	}
	// A freshly started broadcast already has the default layout.
	if reset && outcome == OutcomeAlreadyBroadcasting {
		if _, err := v.d.Broadcasts.ResetLayout(v.ctx, e.SessionID); err != nil {
			v.d.logger().Warn().Err(err).Str("session_id", e.SessionID).Msg("layout reset failed")
		}
	}
	return nil
}

func (v *dispatch) VisitStreamDestroyed(e domain.StreamDestroyed) error {
	_, err := v.d.Broadcasts.ReconcileSessionBroadcast(v.ctx, e.SessionID)
	return err
}

var (
	_ PresenceService  = (*PresenceCoordinator)(nil)
	_ BroadcastService = (*BroadcastReconciler)(nil)
)
