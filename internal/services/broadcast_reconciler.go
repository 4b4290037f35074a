// Package services – BroadcastReconciler
//
// BroadcastReconciler makes the provider's broadcasts for a session match the
// schedule: exactly one started broadcast, aimed at the live channel of the
// single event that is currently on air. It is level-triggered and may be
// called any number of times; once state has converged it makes no provider
// mutations.
//
// Observability: public methods are OpenTelemetry-instrumented and every
// provider mutation increments broadcast_actions_total.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-live-presence/internal/domain"
	"github.com/tbourn/go-live-presence/internal/media"
	"github.com/tbourn/go-live-presence/internal/repo"
)

// ReconcileOutcome is the decision ReconcileSessionBroadcast took.
type ReconcileOutcome int

const (
	// OutcomeNoEvent: nothing is scheduled to broadcast; no provider calls.
	OutcomeNoEvent ReconcileOutcome = iota
	// OutcomeAmbiguousSchedule: several events are on air; nothing was touched.
	OutcomeAmbiguousSchedule
	// OutcomeAlreadyBroadcasting: the single started broadcast already targets
	// the destination.
	OutcomeAlreadyBroadcasting
	// OutcomeStarted: a broadcast was started.
	OutcomeStarted
	// OutcomeHealedAndStarted: duplicate broadcasts were stopped, then a
	// broadcast was started.
	OutcomeHealedAndStarted
)

func (o ReconcileOutcome) String() string {
	switch o {
	case OutcomeNoEvent:
		return "no_event"
	case OutcomeAmbiguousSchedule:
		return "ambiguous_schedule"
	case OutcomeAlreadyBroadcasting:
		return "already_broadcasting"
	case OutcomeStarted:
		return "started"
	case OutcomeHealedAndStarted:
		return "healed_and_started"
	default:
		return "unknown"
	}
}

// BroadcastReconciler reconciles scheduled events against provider broadcasts.
type BroadcastReconciler struct {
	Schedule ScheduleReader
	Media    MediaSessionClient

	// Optional
	Log *zerolog.Logger
	Now func() time.Time
}

func (r *BroadcastReconciler) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *BroadcastReconciler) logger() *zerolog.Logger {
	if r.Log != nil {
		return r.Log
	}
	return &log.Logger
}

// ReconcileSessionBroadcast converges the session's broadcasts on the
// schedule:
//
//   - no ongoing broadcastable event: no-op;
//   - more than one: logged and aborted, nothing is guessed;
//   - more than one started broadcast: all are stopped first;
//   - exactly one started broadcast aimed at the destination: no-op;
//   - otherwise a bestFit 1280x720 broadcast to the destination is started.
func (r *BroadcastReconciler) ReconcileSessionBroadcast(ctx context.Context, sessionID string) (ReconcileOutcome, error) {
	tr := otel.Tracer("services/BroadcastReconciler")
	ctx, span := tr.Start(ctx, "ReconcileSessionBroadcast",
		trace.WithAttributes(attribute.String("session.id", sessionID)),
	)
	defer span.End()

	l := r.logger().With().Str("session_id", sessionID).Logger()

	events, err := r.Schedule.OngoingBroadcastEvents(ctx, sessionID, r.now())
	if err != nil {
		span.RecordError(err)
		return OutcomeNoEvent, fmt.Errorf("query schedule: %w", err)
	}
	switch len(events) {
	case 0:
		return OutcomeNoEvent, nil
	case 1:
	default:
		ids := make([]string, 0, len(events))
		for _, ev := range events {
			ids = append(ids, ev.ID)
		}
		l.Error().Err(ErrAmbiguousSchedule).Strs("event_ids", ids).Msg("refusing to reconcile broadcast")
		span.SetAttributes(attribute.String("outcome", OutcomeAmbiguousSchedule.String()))
		return OutcomeAmbiguousSchedule, nil
	}

	event := events[0]
	l = l.With().Str("event_id", event.ID).Logger()
	dst, err := destinationFor(sessionID, event)
	if err != nil {
		l.Error().Err(err).Msg("cannot derive broadcast destination")
		span.RecordError(err)
		return OutcomeNoEvent, err
	}

	all, err := r.Media.ListBroadcasts(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		return OutcomeNoEvent, fmt.Errorf("list broadcasts: %w", err)
	}
	started := startedOnly(all)

	healed := false
	if len(started) > 1 {
		l.Warn().Int("started", len(started)).Msg("duplicate broadcasts, stopping all")
		if _, err := r.stopAll(ctx, started); err != nil {
			span.RecordError(err)
			return OutcomeNoEvent, err
		}
		started = nil
		healed = true
	}

	if len(started) == 1 && started[0].Targets(dst) {
		span.SetAttributes(attribute.String("outcome", OutcomeAlreadyBroadcasting.String()))
		return OutcomeAlreadyBroadcasting, nil
	}

	b, err := r.Media.StartBroadcast(ctx, sessionID, media.OptionsFor(dst))
	if err != nil {
		span.RecordError(err)
		return OutcomeNoEvent, fmt.Errorf("start broadcast: %w", err)
	}
	broadcastActions.WithLabelValues("start").Inc()

	outcome := OutcomeStarted
	if healed {
		outcome = OutcomeHealedAndStarted
	}
	l.Info().
		Str("broadcast_id", b.ID).
		Str("server_url", dst.ServerURL).
		Str("outcome", outcome.String()).
		Msg("broadcast started")
	span.SetAttributes(attribute.String("outcome", outcome.String()))
	return outcome, nil
}

// StopEventBroadcasts stops every started broadcast of the event's session,
// whatever its destination, and returns how many were stopped.
func (r *BroadcastReconciler) StopEventBroadcasts(ctx context.Context, eventID string) (int, error) {
	tr := otel.Tracer("services/BroadcastReconciler")
	ctx, span := tr.Start(ctx, "StopEventBroadcasts",
		trace.WithAttributes(attribute.String("event.id", eventID)),
	)
	defer span.End()

	ev, err := r.Schedule.GetEvent(ctx, eventID)
	if errors.Is(err, repo.ErrNotFound) {
		return 0, ErrEventNotFound
	}
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	sessionID := ev.Room.VonageSessionID
	if sessionID == "" {
		return 0, ErrSessionMissing
	}

	all, err := r.Media.ListBroadcasts(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("list broadcasts: %w", err)
	}
	n, err := r.stopAll(ctx, startedOnly(all))
	if err != nil {
		span.RecordError(err)
	}
	r.logger().Info().
		Str("event_id", eventID).
		Str("session_id", sessionID).
		Int("stopped", n).
		Msg("event broadcasts stopped")
	return n, err
}

// ReconcileEvent reconciles the session of eventID. Unlike the webhook path,
// an ambiguous schedule is reported to the caller as ErrAmbiguousSchedule.
func (r *BroadcastReconciler) ReconcileEvent(ctx context.Context, eventID string) (ReconcileOutcome, error) {
	ev, err := r.Schedule.GetEvent(ctx, eventID)
	if errors.Is(err, repo.ErrNotFound) {
		return OutcomeNoEvent, ErrEventNotFound
	}
	if err != nil {
		return OutcomeNoEvent, err
	}
	if ev.Room.VonageSessionID == "" {
		return OutcomeNoEvent, ErrSessionMissing
	}
	outcome, err := r.ReconcileSessionBroadcast(ctx, ev.Room.VonageSessionID)
	if err == nil && outcome == OutcomeAmbiguousSchedule {
		return outcome, ErrAmbiguousSchedule
	}
	return outcome, err
}

// ResetLayout re-applies the bestFit layout to every started broadcast of the
// session.
func (r *BroadcastReconciler) ResetLayout(ctx context.Context, sessionID string) (int, error) {
	all, err := r.Media.ListBroadcasts(ctx, sessionID)
	if err != nil {
		return 0, fmt.Errorf("list broadcasts: %w", err)
	}
	var errs []error
	n := 0
	for _, b := range startedOnly(all) {
		if err := r.Media.SetBroadcastLayout(ctx, b.ID, domain.BroadcastLayoutBestFit); err != nil {
			errs = append(errs, fmt.Errorf("reset layout of %s: %w", b.ID, err))
			continue
		}
		broadcastActions.WithLabelValues("layout").Inc()
		n++
	}
	return n, errors.Join(errs...)
}

// stopAll stops every broadcast, continuing past failures.
func (r *BroadcastReconciler) stopAll(ctx context.Context, bs []domain.Broadcast) (int, error) {
	var errs []error
	n := 0
	for _, b := range bs {
		if err := r.Media.StopBroadcast(ctx, b.ID); err != nil {
			errs = append(errs, fmt.Errorf("stop broadcast %s: %w", b.ID, err))
			continue
		}
		broadcastActions.WithLabelValues("stop").Inc()
		n++
	}
	return n, errors.Join(errs...)
}

func startedOnly(all []domain.Broadcast) []domain.Broadcast {
	out := make([]domain.Broadcast, 0, len(all))
	for _, b := range all {
		if b.Started() {
			out = append(out, b)
		}
	}
	return out
}

func destinationFor(sessionID string, ev domain.Event) (domain.BroadcastDestination, error) {
	ch := ev.Room.MediaLiveChannel
	if ch == nil || strings.TrimSpace(ch.RTMPInputURI) == "" {
		return domain.BroadcastDestination{}, ErrIngestURIMissing
	}
	return domain.DestinationFromIngestURI(sessionID, ch.RTMPInputURI)
}
