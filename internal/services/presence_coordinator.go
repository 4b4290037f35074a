// Package services – PresenceCoordinator
//
// PresenceCoordinator owns the participant lifecycle of a room: it upserts
// presence on connect, removes it on disconnect, kicks superseded connections
// and leaves a layout-reset marker when a room empties.
//
// There are no in-process locks. Every step is a single atomic store command
// and each step's outcome is safe to observe on its own, so webhook
// deliveries may be duplicated, reordered and handled by any instance.
package services

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ConnectionRef identifies one provider connection of a registrant.
type ConnectionRef struct {
	SessionID    string
	ConnectionID string
}

// AddResult reports what AddParticipant observed.
type AddResult struct {
	AlreadyPresent bool
	// Disconnected is the superseded connection that was force-disconnected,
	// if any.
	Disconnected string
}

// PresenceCoordinator coordinates presence records and provider connections.
type PresenceCoordinator struct {
	Store PresenceStore
	Media MediaSessionClient

	// Optional
	Log *zerolog.Logger
	Now func() time.Time
}

func (c *PresenceCoordinator) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *PresenceCoordinator) logger() *zerolog.Logger {
	if c.Log != nil {
		return c.Log
	}
	return &log.Logger
}

// AddParticipant records registrantID as present in roomID (score = now). With
// a connection, the connection is tracked under its session and becomes the
// registrant's current connection. If the registrant was already present and
// a different connection was current, that connection is force-disconnected
// so at most one publisher per registrant stays live. Disconnect failures are
// logged, not returned.
func (c *PresenceCoordinator) AddParticipant(ctx context.Context, roomID, registrantID string, conn *ConnectionRef) (AddResult, error) {
	tr := otel.Tracer("services/PresenceCoordinator")
	ctx, span := tr.Start(ctx, "AddParticipant",
		trace.WithAttributes(
			attribute.String("room.id", roomID),
			attribute.String("registrant.id", registrantID),
		),
	)
	defer span.End()

	var res AddResult
	if strings.TrimSpace(roomID) == "" || strings.TrimSpace(registrantID) == "" {
		return res, ErrMissingIdentity
	}

	now := c.now()
	already, err := c.Store.AddRoomParticipant(ctx, roomID, registrantID, now)
	if err != nil {
		span.RecordError(err)
		return res, err
	}
	res.AlreadyPresent = already
	if conn == nil {
		return res, nil
	}

	if err := c.Store.AddConnection(ctx, conn.SessionID, conn.ConnectionID, now); err != nil {
		span.RecordError(err)
		return res, err
	}
	prev, err := c.Store.SwapCurrentConnection(ctx, conn.SessionID, registrantID, conn.ConnectionID)
	if err != nil {
		span.RecordError(err)
		return res, err
	}

	if already && prev != "" && prev != conn.ConnectionID {
		l := c.logger().With().
			Str("session_id", conn.SessionID).
			Str("registrant_id", registrantID).
			Str("previous_connection", prev).
			Logger()
		if err := c.Media.ForceDisconnect(ctx, conn.SessionID, prev); err != nil {
			l.Warn().Err(err).Msg("force disconnect of superseded connection failed")
		} else {
			l.Info().Msg("superseded connection disconnected")
		}
		res.Disconnected = prev
	}
	return res, nil
}

// RemoveParticipant handles a connection teardown.
//
// With a connection, its record is removed and the registrant's current
// connection is released if it still points at it. The registrant's presence
// is kept (removeOnlyConnection forced true) when the connection record was
// already gone or a newer connection has superseded it; both mean the
// presence may belong to a newer connection. Otherwise, unless
// removeOnlyConnection is set, the presence record is deleted too, and if
// the room is then empty a layout-reset marker is left for the session.
func (c *PresenceCoordinator) RemoveParticipant(ctx context.Context, roomID, registrantID string, conn *ConnectionRef, removeOnlyConnection bool) error {
	tr := otel.Tracer("services/PresenceCoordinator")
	ctx, span := tr.Start(ctx, "RemoveParticipant",
		trace.WithAttributes(
			attribute.String("room.id", roomID),
			attribute.String("registrant.id", registrantID),
			attribute.Bool("remove_only_connection", removeOnlyConnection),
		),
	)
	defer span.End()

	if strings.TrimSpace(roomID) == "" || strings.TrimSpace(registrantID) == "" {
		return ErrMissingIdentity
	}

	onlyConnection := removeOnlyConnection
	if conn != nil {
		removed, err := c.Store.RemoveConnection(ctx, conn.SessionID, conn.ConnectionID)
		if err != nil {
			span.RecordError(err)
			return err
		}
		superseded, err := c.Store.ReleaseCurrentConnection(ctx, conn.SessionID, registrantID, conn.ConnectionID)
		if err != nil {
			span.RecordError(err)
			return err
		}
		if removed == 0 || superseded {
			onlyConnection = true
		}
	}
	span.SetAttributes(attribute.Bool("only_connection", onlyConnection))
	if onlyConnection {
		return nil
	}

	if _, err := c.Store.RemoveRoomParticipant(ctx, roomID, registrantID); err != nil {
		span.RecordError(err)
		return err
	}
	if conn == nil || conn.SessionID == "" {
		return nil
	}

	left, err := c.Store.CountRoomParticipants(ctx, roomID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if left == 0 {
		if err := c.Store.MarkLayoutReset(ctx, conn.SessionID, c.now()); err != nil {
			span.RecordError(err)
			return err
		}
		c.logger().Debug().Str("session_id", conn.SessionID).Msg("room empty, layout reset pending")
	}
	return nil
}

// TakeLayoutReset consumes the session's layout-reset marker.
func (c *PresenceCoordinator) TakeLayoutReset(ctx context.Context, sessionID string) (bool, error) {
	return c.Store.TakeLayoutReset(ctx, sessionID)
}
