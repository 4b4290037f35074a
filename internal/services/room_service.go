// Package services – RoomService
//
// RoomService issues client tokens for a room's media session (creating and
// binding the session on first use) and reports live participant counts.
package services

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-live-presence/internal/domain"
	"github.com/tbourn/go-live-presence/internal/media"
	"github.com/tbourn/go-live-presence/internal/repo"
)

// ParticipantCounter reports room cardinality. *store.PresenceStore
// implements it.
type ParticipantCounter interface {
	CountRoomParticipants(ctx context.Context, roomID string) (int64, error)
}

// TokenGrant is what a client needs to join a room's session.
type TokenGrant struct {
	SessionID string `json:"session_id"`
	Token     string `json:"token"`
	Role      string `json:"role"`
}

// RoomService handles room-scoped session access.
type RoomService struct {
	DB       *gorm.DB
	Media    MediaSessionClient
	Presence ParticipantCounter
}

// IssueToken returns a client token for registrantID in roomID. The token's
// connection data carries {registrantId, roomId}, which the session
// monitoring webhook uses to attribute connections.
func (s *RoomService) IssueToken(ctx context.Context, roomID, registrantID, role string) (TokenGrant, error) {
	tr := otel.Tracer("services/RoomService")
	ctx, span := tr.Start(ctx, "IssueToken",
		trace.WithAttributes(
			attribute.String("room.id", roomID),
			attribute.String("registrant.id", registrantID),
		),
	)
	defer span.End()

	if strings.TrimSpace(roomID) == "" || strings.TrimSpace(registrantID) == "" {
		return TokenGrant{}, ErrMissingIdentity
	}

	room, err := repo.GetRoom(ctx, s.DB, roomID)
	if errors.Is(err, repo.ErrNotFound) {
		return TokenGrant{}, ErrRoomNotFound
	}
	if err != nil {
		return TokenGrant{}, err
	}

	sessionID := room.VonageSessionID
	if sessionID == "" {
		created, err := s.Media.CreateSession(ctx)
		if err != nil {
			span.RecordError(err)
			return TokenGrant{}, err
		}
		// Another request may have bound a session first; use the winner.
		if sessionID, err = repo.ClaimRoomSession(ctx, s.DB, roomID, created); err != nil {
			return TokenGrant{}, err
		}
	}

	if role == "" {
		role = media.RolePublisher
	}
	tok, err := s.Media.GenerateToken(sessionID, media.TokenOptions{
		Role: role,
		Data: domain.ConnectionData{RegistrantID: registrantID, RoomID: roomID},
	})
	if err != nil {
		return TokenGrant{}, err
	}
	return TokenGrant{SessionID: sessionID, Token: tok, Role: role}, nil
}

// ParticipantCount returns the number of registrants present in roomID.
func (s *RoomService) ParticipantCount(ctx context.Context, roomID string) (int64, error) {
	if strings.TrimSpace(roomID) == "" {
		return 0, ErrMissingIdentity
	}
	return s.Presence.CountRoomParticipants(ctx, roomID)
}
