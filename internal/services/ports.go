package services

import (
	"context"
	"time"

	"github.com/tbourn/go-live-presence/internal/domain"
	"github.com/tbourn/go-live-presence/internal/media"
	"github.com/tbourn/go-live-presence/internal/upload"
)

// MediaSessionClient is the subset of the media provider API the services
// use. *media.Client implements it.
type MediaSessionClient interface {
	CreateSession(ctx context.Context) (string, error)
	GenerateToken(sessionID string, opts media.TokenOptions) (string, error)
	StartBroadcast(ctx context.Context, sessionID string, opts media.BroadcastOptions) (domain.Broadcast, error)
	StopBroadcast(ctx context.Context, broadcastID string) error
	ListBroadcasts(ctx context.Context, sessionID string) ([]domain.Broadcast, error)
	SetBroadcastLayout(ctx context.Context, broadcastID, layout string) error
	ForceDisconnect(ctx context.Context, sessionID, connectionID string) error
}

// PresenceStore is the key/value layer behind presence. *store.PresenceStore
// implements it.
type PresenceStore interface {
	AddRoomParticipant(ctx context.Context, roomID, registrantID string, at time.Time) (bool, error)
	RemoveRoomParticipant(ctx context.Context, roomID, registrantID string) (int64, error)
	CountRoomParticipants(ctx context.Context, roomID string) (int64, error)
	AddConnection(ctx context.Context, sessionID, connectionID string, at time.Time) error
	RemoveConnection(ctx context.Context, sessionID, connectionID string) (int64, error)
	SwapCurrentConnection(ctx context.Context, sessionID, registrantID, connectionID string) (string, error)
	ReleaseCurrentConnection(ctx context.Context, sessionID, registrantID, connectionID string) (bool, error)
	MarkLayoutReset(ctx context.Context, sessionID string, at time.Time) error
	TakeLayoutReset(ctx context.Context, sessionID string) (bool, error)
}

// SweepStore is the key enumeration and range delete used by the sweeper.
type SweepStore interface {
	ScanKeys(ctx context.Context, cursor uint64, pattern string, count int64) ([]string, uint64, error)
	RemoveOlderThan(ctx context.Context, key string, cutoff time.Time) (int64, error)
}

// ScheduleReader answers schedule questions for the reconciler.
type ScheduleReader interface {
	OngoingBroadcastEvents(ctx context.Context, sessionID string, now time.Time) ([]domain.Event, error)
	GetEvent(ctx context.Context, eventID string) (*domain.Event, error)
}

// VideoUploader is the video host API used by recording exports.
// *upload.Client implements it.
type VideoUploader interface {
	Upload(ctx context.Context, req upload.VideoRequest) (upload.Video, error)
	AddToFolder(ctx context.Context, folderID, videoURI string) error
	UploadCaptions(ctx context.Context, videoURI, captionsKey, language string) error
}
