// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the schedule read model: rooms, their
// live channels and the events scheduled in them.
//
// Rows are owned by the content service; apart from recording a room's
// provider session, everything here is read-only.
//
// Error semantics:
//   - Missing rows surface as ErrNotFound (gorm.ErrRecordNotFound).
//   - Other DB errors are propagated unchanged.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-live-presence/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// OngoingBroadcastEvents returns the events flagged for live broadcast whose
// room is bound to sessionID and whose window contains now
// (starts_at <= now < ends_at). Each event has Room.MediaLiveChannel
// preloaded. Ordered by start time so callers logging ambiguity see a
// stable order.
func OngoingBroadcastEvents(ctx context.Context, db *gorm.DB, sessionID string, now time.Time) ([]domain.Event, error) {
	var out []domain.Event
	err := db.WithContext(ctx).
		Joins("JOIN rooms ON rooms.id = events.room_id AND rooms.deleted_at IS NULL").
		Where("rooms.vonage_session_id = ?", sessionID).
		Where("events.broadcast_live = ?", true).
		Where("events.starts_at <= ? AND events.ends_at > ?", now, now).
		Preload("Room.MediaLiveChannel").
		Order("events.starts_at asc, events.id asc").
		Find(&out).Error
	return out, err
}

// GetEvent fetches an event with its room and live channel.
func GetEvent(ctx context.Context, db *gorm.DB, id string) (*domain.Event, error) {
	var ev domain.Event
	err := db.WithContext(ctx).
		Preload("Room.MediaLiveChannel").
		Where("id = ?", id).
		First(&ev).Error
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// GetRoom fetches a room with its live channel.
func GetRoom(ctx context.Context, db *gorm.DB, id string) (*domain.Room, error) {
	var r domain.Room
	err := db.WithContext(ctx).
		Preload("MediaLiveChannel").
		Where("id = ?", id).
		First(&r).Error
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ClaimRoomSession binds sessionID to the room unless it already has a
// session. The update is conditional, so concurrent callers that each
// created a session converge on whichever write landed first; the winning
// session id is returned.
func ClaimRoomSession(ctx context.Context, db *gorm.DB, roomID, sessionID string) (string, error) {
	res := db.WithContext(ctx).
		Model(&domain.Room{}).
		Where("id = ? AND (vonage_session_id IS NULL OR vonage_session_id = '')", roomID).
		Update("vonage_session_id", sessionID)
	if res.Error != nil {
		return "", res.Error
	}
	if res.RowsAffected == 1 {
		return sessionID, nil
	}

	r, err := GetRoom(ctx, db, roomID)
	if err != nil {
		return "", err
	}
	if r.VonageSessionID == "" {
		return "", errors.New("room session not recorded")
	}
	return r.VonageSessionID, nil
}

// Schedule binds the schedule queries to a database handle.
type Schedule struct {
	DB *gorm.DB
}

// OngoingBroadcastEvents delegates to the package function.
func (s Schedule) OngoingBroadcastEvents(ctx context.Context, sessionID string, now time.Time) ([]domain.Event, error) {
	return OngoingBroadcastEvents(ctx, s.DB, sessionID, now)
}

// GetEvent delegates to the package function.
func (s Schedule) GetEvent(ctx context.Context, eventID string) (*domain.Event, error) {
	return GetEvent(ctx, s.DB, eventID)
}
