// Package domain defines the persistence models for rooms, scheduled events
// and asynchronous export jobs, plus the value types exchanged with the media
// provider. The schedule types are a read model: rows are owned by the
// content service and only queried here.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// Room is a product-level communication room. A room maps onto at most one
// provider session at a time (VonageSessionID) and may own a live channel
// that broadcasts are mirrored to.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - Name: display name.
//   - VonageSessionID: provider session identifier; indexed for webhook lookups.
//   - MediaLiveChannel: optional live channel carrying the RTMP ingest URI.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
//   - DeletedAt: soft deletion marker.
type Room struct {
	ID              string         `json:"id"                gorm:"type:char(36);primaryKey"`
	Name            string         `json:"name"              gorm:"type:varchar(255);not null"`
	VonageSessionID string         `json:"vonage_session_id" gorm:"type:varchar(255);index:idx_room_session"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `json:"-"                 gorm:"index"`

	MediaLiveChannel *MediaLiveChannel `json:"media_live_channel,omitempty" gorm:"foreignKey:RoomID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Room.
func (Room) TableName() string { return "rooms" }

// MediaLiveChannel is the external live channel a room is mirrored to.
// RTMPInputURI is the full ingest URI, e.g. rtmp://host/app/stream-key.
type MediaLiveChannel struct {
	ID           string    `json:"id"             gorm:"type:char(36);primaryKey"`
	RoomID       string    `json:"room_id"        gorm:"type:char(36);not null;uniqueIndex"`
	RTMPInputURI string    `json:"rtmp_input_uri" gorm:"type:varchar(1024)"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName returns the database table name for MediaLiveChannel.
func (MediaLiveChannel) TableName() string { return "media_live_channels" }

// Event is a scheduled session taking place in a room. Only events with
// BroadcastLive set are mirrored to the room's live channel while
// StartsAt <= now < EndsAt.
type Event struct {
	ID            string         `json:"id"             gorm:"type:char(36);primaryKey"`
	RoomID        string         `json:"room_id"        gorm:"type:char(36);not null;index:idx_event_room_window,priority:1"`
	Title         string         `json:"title"          gorm:"type:varchar(255);not null"`
	BroadcastLive bool           `json:"broadcast_live" gorm:"not null;default:false"`
	StartsAt      time.Time      `json:"starts_at"      gorm:"not null;index:idx_event_room_window,priority:2"`
	EndsAt        time.Time      `json:"ends_at"        gorm:"not null"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `json:"-"              gorm:"index"`

	Room Room `json:"room" gorm:"foreignKey:RoomID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Event.
func (Event) TableName() string { return "events" }
