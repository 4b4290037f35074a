// Package store implements the shared key/value layer for presence tracking,
// backed by Redis sorted sets. Like the repo package it follows the "thin
// repository" approach: atomic single-key primitives only, no business rules.
//
// Keyspace:
//
//	RoomParticipants:{roomId}                         ZSET registrantId -> epoch ms
//	VonageConnections:{sessionId}                     ZSET connectionId -> epoch ms
//	VonageConnectionOwner:{sessionId}:{registrantId}  STRING current connectionId (TTL)
//	VonageLayoutReset:{sessionId}                     STRING epoch ms (TTL)
package store

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key prefixes. Patterns are used by the sweeper's SCAN.
const (
	RoomParticipantsPrefix  = "RoomParticipants:"
	ConnectionsPrefix       = "VonageConnections:"
	ConnectionOwnerPrefix   = "VonageConnectionOwner:"
	LayoutResetPrefix       = "VonageLayoutReset:"
	RoomParticipantsPattern = RoomParticipantsPrefix + "*"
	ConnectionsPattern      = ConnectionsPrefix + "*"
)

// RoomParticipantsKey returns the sorted-set key of a room's participants.
func RoomParticipantsKey(roomID string) string { return RoomParticipantsPrefix + roomID }

// ConnectionsKey returns the sorted-set key of a session's connections.
func ConnectionsKey(sessionID string) string { return ConnectionsPrefix + sessionID }

func connectionOwnerKey(sessionID, registrantID string) string {
	return ConnectionOwnerPrefix + sessionID + ":" + registrantID
}

func layoutResetKey(sessionID string) string { return LayoutResetPrefix + sessionID }

// releaseOwner deletes the owner key only if it still names the given
// connection. Returns 1 when another connection owns the key, 0 otherwise.
var releaseOwner = redis.NewScript(`
local cur = redis.call("GET", KEYS[1])
if not cur then
	return 0
end
if cur == ARGV[1] then
	redis.call("DEL", KEYS[1])
	return 0
end
return 1
`)

// PresenceStore wraps a Redis client with the presence primitives. It is safe
// for concurrent use; all coordination relies on Redis per-key atomicity.
type PresenceStore struct {
	rdb redis.UniversalClient
	// OwnerTTL bounds how long the registrant -> connection mapping survives
	// without a refresh. It matches the sweeper retention.
	OwnerTTL time.Duration
}

// NewPresenceStore returns a store using rdb with the given owner-key TTL.
func NewPresenceStore(rdb redis.UniversalClient, ownerTTL time.Duration) *PresenceStore {
	if ownerTTL <= 0 {
		ownerTTL = 6 * time.Hour
	}
	return &PresenceStore{rdb: rdb, OwnerTTL: ownerTTL}
}

// Ping checks connectivity.
func (s *PresenceStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func score(at time.Time) float64 { return float64(at.UnixMilli()) }

// AddRoomParticipant upserts registrantID into the room with score = at.
// alreadyPresent is true when the member existed before the call (its score
// was overwritten rather than a new member added).
func (s *PresenceStore) AddRoomParticipant(ctx context.Context, roomID, registrantID string, at time.Time) (alreadyPresent bool, err error) {
	added, err := s.rdb.ZAdd(ctx, RoomParticipantsKey(roomID), redis.Z{Score: score(at), Member: registrantID}).Result()
	if err != nil {
		return false, err
	}
	return added == 0, nil
}

// RemoveRoomParticipant deletes registrantID from the room and returns the
// number of removed members (0 or 1).
func (s *PresenceStore) RemoveRoomParticipant(ctx context.Context, roomID, registrantID string) (int64, error) {
	return s.rdb.ZRem(ctx, RoomParticipantsKey(roomID), registrantID).Result()
}

// CountRoomParticipants returns the room's participant cardinality.
func (s *PresenceStore) CountRoomParticipants(ctx context.Context, roomID string) (int64, error) {
	return s.rdb.ZCard(ctx, RoomParticipantsKey(roomID)).Result()
}

// RoomParticipantSince returns the stored timestamp of registrantID and
// whether it is present.
func (s *PresenceStore) RoomParticipantSince(ctx context.Context, roomID, registrantID string) (time.Time, bool, error) {
	v, err := s.rdb.ZScore(ctx, RoomParticipantsKey(roomID), registrantID).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return time.UnixMilli(int64(v)).UTC(), true, nil
}

// RoomParticipantRank returns the zero-based join order of registrantID
// (oldest first), or -1 when absent.
func (s *PresenceStore) RoomParticipantRank(ctx context.Context, roomID, registrantID string) (int64, error) {
	r, err := s.rdb.ZRank(ctx, RoomParticipantsKey(roomID), registrantID).Result()
	if errors.Is(err, redis.Nil) {
		return -1, nil
	}
	return r, err
}

// AddConnection records connectionID under the session with score = at.
func (s *PresenceStore) AddConnection(ctx context.Context, sessionID, connectionID string, at time.Time) error {
	return s.rdb.ZAdd(ctx, ConnectionsKey(sessionID), redis.Z{Score: score(at), Member: connectionID}).Err()
}

// RemoveConnection deletes connectionID from the session and returns the
// number of removed records.
func (s *PresenceStore) RemoveConnection(ctx context.Context, sessionID, connectionID string) (int64, error) {
	return s.rdb.ZRem(ctx, ConnectionsKey(sessionID), connectionID).Result()
}

// HasConnection reports whether connectionID is tracked for the session.
func (s *PresenceStore) HasConnection(ctx context.Context, sessionID, connectionID string) (bool, error) {
	_, err := s.rdb.ZScore(ctx, ConnectionsKey(sessionID), connectionID).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	return err == nil, err
}

// SwapCurrentConnection makes connectionID the registrant's current
// connection in the session and returns the previous one ("" if none).
// SET ... GET keeps the swap a single atomic command.
func (s *PresenceStore) SwapCurrentConnection(ctx context.Context, sessionID, registrantID, connectionID string) (string, error) {
	prev, err := s.rdb.SetArgs(ctx, connectionOwnerKey(sessionID, registrantID), connectionID, redis.SetArgs{
		TTL: s.OwnerTTL,
		Get: true,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return prev, err
}

// ReleaseCurrentConnection clears the registrant's current connection if it is
// still connectionID. superseded is true when a different connection owns
// it; a missing key (never set, or expired) is not superseded.
func (s *PresenceStore) ReleaseCurrentConnection(ctx context.Context, sessionID, registrantID, connectionID string) (superseded bool, err error) {
	n, err := releaseOwner.Run(ctx, s.rdb, []string{connectionOwnerKey(sessionID, registrantID)}, connectionID).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// CurrentConnection returns the registrant's current connection, or "".
func (s *PresenceStore) CurrentConnection(ctx context.Context, sessionID, registrantID string) (string, error) {
	v, err := s.rdb.Get(ctx, connectionOwnerKey(sessionID, registrantID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return v, err
}

// MarkLayoutReset records that the session's layout should be reset the next
// time it is consumed.
func (s *PresenceStore) MarkLayoutReset(ctx context.Context, sessionID string, at time.Time) error {
	return s.rdb.Set(ctx, layoutResetKey(sessionID), strconv.FormatInt(at.UnixMilli(), 10), s.OwnerTTL).Err()
}

// TakeLayoutReset atomically consumes the session's layout-reset marker.
func (s *PresenceStore) TakeLayoutReset(ctx context.Context, sessionID string) (bool, error) {
	_, err := s.rdb.GetDel(ctx, layoutResetKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// RemoveOlderThan deletes members of the sorted set at key scored strictly
// before cutoff and returns how many were removed.
func (s *PresenceStore) RemoveOlderThan(ctx context.Context, key string, cutoff time.Time) (int64, error) {
	upper := "(" + strconv.FormatInt(cutoff.UnixMilli(), 10)
	return s.rdb.ZRemRangeByScore(ctx, key, "-inf", upper).Result()
}

// ScanKeys returns one page of keys matching pattern starting at cursor. A
// returned cursor of 0 means the iteration is complete.
func (s *PresenceStore) ScanKeys(ctx context.Context, cursor uint64, pattern string, count int64) ([]string, uint64, error) {
	return s.rdb.Scan(ctx, cursor, pattern, count).Result()
}
