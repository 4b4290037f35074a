package services

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-live-presence/internal/domain"
	"github.com/tbourn/go-live-presence/internal/media"
	"github.com/tbourn/go-live-presence/internal/store"
)

// ---------- test helpers ----------

func quietLog() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

func newPresenceStore(t *testing.T) (*store.PresenceStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return store.NewPresenceStore(rdb, time.Hour), mr
}

// fakeMedia records every provider call. Broadcasts are kept in memory so
// start/stop/list behave like a small provider.
type fakeMedia struct {
	mu sync.Mutex

	broadcasts  []domain.Broadcast
	nextID      int
	disconnects []string
	starts      []media.BroadcastOptions
	stops       []string
	layouts     []string
	lists       int
	sessions    int

	disconnectErr error
	startErr      error
	stopErr       map[string]error
	listErr       error
}

func (f *fakeMedia) CreateSession(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions++
	return fmt.Sprintf("session-%d", f.sessions), nil
}

func (f *fakeMedia) GenerateToken(sessionID string, opts media.TokenOptions) (string, error) {
	if opts.Role != media.RolePublisher && opts.Role != media.RoleSubscriber && opts.Role != media.RoleModerator {
		return "", media.ErrInvalidRole
	}
	return "tok:" + sessionID + ":" + opts.Data.RegistrantID + ":" + opts.Role, nil
}

func (f *fakeMedia) StartBroadcast(ctx context.Context, sessionID string, opts media.BroadcastOptions) (domain.Broadcast, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return domain.Broadcast{}, f.startErr
	}
	f.nextID++
	b := domain.Broadcast{
		ID:        fmt.Sprintf("new-%d", f.nextID),
		SessionID: sessionID,
		Status:    domain.BroadcastStatusStarted,
	}
	b.BroadcastURLs.RTMP = append(b.BroadcastURLs.RTMP, opts.Outputs...)
	f.broadcasts = append(f.broadcasts, b)
	f.starts = append(f.starts, opts)
	return b, nil
}

func (f *fakeMedia) StopBroadcast(ctx context.Context, broadcastID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.stopErr[broadcastID]; err != nil {
		return err
	}
	f.stops = append(f.stops, broadcastID)
	for i := range f.broadcasts {
		if f.broadcasts[i].ID == broadcastID {
			f.broadcasts[i].Status = domain.BroadcastStatusStopped
		}
	}
	return nil
}

func (f *fakeMedia) ListBroadcasts(ctx context.Context, sessionID string) ([]domain.Broadcast, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []domain.Broadcast
	for _, b := range f.broadcasts {
		if b.SessionID == sessionID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeMedia) SetBroadcastLayout(ctx context.Context, broadcastID, layout string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.layouts = append(f.layouts, broadcastID+":"+layout)
	return nil
}

func (f *fakeMedia) ForceDisconnect(ctx context.Context, sessionID, connectionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects = append(f.disconnects, connectionID)
	return f.disconnectErr
}

// mutations counts provider calls that change state.
func (f *fakeMedia) mutations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.starts) + len(f.stops) + len(f.layouts) + len(f.disconnects)
}

func startedBroadcast(id, sessionID, server, stream string) domain.Broadcast {
	b := domain.Broadcast{ID: id, SessionID: sessionID, Status: domain.BroadcastStatusStarted}
	b.BroadcastURLs.RTMP = []domain.RTMPTarget{{ServerURL: server, StreamName: stream}}
	return b
}
