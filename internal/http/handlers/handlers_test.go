package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-live-presence/internal/domain"
	"github.com/tbourn/go-live-presence/internal/media"
	"github.com/tbourn/go-live-presence/internal/services"
)

// ---------- stubs ----------

type stubWebhooks struct {
	bodies   [][]byte
	archives int
	err      error
}

func (s *stubWebhooks) Dispatch(_ context.Context, body []byte) error {
	s.bodies = append(s.bodies, body)
	return s.err
}

func (s *stubWebhooks) DispatchArchive(context.Context, []byte) { s.archives++ }

type stubBroadcasts struct {
	outcome services.ReconcileOutcome
	stopped int
	err     error
	calls   []string
}

func (s *stubBroadcasts) ReconcileEvent(_ context.Context, id string) (services.ReconcileOutcome, error) {
	s.calls = append(s.calls, "reconcile:"+id)
	return s.outcome, s.err
}

func (s *stubBroadcasts) StopEventBroadcasts(_ context.Context, id string) (int, error) {
	s.calls = append(s.calls, "stop:"+id)
	return s.stopped, s.err
}

type stubRooms struct {
	grant services.TokenGrant
	count int64
	err   error
	role  string
}

func (s *stubRooms) IssueToken(_ context.Context, roomID, registrantID, role string) (services.TokenGrant, error) {
	s.role = role
	return s.grant, s.err
}

func (s *stubRooms) ParticipantCount(context.Context, string) (int64, error) {
	return s.count, s.err
}

type stubExports struct {
	items   []domain.RecordingExportJob
	total   int64
	page    int
	size    int
	req     services.ExportRequest
	err     error
	listErr error
}

func (s *stubExports) ListPage(_ context.Context, page, pageSize int) ([]domain.RecordingExportJob, int64, error) {
	s.page, s.size = page, pageSize
	return s.items, s.total, s.listErr
}

func (s *stubExports) Enqueue(_ context.Context, req services.ExportRequest) (*domain.RecordingExportJob, error) {
	s.req = req
	if s.err != nil {
		return nil, s.err
	}
	return &domain.RecordingExportJob{
		JobState:     domain.JobState{ID: "j1", JobStatusName: domain.JobStatusNew},
		RecordingKey: req.RecordingKey,
		Title:        req.Title,
	}, nil
}

// ---------- helpers ----------

type fixture struct {
	r   *gin.Engine
	wh  *stubWebhooks
	bc  *stubBroadcasts
	rm  *stubRooms
	exp *stubExports
}

func newFixture(secret string) *fixture {
	gin.SetMode(gin.TestMode)
	f := &fixture{
		wh:  &stubWebhooks{},
		bc:  &stubBroadcasts{},
		rm:  &stubRooms{},
		exp: &stubExports{},
	}
	h := New(Options{
		Webhooks:      f.wh,
		Broadcasts:    f.bc,
		Rooms:         f.rm,
		Exports:       f.exp,
		WebhookSecret: secret,
	})
	r := gin.New()
	r.POST("/webhooks/:token/session", h.SessionWebhook)
	r.POST("/webhooks/:token/archive", h.ArchiveWebhook)
	r.POST("/events/:id/broadcast/reconcile", h.ReconcileEventBroadcast)
	r.POST("/events/:id/broadcast/stop", h.StopEventBroadcast)
	r.POST("/rooms/:id/token", h.IssueRoomToken)
	r.GET("/rooms/:id/participants/count", h.RoomParticipantCount)
	r.GET("/export-jobs", h.ListExportJobs)
	r.POST("/export-jobs", h.EnqueueExportJob)
	f.r = r
	return f
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	f.r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("json: %v (%s)", err, w.Body.String())
	}
	return v
}

// ---------- webhooks ----------

func TestSessionWebhook_TokenChecks(t *testing.T) {
	f := newFixture("s3cret")

	w := f.do(http.MethodPost, "/webhooks/wrong/session", `{"event":"connectionCreated"}`)
	if w.Code != http.StatusForbidden {
		t.Fatalf("status=%d; want 403", w.Code)
	}
	if er := decode[ErrorResponse](t, w); er.Code != ErrCodeAccessDenied {
		t.Fatalf("code=%q", er.Code)
	}
	if len(f.wh.bodies) != 0 {
		t.Fatalf("dispatcher must not see unauthorized deliveries")
	}

	w = f.do(http.MethodPost, "/webhooks/s3cret/session", `{"event":"connectionCreated"}`)
	if w.Code != http.StatusOK || !decode[WebhookAck](t, w).OK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if len(f.wh.bodies) != 1 || !bytes.Contains(f.wh.bodies[0], []byte("connectionCreated")) {
		t.Fatalf("body not forwarded: %q", f.wh.bodies)
	}
}

func TestSessionWebhook_EmptySecretDeniesAll(t *testing.T) {
	f := newFixture("")
	if w := f.do(http.MethodPost, "/webhooks/x/session", `{}`); w.Code != http.StatusForbidden {
		t.Fatalf("status=%d; want 403", w.Code)
	}
	if w := f.do(http.MethodPost, "/webhooks/x/archive", `{}`); w.Code != http.StatusForbidden {
		t.Fatalf("archive status=%d; want 403", w.Code)
	}
}

func TestSessionWebhook_FailuresAreAcknowledged(t *testing.T) {
	cases := []struct {
		err  error
		code string
	}{
		{domain.ErrMalformedEvent, "validation"},
		{&media.APIError{Status: 503}, "transient"},
		{errors.New("redis down"), "internal"},
	}
	for _, tc := range cases {
		f := newFixture("k")
		f.wh.err = tc.err
		w := f.do(http.MethodPost, "/webhooks/k/session", `{"event":"streamCreated"}`)
		if w.Code != http.StatusOK {
			t.Fatalf("%v: status=%d; want 200", tc.err, w.Code)
		}
		ack := decode[WebhookAck](t, w)
		if ack.OK || ack.Code != tc.code {
			t.Fatalf("%v: ack=%+v; want code %q", tc.err, ack, tc.code)
		}
	}
}

func TestArchiveWebhook(t *testing.T) {
	f := newFixture("k")
	w := f.do(http.MethodPost, "/webhooks/k/archive", `not json`)
	if w.Code != http.StatusOK || f.wh.archives != 1 {
		t.Fatalf("status=%d archives=%d", w.Code, f.wh.archives)
	}
}

// ---------- events ----------

func TestReconcileEventBroadcast(t *testing.T) {
	f := newFixture("k")
	f.bc.outcome = services.OutcomeStarted

	w := f.do(http.MethodPost, "/events/e1/broadcast/reconcile", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	resp := decode[ReconcileResponse](t, w)
	if resp.EventID != "e1" || resp.Outcome != "started" {
		t.Fatalf("resp=%+v", resp)
	}

	f.bc.err = services.ErrEventNotFound
	if w := f.do(http.MethodPost, "/events/nope/broadcast/reconcile", ""); w.Code != http.StatusNotFound {
		t.Fatalf("status=%d; want 404", w.Code)
	}
	f.bc.err = domain.ErrInvalidIngestURI
	if w := f.do(http.MethodPost, "/events/e1/broadcast/reconcile", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d; want 400", w.Code)
	}
}

// overlapSchedule puts every event on air for its room's session.
type overlapSchedule struct{ events []domain.Event }

func (s overlapSchedule) OngoingBroadcastEvents(_ context.Context, sessionID string, _ time.Time) ([]domain.Event, error) {
	var out []domain.Event
	for _, ev := range s.events {
		if ev.Room.VonageSessionID == sessionID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s overlapSchedule) GetEvent(_ context.Context, id string) (*domain.Event, error) {
	for i := range s.events {
		if s.events[i].ID == id {
			return &s.events[i], nil
		}
	}
	return nil, services.ErrEventNotFound
}

// untouchedMedia panics on any provider call.
type untouchedMedia struct{ services.MediaSessionClient }

func TestReconcileEventBroadcast_AmbiguousScheduleIsConflict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	onAir := func(id, ingest string) domain.Event {
		return domain.Event{
			ID:            id,
			BroadcastLive: true,
			Room: domain.Room{
				VonageSessionID:  "S",
				MediaLiveChannel: &domain.MediaLiveChannel{RTMPInputURI: ingest},
			},
		}
	}
	reconciler := &services.BroadcastReconciler{
		Schedule: overlapSchedule{events: []domain.Event{
			onAir("e1", "rtmp://a/app/k"),
			onAir("e2", "rtmp://b/app/k"),
		}},
		Media: untouchedMedia{},
	}
	h := New(Options{Broadcasts: reconciler})
	r := gin.New()
	r.POST("/events/:id/broadcast/reconcile", h.ReconcileEventBroadcast)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/events/e1/broadcast/reconcile", nil))
	if w.Code != http.StatusConflict {
		t.Fatalf("status=%d; want 409 (%s)", w.Code, w.Body.String())
	}
	if resp := decode[ErrorResponse](t, w); resp.Code != ErrCodeAmbiguous {
		t.Fatalf("code=%q; want %q", resp.Code, ErrCodeAmbiguous)
	}
}

func TestStopEventBroadcast(t *testing.T) {
	f := newFixture("k")
	f.bc.stopped = 2

	w := f.do(http.MethodPost, "/events/e1/broadcast/stop", "")
	if w.Code != http.StatusOK || decode[StopResponse](t, w).Stopped != 2 {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}

	f.bc.err = &media.APIError{Status: 502}
	if w := f.do(http.MethodPost, "/events/e1/broadcast/stop", ""); w.Code != http.StatusBadGateway {
		t.Fatalf("status=%d; want 502", w.Code)
	}
	if strings.Join(f.bc.calls, ",") != "stop:e1,stop:e1" {
		t.Fatalf("calls=%v", f.bc.calls)
	}
}

// ---------- rooms ----------

func TestIssueRoomToken(t *testing.T) {
	f := newFixture("k")
	f.rm.grant = services.TokenGrant{SessionID: "S", Token: "T", Role: media.RoleSubscriber}

	if w := f.do(http.MethodPost, "/rooms/r1/token", `{}`); w.Code != http.StatusBadRequest {
		t.Fatalf("missing registrant: status=%d", w.Code)
	}

	w := f.do(http.MethodPost, "/rooms/r1/token", `{"registrant_id":"A","role":" subscriber "}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if w.Header().Get("Cache-Control") != "no-store" {
		t.Fatalf("token responses must not be cached")
	}
	if g := decode[services.TokenGrant](t, w); g.Token != "T" || f.rm.role != media.RoleSubscriber {
		t.Fatalf("grant=%+v role=%q", g, f.rm.role)
	}

	f.rm.err = services.ErrRoomNotFound
	if w := f.do(http.MethodPost, "/rooms/zz/token", `{"registrant_id":"A"}`); w.Code != http.StatusNotFound {
		t.Fatalf("status=%d; want 404", w.Code)
	}
}

func TestRoomParticipantCount(t *testing.T) {
	f := newFixture("k")
	f.rm.count = 3
	w := f.do(http.MethodGet, "/rooms/r1/participants/count", "")
	resp := decode[ParticipantCountResponse](t, w)
	if w.Code != http.StatusOK || resp.Count != 3 || resp.RoomID != "r1" {
		t.Fatalf("status=%d resp=%+v", w.Code, resp)
	}
}

// ---------- export jobs ----------

func TestListExportJobs_Pagination(t *testing.T) {
	f := newFixture("k")
	f.exp.items = []domain.RecordingExportJob{{JobState: domain.JobState{ID: "a"}}}
	f.exp.total = 45

	w := f.do(http.MethodGet, "/export-jobs?page=2&page_size=500", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	resp := decode[ListExportJobsResponse](t, w)
	if f.exp.page != 2 || f.exp.size != 100 {
		t.Fatalf("clamped to page=%d size=%d", f.exp.page, f.exp.size)
	}
	if resp.Pagination.TotalPages != 1 || resp.Pagination.HasNext || len(resp.Jobs) != 1 {
		t.Fatalf("pagination=%+v", resp.Pagination)
	}

	f.exp.listErr = errors.New("db")
	if w := f.do(http.MethodGet, "/export-jobs", ""); w.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d; want 500", w.Code)
	}
}

func TestEnqueueExportJob(t *testing.T) {
	f := newFixture("k")

	if w := f.do(http.MethodPost, "/export-jobs", `{"title":"x"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("missing key: status=%d", w.Code)
	}

	w := f.do(http.MethodPost, "/export-jobs", `{"recording_key":"rec.mp4","title":"Keynote","folder_id":"7"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if job := decode[domain.RecordingExportJob](t, w); job.ID != "j1" || job.JobStatusName != domain.JobStatusNew {
		t.Fatalf("job=%+v", job)
	}
	if f.exp.req.FolderID != "7" {
		t.Fatalf("request not forwarded: %+v", f.exp.req)
	}

	f.exp.err = errors.New("disk full")
	w = f.do(http.MethodPost, "/export-jobs", `{"recording_key":"rec.mp4","title":"Keynote"}`)
	if w.Code != http.StatusInternalServerError || decode[ErrorResponse](t, w).Code != ErrCodeEnqueueFail {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
}
