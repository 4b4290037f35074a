// Package handlers exposes the HTTP surface of the presence engine:
//   - POST /webhooks/{token}/session            (session monitoring callbacks)
//   - POST /webhooks/{token}/archive            (archive status callbacks)
//   - POST /events/{id}/broadcast/reconcile     (operator reconcile)
//   - POST /events/{id}/broadcast/stop          (operator stop)
//   - POST /rooms/{id}/token                    (client session token)
//   - GET  /rooms/{id}/participants/count       (room cardinality)
//   - GET  /export-jobs, POST /export-jobs      (recording export queue)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses.
package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-live-presence/internal/domain"
	"github.com/tbourn/go-live-presence/internal/services"
	"github.com/tbourn/go-live-presence/internal/utils"
)

//
// Service contracts (context-aware)
//

// WebhookService consumes provider callbacks.
type WebhookService interface {
	// Dispatch routes one session monitoring event.
	Dispatch(ctx context.Context, body []byte) error
	// DispatchArchive records an archive status callback.
	DispatchArchive(ctx context.Context, body []byte)
}

// BroadcastService drives event broadcasts on operator request.
type BroadcastService interface {
	ReconcileEvent(ctx context.Context, eventID string) (services.ReconcileOutcome, error)
	StopEventBroadcasts(ctx context.Context, eventID string) (int, error)
}

// RoomService issues session tokens and reports presence per room.
type RoomService interface {
	IssueToken(ctx context.Context, roomID, registrantID, role string) (services.TokenGrant, error)
	ParticipantCount(ctx context.Context, roomID string) (int64, error)
}

// ExportJobService reads and feeds the recording export queue.
type ExportJobService interface {
	ListPage(ctx context.Context, page, pageSize int) ([]domain.RecordingExportJob, int64, error)
	Enqueue(ctx context.Context, req services.ExportRequest) (*domain.RecordingExportJob, error)
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints. A nil service leaves its routes
// unregistered by the router.
type Handlers struct {
	webhooks   WebhookService
	broadcasts BroadcastService
	rooms      RoomService
	exports    ExportJobService

	webhookSecret string
}

// Options carries the services Handlers dispatch to.
type Options struct {
	Webhooks   WebhookService
	Broadcasts BroadcastService
	Rooms      RoomService
	Exports    ExportJobService

	// WebhookSecret is the path token callbacks must present. Empty denies
	// every callback.
	WebhookSecret string
}

// New constructs Handlers bound to the given services.
func New(opt Options) *Handlers {
	return &Handlers{
		webhooks:      opt.Webhooks,
		broadcasts:    opt.Broadcasts,
		rooms:         opt.Rooms,
		exports:       opt.Exports,
		webhookSecret: opt.WebhookSecret,
	}
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

func newPagination(p utils.Page, total int64) Pagination {
	totalPages := p.TotalPages(total)
	return Pagination{
		Page:       p.Number,
		PageSize:   p.Size,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    p.Number < totalPages,
	}
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// clampPagination reads page and page_size, bounded to maxPageSize.
func clampPagination(c *gin.Context) utils.Page {
	return utils.ParsePage(c.Query("page"), c.Query("page_size"), defaultPageSize, maxPageSize)
}
