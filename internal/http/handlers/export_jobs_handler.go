package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-live-presence/internal/domain"
	"github.com/tbourn/go-live-presence/internal/http/middleware"
	"github.com/tbourn/go-live-presence/internal/services"
)

// ListExportJobsResponse wraps a page of export jobs.
type ListExportJobsResponse struct {
	Jobs       []domain.RecordingExportJob `json:"jobs"`
	Pagination Pagination                  `json:"pagination"`
}

// EnqueueExportRequest is the JSON payload for a new recording export.
type EnqueueExportRequest struct {
	EventID      string `json:"event_id" example:"9f0c2d4e-7b1a-4c1e-9a55-1f6f0c7b2e11"`
	RecordingKey string `json:"recording_key" binding:"required,max=1024" example:"recordings/2025/keynote.mp4"`
	CaptionsKey  string `json:"captions_key" binding:"max=1024" example:"recordings/2025/keynote.vtt"`
	Title        string `json:"title" binding:"required,max=255" example:"Keynote"`
	Description  string `json:"description"`
	FolderID     string `json:"folder_id" example:"1234567"`
}

// ListExportJobs godoc
// @ID          listExportJobs
// @Summary     List recording export jobs (paginated)
// @Tags        Export jobs
// @Produce     json
//
// @Param       page       query  int  false  "Page number"     minimum(1) default(1)
// @Param       page_size  query  int  false  "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.ListExportJobsResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /export-jobs [get]
func (h *Handlers) ListExportJobs(c *gin.Context) {
	page := clampPagination(c)
	items, total, err := h.exports.ListPage(c.Request.Context(), page.Number, page.Size)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListExportJobsResponse{
		Jobs:       items,
		Pagination: newPagination(page, total),
	})
}

// EnqueueExportJob godoc
// @ID          enqueueExportJob
// @Summary     Queue a recording export
// @Description Inserts a NEW job; the export worker uploads it on a later poll.
// @Tags        Export jobs
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.EnqueueExportRequest  true  "Export payload"
//
// @Success     202  {object}  domain.RecordingExportJob
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /export-jobs [post]
func (h *Handlers) EnqueueExportJob(c *gin.Context) {
	var req EnqueueExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "recording_key and title required")
		return
	}
	job, err := h.exports.Enqueue(c.Request.Context(), services.ExportRequest{
		EventID:      req.EventID,
		RecordingKey: req.RecordingKey,
		CaptionsKey:  req.CaptionsKey,
		Title:        req.Title,
		Description:  req.Description,
		FolderID:     req.FolderID,
	})
	if err != nil {
		if services.Classify(err) == services.KindValidation {
			failErr(c, err)
			return
		}
		middleware.LoggerFrom(c).Error().Err(err).Msg("enqueue export")
		fail(c, http.StatusInternalServerError, ErrCodeEnqueueFail, "could not queue export")
		return
	}
	ok(c, http.StatusAccepted, job)
}
