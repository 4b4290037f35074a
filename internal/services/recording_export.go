// Package services – RecordingExportHandler
//
// RecordingExportHandler is the jobqueue handler for recording_export_jobs:
// it asks the video host to pull the recording from blob storage, then files
// the video in a folder and attaches captions as best-effort follow-ups.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-live-presence/internal/domain"
	"github.com/tbourn/go-live-presence/internal/jobqueue"
	"github.com/tbourn/go-live-presence/internal/repo"
	"github.com/tbourn/go-live-presence/internal/upload"
	"github.com/tbourn/go-live-presence/internal/utils"
)

// RecordingExportJobName labels recording exports in logs and metrics.
const RecordingExportJobName = "recording_export"

// RecordingExportHandler uploads recordings to the video host.
type RecordingExportHandler struct {
	Uploader VideoUploader
	// CaptionsLanguage defaults to "en".
	CaptionsLanguage string
}

var _ jobqueue.Handler[domain.RecordingExportJob] = (*RecordingExportHandler)(nil)

// Name implements jobqueue.Handler.
func (h *RecordingExportHandler) Name() string { return RecordingExportJobName }

// Execute creates the video. A job without a recording key or title fails
// without calling the host.
func (h *RecordingExportHandler) Execute(ctx context.Context, job *domain.RecordingExportJob) (jobqueue.Result, error) {
	tr := otel.Tracer("services/RecordingExportHandler")
	ctx, span := tr.Start(ctx, "Execute",
		trace.WithAttributes(
			attribute.String("job.id", job.ID),
			attribute.String("event.id", job.EventID),
		),
	)
	defer span.End()

	if err := validateExportJob(job); err != nil {
		return jobqueue.Result{}, err
	}

	v, err := h.Uploader.Upload(ctx, upload.VideoRequest{
		BlobKey:     job.RecordingKey,
		Name:        job.Title,
		Description: job.Description,
	})
	if err != nil {
		span.RecordError(err)
		return jobqueue.Result{}, fmt.Errorf("upload recording: %w", err)
	}
	return jobqueue.Result{
		Message: "uploaded to " + v.URI,
		Columns: map[string]any{
			"video_uri": v.URI,
			"video_url": v.Link,
		},
	}, nil
}

// AfterSuccess files the video and uploads captions when the job asks for
// them. Errors are returned for logging; the job stays COMPLETED.
func (h *RecordingExportHandler) AfterSuccess(ctx context.Context, job *domain.RecordingExportJob, res jobqueue.Result) error {
	uri, _ := res.Columns["video_uri"].(string)
	if uri == "" {
		return nil
	}
	var errs []error
	if job.FolderID != "" {
		if err := h.Uploader.AddToFolder(ctx, job.FolderID, uri); err != nil {
			errs = append(errs, fmt.Errorf("add to folder %s: %w", job.FolderID, err))
		}
	}
	if job.CaptionsKey != "" {
		lang := h.CaptionsLanguage
		if lang == "" {
			lang = "en"
		}
		if err := h.Uploader.UploadCaptions(ctx, uri, job.CaptionsKey, lang); err != nil {
			errs = append(errs, fmt.Errorf("upload captions: %w", err))
		}
	}
	return errors.Join(errs...)
}

func validateExportJob(job *domain.RecordingExportJob) error {
	if strings.TrimSpace(job.RecordingKey) == "" || strings.TrimSpace(job.Title) == "" {
		return ErrInvalidJob
	}
	return nil
}

// ExportRequest is the payload of a new recording export.
type ExportRequest struct {
	EventID      string `json:"event_id"`
	RecordingKey string `json:"recording_key"`
	CaptionsKey  string `json:"captions_key,omitempty"`
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
	FolderID     string `json:"folder_id,omitempty"`
}

// ExportJobService lists and enqueues export jobs for the admin API.
type ExportJobService struct {
	DB *gorm.DB
}

// Enqueue inserts a NEW export job. The worker picks it up on its next poll.
func (s *ExportJobService) Enqueue(ctx context.Context, req ExportRequest) (*domain.RecordingExportJob, error) {
	ctx, span := otel.Tracer("services/ExportJobService").Start(ctx, "Enqueue",
		trace.WithAttributes(attribute.String("event.id", req.EventID)),
	)
	defer span.End()

	job := &domain.RecordingExportJob{
		JobState:     domain.JobState{ID: uuid.NewString(), JobStatusName: domain.JobStatusNew},
		EventID:      strings.TrimSpace(req.EventID),
		RecordingKey: strings.TrimSpace(req.RecordingKey),
		CaptionsKey:  strings.TrimSpace(req.CaptionsKey),
		Title:        strings.TrimSpace(req.Title),
		Description:  req.Description,
		FolderID:     strings.TrimSpace(req.FolderID),
	}
	if err := validateExportJob(job); err != nil {
		return nil, err
	}
	if err := repo.CreateJob(ctx, s.DB, job); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return job, nil
}

// ListPage returns a page of recording export jobs (most recent first) and
// the total count.
func (s *ExportJobService) ListPage(ctx context.Context, page, pageSize int) ([]domain.RecordingExportJob, int64, error) {
	tr := otel.Tracer("services/ExportJobService")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	pg := utils.Page{Number: page, Size: pageSize}.Clamp(20, 0)

	total, err := repo.CountJobs[domain.RecordingExportJob](ctx, s.DB)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.RecordingExportJob{}, 0, nil
	}
	items, err := repo.ListJobsPage[domain.RecordingExportJob](ctx, s.DB, pg.Offset(), pg.Size)
	return items, total, err
}
