// Package domain defines the core persistence models for the application.
// This file holds the job-table models driven by the claim/execute/finalize
// worker.
package domain

import "time"

// JobStatus is the lifecycle state of a queued job row.
type JobStatus string

const (
	JobStatusNew        JobStatus = "NEW"
	JobStatusInProgress JobStatus = "IN_PROGRESS"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
)

// Terminal reports whether no further transition is allowed from s.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// JobState is the column set shared by every job table. Job models embed it
// so the generic worker can select, claim and finalize rows regardless of
// their payload columns.
//
// Only NEW rows may move to IN_PROGRESS, and each claim increments
// RetriesCount exactly once.
type JobState struct {
	ID            string    `json:"id"              gorm:"type:char(36);primaryKey"`
	JobStatusName JobStatus `json:"job_status_name" gorm:"type:varchar(16);not null;default:'NEW';index:idx_job_status_created,priority:1"`
	RetriesCount  int       `json:"retries_count"   gorm:"not null;default:0"`
	Message       string    `json:"message"         gorm:"type:text"`
	CreatedAt     time.Time `json:"created_at"      gorm:"index:idx_job_status_created,priority:2"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// State exposes the shared job columns.
func (s *JobState) State() *JobState { return s }

// RecordingExportJob uploads a finished recording to the external video host.
//
// Payload fields reference blobs by opaque key; result fields are written by
// the worker on success.
type RecordingExportJob struct {
	JobState

	EventID      string `json:"event_id"                gorm:"type:char(36);index"`
	RecordingKey string `json:"recording_key"           gorm:"type:varchar(1024);not null"`
	CaptionsKey  string `json:"captions_key,omitempty"  gorm:"type:varchar(1024)"`
	Title        string `json:"title"                   gorm:"type:varchar(255);not null"`
	Description  string `json:"description,omitempty"   gorm:"type:text"`
	FolderID     string `json:"folder_id,omitempty"     gorm:"type:varchar(255)"`

	VideoURI string `json:"video_uri,omitempty" gorm:"type:varchar(1024)"`
	VideoURL string `json:"video_url,omitempty" gorm:"type:varchar(1024)"`
}

// TableName returns the database table name for RecordingExportJob.
func (RecordingExportJob) TableName() string { return "recording_export_jobs" }
