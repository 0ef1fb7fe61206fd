package models

import "time"

// NormalizationJob records that a one-time backfill ran for a user.
type NormalizationJob struct {
	ID             string     `json:"id" db:"id"`
	UserID         string     `json:"user_id" db:"user_id"`
	JobKey         string     `json:"job_key" db:"job_key"`
	StartedAt      time.Time  `json:"started_at" db:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	ProcessedCount int        `json:"processed_count" db:"processed_count"`
}

func (j *NormalizationJob) IsCompleted() bool {
	return j.CompletedAt != nil
}
