package domain

import "time"

// JobStatus enumerates the states reported by the remote inference capability.
type JobStatus string

const (
	JobStatusStarting   JobStatus = "starting"
	JobStatusProcessing JobStatus = "processing"
	JobStatusSucceeded  JobStatus = "succeeded"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether the job will not change state again.
func (s JobStatus) Terminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed
}

// Job is a normalized snapshot of a remote inference job.
type Job struct {
	ID        string
	Status    JobStatus
	OutputURL string
	Error     string
	CreatedAt time.Time
}
