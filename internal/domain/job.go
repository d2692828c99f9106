package domain

import (
	"fmt"
	"time"
)

// Operation names a job kind the orchestrator accepts.
type Operation string

const (
	OpDailyUpdate    Operation = "daily-update"
	OpFullCrawl      Operation = "full-crawl"
	OpProcessContent Operation = "process-content"
	OpReprocess      Operation = "reprocess-low-quality"
	// OpCustomCrawl is the ad-hoc single-target crawl. It is started through
	// its own entry point and never parsed from a request.
	OpCustomCrawl Operation = "custom-crawl"
)

// ParseOperation validates an operation name submitted by a caller.
func ParseOperation(s string) (Operation, error) {
	switch op := Operation(s); op {
	case OpDailyUpdate, OpFullCrawl, OpProcessContent, OpReprocess:
		return op, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidOperation, s)
	}
}

// JobStatus is the lifecycle state of a job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// CustomCrawlKind selects the ad-hoc crawl target.
type CustomCrawlKind string

const (
	CustomBlog     CustomCrawlKind = "blog"
	CustomVideo    CustomCrawlKind = "video"
	CustomPlaylist CustomCrawlKind = "playlist"
)

// ParseCustomCrawlKind validates the ad-hoc target kind.
func ParseCustomCrawlKind(s string) (CustomCrawlKind, error) {
	switch k := CustomCrawlKind(s); k {
	case CustomBlog, CustomVideo, CustomPlaylist:
		return k, nil
	default:
		return "", fmt.Errorf("%w: unknown crawl type %q", ErrInvalidOperation, s)
	}
}

// CustomCrawlRequest is the input of an ad-hoc crawl.
type CustomCrawlRequest struct {
	Kind CustomCrawlKind `json:"type"`
	// Target is a blog post URL, a video URL or id, or a playlist URL or id.
	Target string `json:"target"`
	Limit  int    `json:"limit,omitempty"`
	// DryRun returns the parsed candidates without storing them.
	DryRun bool `json:"dry_run,omitempty"`
}

// CrawlJob is one invocation of an operation. Copies handed to callers are
// snapshots; mutate only through the job store.
type CrawlJob struct {
	ID         string      `json:"id"`
	Operation  Operation   `json:"operation"`
	Status     JobStatus   `json:"status"`
	Progress   int         `json:"progress"`
	Message    string      `json:"message"`
	Stage      string      `json:"stage,omitempty"`
	Stats      *JobStats   `json:"stats,omitempty"`
	Result     []Candidate `json:"result,omitempty"`
	Error      string      `json:"error,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	StartedAt  *time.Time  `json:"started_at,omitempty"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
}

// Clone returns a deep copy that shares no mutable state with j.
func (j *CrawlJob) Clone() *CrawlJob {
	if j == nil {
		return nil
	}
	out := *j
	out.Stats = j.Stats.Clone()
	if j.Result != nil {
		out.Result = append([]Candidate(nil), j.Result...)
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		out.StartedAt = &t
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		out.FinishedAt = &t
	}
	return &out
}

// Duration is the elapsed run time, or zero when the job never started.
func (j *CrawlJob) Duration(now time.Time) time.Duration {
	if j.StartedAt == nil {
		return 0
	}
	end := now
	if j.FinishedAt != nil {
		end = *j.FinishedAt
	}
	return end.Sub(*j.StartedAt)
}
