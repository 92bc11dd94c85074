package jobs

import "time"

type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

const (
	SourceManual = "manual"
	SourceRetry  = "retry"
)

type EnqueueRequest struct {
	Source    string
	DedupeKey string
	Payload   ImportPayload
}

// ImportPayload describes one import. Either SourceURL or FilePath is set;
// FilePath points at an upload kept on disk until the job is pruned.
type ImportPayload struct {
	SourceURL string `json:"source_url,omitempty"`
	Title     string `json:"title,omitempty"`
	FileName  string `json:"file_name,omitempty"`
	FilePath  string `json:"file_path,omitempty"`
}

func (p ImportPayload) IsUpload() bool {
	return p.FilePath != ""
}

type ImportJob struct {
	ID        string        `json:"id"`
	Source    string        `json:"source"`
	DedupeKey string        `json:"dedupe_key"`
	Payload   ImportPayload `json:"payload"`
	Status    Status        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Error     string        `json:"error,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

func (j *ImportJob) Terminal() bool {
	return j.Status == StatusSuccess || j.Status == StatusFailed
}
