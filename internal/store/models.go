package store

import (
	"encoding/json"
	"time"
)

// Submission is one analyze request and its outcome.
type Submission struct {
	ID        string          `json:"id"`
	RunID     string          `json:"run_id"`
	AppName   string          `json:"app_name"`
	Status    string          `json:"status"`
	Cached    bool            `json:"cached"`
	Request   json.RawMessage `json:"request"`
	Report    json.RawMessage `json:"report,omitempty"`
	Steps     json.RawMessage `json:"steps,omitempty"`
	Markdown  string          `json:"-"`
	CreatedAt time.Time       `json:"created_at"`
}

// SubmissionSummary is the listing view of a submission.
type SubmissionSummary struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id"`
	AppName   string    `json:"app_name"`
	Status    string    `json:"status"`
	Cached    bool      `json:"cached"`
	CreatedAt time.Time `json:"created_at"`
}
