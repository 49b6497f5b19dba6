package store

import "time"

// DownloadLink is one result control shown for a completed run.
type DownloadLink struct {
	// Label is the human-readable caption, e.g. "Download Report 1".
	Label string `json:"label"`

	// URL is the resolved locator the control fetches.
	URL string `json:"url"`
}

// RunStatus is the latest view of a single workflow run.
//
// RunStatus is the storage representation used by the REST API and SSE
// stream. It is decoupled from the workflow's own types so the wire format
// can evolve independently.
type RunStatus struct {
	// RunID identifies the run; updates with the same RunID replace each other.
	RunID string `json:"run_id"`

	// TaskID is the server-assigned task handle, empty until the upload succeeds.
	TaskID string `json:"task_id,omitempty"`

	// State is one of "idle", "uploading", "processing", "completed", "failed".
	State string `json:"state"`

	// Files is the number of files in the submitted batch.
	Files int `json:"files"`

	// UploadPercent is the upload progress in [0,100].
	UploadPercent int `json:"upload_percent"`

	// Processed and Total are the server-reported processing counts.
	Processed int `json:"processed"`
	Total     int `json:"total"`

	// Downloads lists result controls, in server order, once completed.
	Downloads []DownloadLink `json:"downloads,omitempty"`

	// Error is the user-facing message of a failed or rejected run.
	Error *string `json:"error"`

	// StartedAt and UpdatedAt bound the run's lifetime so far.
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store defines the interface for storing and subscribing to run updates.
//
// Store implementations must be safe for concurrent access. The pub/sub
// mechanism allows real-time updates to be pushed to connected clients
// (e.g., via Server-Sent Events).
type Store interface {
	// Update stores a run status and notifies all subscribers.
	// The status is keyed by RunID, so subsequent updates replace previous values.
	Update(status RunStatus)

	// Get returns the stored status for a run.
	Get(runID string) (RunStatus, bool)

	// GetAll returns all currently stored runs, oldest first.
	// The returned slice is a snapshot; modifications do not affect the store.
	GetAll() []RunStatus

	// Subscribe returns a channel that receives run updates.
	// The returned channel has a buffer; slow consumers may miss updates.
	// Caller must call Unsubscribe when done to prevent resource leaks.
	Subscribe() <-chan RunStatus

	// Unsubscribe removes a subscription and closes the channel.
	// Safe to call with a channel that was already unsubscribed.
	Unsubscribe(ch <-chan RunStatus)
}
