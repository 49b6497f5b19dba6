package pdfxl

import (
	"strconv"
	"time"
)

// State is the lifecycle phase of a [Workflow].
//
// A workflow moves Idle → Uploading → Processing and ends in either
// [StateCompleted] or [StateFailed]. A rejected submission (empty batch,
// disallowed file) never leaves [StateIdle].
type State string

const (
	// StateIdle means no submission is in progress.
	StateIdle State = "idle"

	// StateUploading means the batch request is in flight.
	StateUploading State = "uploading"

	// StateProcessing means the server accepted the batch and the status
	// endpoint is being polled.
	StateProcessing State = "processing"

	// StateCompleted means the server reported done=true.
	StateCompleted State = "completed"

	// StateFailed means the run ended on an error. See [Result.Err].
	StateFailed State = "failed"
)

// String returns the string representation of the state.
func (s State) String() string {
	return string(s)
}

// Terminal reports whether s ends a run.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// TaskHandle is the opaque identifier the server returns for an accepted
// batch. It is the only key used to correlate status checks.
type TaskHandle string

// ProgressSnapshot is one decoded status response.
type ProgressSnapshot struct {
	// Processed is the number of files the server has finished.
	Processed int `json:"processed"`

	// Total is the number of files in the batch.
	Total int `json:"total"`

	// Done is true once the server has finished the whole batch.
	Done bool `json:"done"`

	// Downloads holds one result locator per produced workbook, in server
	// order. Always empty while Done is false.
	Downloads []string `json:"downloads,omitempty"`
}

// Download is a retrievable conversion result.
type Download struct {
	// Index is the 1-based position in the server's downloads list.
	Index int

	// Locator is the entry exactly as the server sent it.
	Locator string

	// URL is Locator resolved against the server base URL. It is empty when
	// the locator is not an http(s) URL or path, e.g. "javascript:...".
	URL string
}

// Label returns the display name used for numbered result cards.
func (d Download) Label() string {
	return "Download Report " + strconv.Itoa(d.Index)
}

// Result is the outcome of one [Workflow.Submit] call.
type Result struct {
	// RunID identifies the run in logs, sinks and the dashboard.
	RunID string

	// State is the final state: [StateCompleted], [StateFailed], or
	// [StateIdle] when the batch was rejected before any network call.
	State State

	// TaskHandle is the handle the server assigned, empty if the upload
	// never succeeded.
	TaskHandle TaskHandle

	// Snapshot is the last status response received.
	Snapshot ProgressSnapshot

	// Downloads lists the results of a completed run in server order.
	Downloads []Download

	// Err is non-nil unless State is [StateCompleted]. It is always an *Error.
	Err error

	// UploadedBytes is the size of the submitted request body.
	UploadedBytes int64

	// Polls is the number of status checks issued.
	Polls int

	// Duration is the wall time from submission to the terminal state.
	Duration time.Duration
}
