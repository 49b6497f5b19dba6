package pdfxl

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/google/uuid"
)

// ProgressEvent reports upload progress for a run.
type ProgressEvent struct {
	RunID string

	// Files is the number of files in the batch.
	Files int

	// Percent is in [0, 100] and never decreases within a run.
	Percent int

	// Sent and Total are request body byte counts.
	Sent  int64
	Total int64
}

// StatusEvent reports the start of processing and every successful status
// check. The first event of a run is sent when the upload succeeds, with
// Attempt 0 and a zero Snapshot.
type StatusEvent struct {
	RunID      string
	TaskHandle TaskHandle
	Snapshot   ProgressSnapshot

	// Attempt is the 1-based poll number within the run, or 0 for the
	// processing-start event.
	Attempt int
}

// Sink receives the observable events of a [Workflow].
//
// For every Submit that is not rejected with [ErrBusy], OnTerminal is called
// exactly once and is the last call for that run. Rejected batches produce
// an OnTerminal with [StateIdle] and a [KindValidation] error.
//
// Sink methods are called synchronously from the workflow's goroutines, one
// at a time per run. A panicking sink is logged and otherwise ignored.
type Sink interface {
	OnProgress(ProgressEvent)
	OnStatus(StatusEvent)
	OnTerminal(Result)
}

// SinkFuncs adapts plain functions to [Sink]. Nil fields are skipped.
type SinkFuncs struct {
	Progress func(ProgressEvent)
	Status   func(StatusEvent)
	Terminal func(Result)
}

func (f SinkFuncs) OnProgress(e ProgressEvent) {
	if f.Progress != nil {
		f.Progress(e)
	}
}

func (f SinkFuncs) OnStatus(e StatusEvent) {
	if f.Status != nil {
		f.Status(e)
	}
}

func (f SinkFuncs) OnTerminal(r Result) {
	if f.Terminal != nil {
		f.Terminal(r)
	}
}

// sinks fans events out to every registered sink with panic recovery.
type sinks struct {
	list   []Sink
	logger *slog.Logger
}

func (s sinks) progress(e ProgressEvent) {
	for _, sink := range s.list {
		s.invokeSafe("OnProgress", e.RunID, func() { sink.OnProgress(e) })
	}
}

func (s sinks) status(e StatusEvent) {
	for _, sink := range s.list {
		s.invokeSafe("OnStatus", e.RunID, func() { sink.OnStatus(e) })
	}
}

func (s sinks) terminal(r Result) {
	for _, sink := range s.list {
		s.invokeSafe("OnTerminal", r.RunID, func() { sink.OnTerminal(r) })
	}
}

// invokeSafe calls a sink method with panic recovery.
// Panics are logged with a correlation ID but do not propagate.
func (s sinks) invokeSafe(method, runID string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("sink panicked",
				"correlation_id", uuid.NewString(),
				"method", method,
				"run_id", runID,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	fn()
}
