package domain

import (
	"fmt"
	"time"
)

// ExportStatus is the lifecycle state of an export job.
//
// requested -> started -> done
//
//	\-> cancel_requested -> cancelled
//	 \-> failed (from any live state)
type ExportStatus string

const (
	// accepted, waiting for a loop to submit it to the compute service
	ExportRequested ExportStatus = "requested"

	// remote task is running and being polled
	ExportStarted ExportStatus = "started"

	// user asked to cancel; remote cancellation sent
	ExportCancelRequested ExportStatus = "cancel_requested"

	ExportDone      ExportStatus = "done"
	ExportFailed    ExportStatus = "failed"
	ExportCancelled ExportStatus = "cancelled"
)

func AsExportStatus(s string) (ExportStatus, error) {
	switch ExportStatus(s) {
	case ExportRequested, ExportStarted, ExportCancelRequested,
		ExportDone, ExportFailed, ExportCancelled:
		return ExportStatus(s), nil
	}
	return "", fmt.Errorf(`unknown export status: "%s"`, s)
}

// true when the status is a final one: the export holds no remote task
// and does not block the client from starting a new export.
func (s ExportStatus) IsTerminal() bool {
	switch s {
	case ExportDone, ExportFailed, ExportCancelled:
		return true
	}
	return false
}

// CanTransit returns true when this status may change into next.
func (s ExportStatus) CanTransit(next ExportStatus) bool {
	if s.IsTerminal() {
		return false
	}
	switch s {
	case ExportRequested:
		return next == ExportStarted || next == ExportFailed || next == ExportCancelled
	case ExportStarted:
		return next == ExportCancelRequested || next.IsTerminal()
	case ExportCancelRequested:
		return next == ExportCancelled || next == ExportFailed || next == ExportDone
	}
	return false
}

// Export is a raster export job and its reconciled state.
type Export struct {
	ExportID string
	ClientID string
	Filename string
	Options  Options
	Status   ExportStatus

	// id of the task on the compute service. Empty until submitted.
	TaskID string

	// how many status polls have happened, across hand-offs
	Polls int

	// the row is owned by a loop cycle until this instant
	LeaseUntil time.Time

	// last error or progress note, user-facing
	Message string

	Created time.Time
	Updated time.Time
}

// Equal ignores timestamps: two snapshots of the same export are equal
// when nothing the lifecycle cares about has changed.
func (e Export) Equal(o Export) bool {
	return e.ExportID == o.ExportID &&
		e.ClientID == o.ClientID &&
		e.Filename == o.Filename &&
		e.Status == o.Status &&
		e.TaskID == o.TaskID &&
		e.Polls == o.Polls
}
