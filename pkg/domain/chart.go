package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// ChartJobStatus is the lifecycle state of an asynchronous chart job.
type ChartJobStatus string

const (
	ChartRequested ChartJobStatus = "requested"
	ChartDone      ChartJobStatus = "done"
	ChartFailed    ChartJobStatus = "failed"
)

func AsChartJobStatus(s string) (ChartJobStatus, error) {
	switch ChartJobStatus(s) {
	case ChartRequested, ChartDone, ChartFailed:
		return ChartJobStatus(s), nil
	}
	return "", fmt.Errorf(`unknown chart job status: "%s"`, s)
}

// ChartJob is a queued request to render an NDVI chart for a point.
type ChartJob struct {
	JobID      string
	ClientID   string
	Options    Options
	Status     ChartJobStatus
	LeaseUntil time.Time
	Created    time.Time
}

// ChartSnapshot is a rendered chart kept for the fullscreen view.
// Snapshots expire; the cleaning loop purges them.
type ChartSnapshot struct {
	ChartID   string
	Payload   json.RawMessage
	ExpiresAt time.Time
}
