package db

import (
	"context"
	"time"

	"github.com/guojinxiang/ndvi-time-series/pkg/domain"
)

// ChartJobInterface queues chart requests for the chart loop.
type ChartJobInterface interface {
	// Request files a new chart job in status requested.
	Request(ctx context.Context, job domain.ChartJob) (domain.ChartJob, error)

	// Pick takes the oldest requested job whose lease has run out,
	// leases it for leaseBudget and passes it to f. The status f
	// returns is persisted; done and failed jobs are removed.
	//
	// Returns false when nothing was due.
	Pick(
		ctx context.Context,
		leaseBudget time.Duration,
		f func(domain.ChartJob) (domain.ChartJob, error),
	) (bool, error)
}

// ChartInterface keeps rendered charts for the fullscreen chart page.
type ChartInterface interface {
	// Put stores the snapshot, replacing any previous one with the
	// same chart id.
	Put(ctx context.Context, snapshot domain.ChartSnapshot) error

	// Get returns the snapshot by chart id, or domain.ErrMissing.
	// Expired snapshots count as missing.
	Get(ctx context.Context, chartID string) (domain.ChartSnapshot, error)

	// DeleteExpired purges expired snapshots and reports how many.
	DeleteExpired(ctx context.Context) (int, error)
}
