package db

import (
	"context"
	"time"

	"github.com/guojinxiang/ndvi-time-series/pkg/domain"
)

// ExportInterface is the persistent state of export jobs, shared by the
// web handlers and the export loop. Invocations are time-limited, so the
// job outlives the process working on it; ownership is handed around with
// leases.
type ExportInterface interface {
	// Request files a new export in status requested.
	//
	// Each client may have at most one live export: when one exists,
	// Request returns domain.ErrExportConflict.
	Request(ctx context.Context, ex domain.Export) (domain.Export, error)

	// Get returns the export by id, or domain.ErrMissing.
	Get(ctx context.Context, exportID string) (domain.Export, error)

	// GetLive returns the client's non-terminal export, or
	// domain.ErrMissing when the client has none.
	GetLive(ctx context.Context, clientID string) (domain.Export, error)

	// GetByFilename returns the client's export producing filename,
	// or domain.ErrMissing. Ownership check for file deletion.
	GetByFilename(ctx context.Context, clientID string, filename string) (domain.Export, error)

	// Pick takes the live export whose lease has run out the longest
	// ago, leases it for leaseBudget and passes it to f. The updated
	// export f returns is persisted, and its LeaseUntil schedules the
	// next pick; terminal statuses leave the rotation.
	//
	// The picked row stays locked against other pickers for the whole
	// call. Returns false when nothing was due.
	Pick(
		ctx context.Context,
		leaseBudget time.Duration,
		f func(domain.Export) (domain.Export, error),
	) (bool, error)

	// RequestCancel moves the client's live export to cancel_requested
	// and returns it. Exports still in requested go straight to
	// cancelled. Returns domain.ErrMissing when the client has no
	// live export.
	RequestCancel(ctx context.Context, clientID string) (domain.Export, error)

	// FinishedBefore lists terminal exports last updated before cutoff.
	FinishedBefore(ctx context.Context, cutoff time.Time) ([]domain.Export, error)

	// Delete removes the export row.
	Delete(ctx context.Context, exportID string) error
}
