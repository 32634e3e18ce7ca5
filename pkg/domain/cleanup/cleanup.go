// Package cleanup sweeps everything whose retention ran out: exported
// files on Drive, chart snapshots and settled export rows. The cron
// endpoint and the cleaning loop both drive the same sweep.
package cleanup

import (
	"context"
	"errors"
	"time"

	chartdb "github.com/guojinxiang/ndvi-time-series/pkg/domain/chart/db"
	exportdb "github.com/guojinxiang/ndvi-time-series/pkg/domain/export/db"
	"github.com/guojinxiang/ndvi-time-series/pkg/drive"
)

type Sweeper struct {
	Drive     drive.Service
	Charts    chartdb.ChartInterface
	Exports   exportdb.ExportInterface
	Retention time.Duration

	// Now defaults to time.Now. For tests.
	Now func() time.Time
}

// Report counts what one sweep removed.
type Report struct {
	DriveFiles int `json:"drive_files"`
	Charts     int `json:"charts"`
	Exports    int `json:"exports"`
}

// Sweep removes everything older than the retention period. Partial
// failures do not stop the sweep; they come back joined.
func (s Sweeper) Sweep(ctx context.Context) (Report, error) {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	cutoff := now().Add(-s.Retention)

	report := Report{}
	errs := []error{}

	files, err := s.Drive.FilesOlderThan(ctx, cutoff)
	if err != nil {
		errs = append(errs, err)
	}
	for _, f := range files {
		if err := s.Drive.Delete(ctx, f.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		report.DriveFiles += 1
	}

	purged, err := s.Charts.DeleteExpired(ctx)
	if err != nil {
		errs = append(errs, err)
	}
	report.Charts = purged

	settled, err := s.Exports.FinishedBefore(ctx, cutoff)
	if err != nil {
		errs = append(errs, err)
	}
	for _, ex := range settled {
		if err := s.Exports.Delete(ctx, ex.ExportID); err != nil {
			errs = append(errs, err)
			continue
		}
		report.Exports += 1
	}

	return report, errors.Join(errs...)
}
