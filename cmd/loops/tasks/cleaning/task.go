// Package cleaning runs the retention sweep on a schedule.
package cleaning

import (
	"context"
	"log"

	"github.com/guojinxiang/ndvi-time-series/cmd/loops/recurring"
	"github.com/guojinxiang/ndvi-time-series/pkg/domain/cleanup"
)

// initial value for task
func Seed() any {
	return nil
}

// return:
//
// - task: remove everything whose retention ran out. One sweep per
// cycle; the policy cooldown paces it.
func Task(logger *log.Logger, sweeper cleanup.Sweeper) recurring.Task[any] {
	return func(ctx context.Context, value any) (any, bool, error) {
		report, err := sweeper.Sweep(ctx)
		if err != nil {
			// partial failures are worth a log line, not a crash of
			// the loop
			logger.Printf("sweep finished with errors: %s", err)
		}
		logger.Printf(
			"swept: %d drive files, %d charts, %d exports",
			report.DriveFiles, report.Charts, report.Exports,
		)

		swept := 0 < report.DriveFiles+report.Charts+report.Exports
		return value, swept, nil
	}
}
