package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/guojinxiang/ndvi-time-series/cmd/loops/hook"
	"github.com/guojinxiang/ndvi-time-series/cmd/loops/recurring"
	"github.com/guojinxiang/ndvi-time-series/cmd/loops/tasks/charting"
	"github.com/guojinxiang/ndvi-time-series/cmd/loops/tasks/cleaning"
	"github.com/guojinxiang/ndvi-time-series/cmd/loops/tasks/exporting"
	cfg_hook "github.com/guojinxiang/ndvi-time-series/pkg/configs/hook"
	configs "github.com/guojinxiang/ndvi-time-series/pkg/configs/server"
	"github.com/guojinxiang/ndvi-time-series/pkg/domain"
	chartdb "github.com/guojinxiang/ndvi-time-series/pkg/domain/chart/db"
	"github.com/guojinxiang/ndvi-time-series/pkg/domain/cleanup"
	expdb "github.com/guojinxiang/ndvi-time-series/pkg/domain/export/db"
	"github.com/guojinxiang/ndvi-time-series/pkg/drive"
	"github.com/guojinxiang/ndvi-time-series/pkg/ee"
	"github.com/guojinxiang/ndvi-time-series/pkg/loop"
	"github.com/guojinxiang/ndvi-time-series/pkg/notify"
)

// LoopType selects which loop this process runs.
type LoopType string

const (
	Exporting LoopType = "exporting"
	Charting  LoopType = "charting"
	Cleaning  LoopType = "cleaning"
)

func (t LoopType) String() string {
	return string(t)
}

func AsLoopType(s string) (LoopType, error) {
	switch LoopType(s) {
	case Exporting, Charting, Cleaning:
		return LoopType(s), nil
	}
	return "", fmt.Errorf("unknown loop type: %s (should be one of -- exporting|charting|cleaning)", s)
}

type LoggerOptions func(*log.Logger) *log.Logger

func byLogger(l *log.Logger, opt ...LoggerOptions) *log.Logger {
	for _, o := range opt {
		l = o(l)
	}
	return l
}

func Copied() LoggerOptions {
	return func(l *log.Logger) *log.Logger {
		return log.New(l.Writer(), l.Prefix(), l.Flags())
	}
}

func WithPrefix(pre string) LoggerOptions {
	return func(l *log.Logger) *log.Logger {
		l.SetPrefix(pre)
		return l
	}
}

// Wrapper for monitoring loop tasks.
//
// Logs the start and end of each time a task is executed. Essentially,
// it executes a task.
func monitor[T any](logger *log.Logger, task loop.Task[T]) loop.Task[T] {
	var counter uint64
	return func(ctx context.Context, t T) (ret T, next loop.Next) {
		counter += 1
		timestamp := time.Now()

		logger.Printf("task start: #0x%X: ", counter)

		defer func() {
			logger.Printf(
				"task end: #0x%X (takes %s): %s",
				counter, time.Since(timestamp), next,
			)
		}()

		ret, next = task(ctx, t)
		return
	}
}

// Manifest for starting a loop, which determines how the loop should behave.
type LoopManifest struct {
	Type   LoopType
	Policy recurring.Policy
	Hooks  cfg_hook.Config
}

// Stores is the shared state the loops work on.
type Stores struct {
	Exports   expdb.ExportInterface
	ChartJobs chartdb.ChartJobInterface
	Charts    chartdb.ChartInterface
}

// Services are the remote ends the loops talk to.
type Services struct {
	EE        ee.Client
	Drive     drive.Service
	Messenger notify.Messenger
}

func mergeEmptyStruct(a, b struct{}) struct{} {
	return struct{}{}
}

func StartLoop(
	ctx context.Context,
	logger *log.Logger,
	conf *configs.Config,
	stores Stores,
	services Services,
	manifest LoopManifest,
) error {
	switch manifest.Type {
	case Exporting:
		_, err := loop.Start(
			ctx, exporting.Seed(),
			monitor(
				byLogger(logger, Copied(), WithPrefix("[exporting loop]")),
				exporting.Task(
					stores.Exports,
					services.EE,
					services.Drive,
					services.Messenger,
					conf.Export,
					hook.Build[domain.Export](manifest.Hooks.Exporting, mergeEmptyStruct),
				).Applied(manifest.Policy),
			),
			loop.WithTimeout(conf.Export.LeaseBudget.AsDuration()),
		)
		return err

	case Charting:
		_, err := loop.Start(
			ctx, charting.Seed(),
			monitor(
				byLogger(logger, Copied(), WithPrefix("[charting loop]")),
				charting.Task(
					stores.ChartJobs,
					stores.Charts,
					services.EE,
					services.Messenger,
					conf.Chart,
					hook.Build[domain.ChartJob](manifest.Hooks.Charting, mergeEmptyStruct),
				).Applied(manifest.Policy),
			),
			loop.WithTimeout(conf.Chart.LeaseBudget.AsDuration()),
		)
		return err

	case Cleaning:
		_, err := loop.Start(
			ctx, cleaning.Seed(),
			monitor(
				byLogger(logger, Copied(), WithPrefix("[cleaning loop]")),
				cleaning.Task(
					byLogger(logger, Copied(), WithPrefix("[cleaning loop]")),
					cleanup.Sweeper{
						Drive:     services.Drive,
						Charts:    stores.Charts,
						Exports:   stores.Exports,
						Retention: conf.Export.Retention.AsDuration(),
					},
				).Applied(manifest.Policy),
			),
		)
		return err
	}

	return fmt.Errorf("unknown loop type: %s", manifest.Type)
}
