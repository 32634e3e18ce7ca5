// Package exporting drives export jobs end to end: submit requested
// jobs to the compute service, poll running tasks, publish finished
// rasters on Drive and settle the job row.
//
// Each cycle picks at most one due job; the lease on the row hands the
// job over to whichever invocation runs next, so no single process has
// to outlive the remote task.
package exporting

import (
	"context"
	"fmt"
	"time"

	"github.com/guojinxiang/ndvi-time-series/cmd/loops/hook"
	"github.com/guojinxiang/ndvi-time-series/cmd/loops/recurring"
	configs "github.com/guojinxiang/ndvi-time-series/pkg/configs/server"
	"github.com/guojinxiang/ndvi-time-series/pkg/domain"
	expdb "github.com/guojinxiang/ndvi-time-series/pkg/domain/export/db"
	"github.com/guojinxiang/ndvi-time-series/pkg/drive"
	"github.com/guojinxiang/ndvi-time-series/pkg/ee"
	"github.com/guojinxiang/ndvi-time-series/pkg/ee/image"
	"github.com/guojinxiang/ndvi-time-series/pkg/notify"
)

// initial value for task
func Seed() any {
	return nil
}

func Task(
	exports expdb.ExportInterface,
	client ee.Client,
	dr drive.Service,
	messenger notify.Messenger,
	conf configs.ExportConfig,
	hooks hook.Hook[domain.Export, struct{}],
) recurring.Task[any] {
	p := processor{
		client:    client,
		drive:     dr,
		messenger: messenger,
		conf:      conf,
		hooks:     hooks,
	}
	return func(ctx context.Context, value any) (any, bool, error) {
		picked, err := exports.Pick(
			ctx, conf.LeaseBudget.AsDuration(),
			func(ex domain.Export) (domain.Export, error) {
				return p.process(ctx, ex)
			},
		)
		return value, picked, err
	}
}

type processor struct {
	client    ee.Client
	drive     drive.Service
	messenger notify.Messenger
	conf      configs.ExportConfig
	hooks     hook.Hook[domain.Export, struct{}]
}

func (p processor) process(ctx context.Context, ex domain.Export) (domain.Export, error) {
	if _, err := p.hooks.Before(ex); err != nil {
		return ex, err
	}

	var updated domain.Export
	switch ex.Status {
	case domain.ExportRequested:
		updated = p.submit(ctx, ex)
	case domain.ExportStarted:
		updated = p.poll(ctx, ex)
	case domain.ExportCancelRequested:
		updated = p.cancel(ctx, ex)
	default:
		updated = ex
	}

	if updated.Status != ex.Status {
		if err := p.hooks.After(updated); err != nil {
			return updated, err
		}
	}
	return updated, nil
}

// submit starts the remote task for a requested export.
func (p processor) submit(ctx context.Context, ex domain.Export) domain.Export {
	size, err := image.Size(ex.Options, image.ByRegion)
	if err != nil {
		return p.fail(ctx, ex, err.Error())
	}
	raw, err := p.client.Value(ctx, size)
	if err != nil {
		return p.later(ctx, ex, fmt.Sprintf("could not reach the compute service: %s", err))
	}
	n, err := ee.DecodeInt(raw)
	if err != nil {
		return p.fail(ctx, ex, err.Error())
	}
	if n == 0 {
		return p.fail(ctx, ex, "no images match these options")
	}

	img, err := image.Clipped(ex.Options)
	if err != nil {
		return p.fail(ctx, ex, err.Error())
	}

	taskID, err := p.client.NewTaskID(ctx)
	if err != nil {
		return p.later(ctx, ex, fmt.Sprintf("could not allocate a task: %s", err))
	}
	err = p.client.StartExport(ctx, taskID, img, ee.ExportSpec{
		Description:    ex.Filename,
		FilenamePrefix: ex.Filename,
		Scale:          p.conf.Scale,
		MaxPixels:      p.conf.MaxPixels,
	})
	if err != nil {
		return p.later(ctx, ex, fmt.Sprintf("could not start the export: %s", err))
	}

	ex.Status = domain.ExportStarted
	ex.TaskID = taskID
	ex.Message = fmt.Sprintf("Export started over %d images.", n)
	ex.LeaseUntil = time.Now().Add(p.conf.PollInterval.AsDuration())
	p.notify(ctx, ex, domain.StyleInfo, ex.Message, "")
	return ex
}

// poll follows the remote task of a started export.
func (p processor) poll(ctx context.Context, ex domain.Export) domain.Export {
	status, err := p.client.TaskStatus(ctx, ex.TaskID)
	if err != nil {
		return p.later(ctx, ex, fmt.Sprintf("could not poll the task: %s", err))
	}
	ex.Polls += 1

	switch status.State {
	case ee.Completed:
		return p.publish(ctx, ex)
	case ee.Failed:
		msg := status.ErrorMessage
		if msg == "" {
			msg = "the compute service reported a failure"
		}
		return p.fail(ctx, ex, msg)
	case ee.Cancelled, ee.CancelRequested:
		ex.Status = domain.ExportCancelled
		ex.Message = "Export cancelled."
		p.notify(ctx, ex, domain.StyleWarning, ex.Message, "")
		return ex
	default: // READY, RUNNING, UNKNOWN
		ex.Message = fmt.Sprintf("Export running. (poll #%d)", ex.Polls)
		ex.LeaseUntil = time.Now().Add(p.conf.PollInterval.AsDuration())
		cancelLink := fmt.Sprintf("/clean?task=%s&client_id=%s", ex.TaskID, ex.ClientID)
		p.notify(ctx, ex, domain.StyleInfo, ex.Message, cancelLink)
		return ex
	}
}

// cancel pushes the user's cancellation to the remote task and waits
// for it to settle. A task can still complete past the request.
func (p processor) cancel(ctx context.Context, ex domain.Export) domain.Export {
	if ex.TaskID == "" {
		ex.Status = domain.ExportCancelled
		ex.Message = "Export cancelled."
		p.notify(ctx, ex, domain.StyleWarning, ex.Message, "")
		return ex
	}

	status, err := p.client.TaskStatus(ctx, ex.TaskID)
	if err != nil {
		return p.later(ctx, ex, fmt.Sprintf("could not poll the task: %s", err))
	}
	ex.Polls += 1

	switch status.State {
	case ee.Completed:
		return p.publish(ctx, ex)
	case ee.Cancelled, ee.CancelRequested, ee.Failed:
		ex.Status = domain.ExportCancelled
		ex.Message = "Export cancelled."
		p.notify(ctx, ex, domain.StyleWarning, ex.Message, "")
		return ex
	default:
		if err := p.client.CancelTask(ctx, ex.TaskID); err != nil {
			return p.later(ctx, ex, fmt.Sprintf("could not cancel the task: %s", err))
		}
		ex.Message = "Cancelling the export..."
		ex.LeaseUntil = time.Now().Add(p.conf.PollInterval.AsDuration())
		p.notify(ctx, ex, domain.StyleWarning, ex.Message, "")
		return ex
	}
}

// publish makes the produced files reachable and settles the job.
//
// The service writes one file for small regions and several parts for
// large ones; parts are gathered into a folder named after the export.
func (p processor) publish(ctx context.Context, ex domain.Export) domain.Export {
	files, err := p.drive.FilesByPrefix(ctx, ex.Filename)
	if err != nil {
		return p.later(ctx, ex, fmt.Sprintf("could not list the produced files: %s", err))
	}
	if len(files) == 0 {
		// the task is done but Drive has not caught up yet
		ex.Message = "Waiting for the produced files to appear..."
		ex.LeaseUntil = time.Now().Add(p.conf.PollInterval.AsDuration())
		p.notify(ctx, ex, domain.StyleInfo, ex.Message, "")
		return ex
	}

	link := ""
	if len(files) == 1 {
		if err := p.drive.Publish(ctx, files[0].ID); err != nil {
			return p.later(ctx, ex, fmt.Sprintf("could not publish the file: %s", err))
		}
		link = files[0].ViewLink
	} else {
		folder, err := p.drive.CreateFolder(ctx, ex.Filename)
		if err != nil {
			return p.later(ctx, ex, fmt.Sprintf("could not gather the parts: %s", err))
		}
		for i, f := range files {
			if err := p.drive.Rename(ctx, f.ID, fmt.Sprintf("%s_part_%d.tif", ex.Filename, i+1)); err != nil {
				return p.later(ctx, ex, fmt.Sprintf("could not gather the parts: %s", err))
			}
			if err := p.drive.MoveToFolder(ctx, f.ID, folder.ID); err != nil {
				return p.later(ctx, ex, fmt.Sprintf("could not gather the parts: %s", err))
			}
		}
		if err := p.drive.Publish(ctx, folder.ID); err != nil {
			return p.later(ctx, ex, fmt.Sprintf("could not publish the folder: %s", err))
		}
		link = folder.ViewLink
	}

	ex.Status = domain.ExportDone
	ex.Message = fmt.Sprintf(
		"Export finished. The files stay for %s.", p.conf.Retention.AsDuration(),
	)
	p.notify(ctx, ex, domain.StyleSuccess, ex.Message, link)
	return ex
}

// fail settles the job as failed and tells the client.
func (p processor) fail(ctx context.Context, ex domain.Export, reason string) domain.Export {
	ex.Status = domain.ExportFailed
	ex.Message = reason
	p.notify(ctx, ex, domain.StyleDanger, "Export failed.", reason)
	return ex
}

// later keeps the job as is and retries after the poll interval.
func (p processor) later(ctx context.Context, ex domain.Export, note string) domain.Export {
	ex.Message = note
	ex.LeaseUntil = time.Now().Add(p.conf.PollInterval.AsDuration())
	return ex
}

func (p processor) notify(
	ctx context.Context, ex domain.Export, style domain.MessageStyle, line1, line2 string,
) {
	p.messenger.Send(ctx, ex.ClientID, domain.Message{
		ID:    "export-" + ex.Filename,
		Style: style,
		Line1: line1,
		Line2: line2,
	})
}
