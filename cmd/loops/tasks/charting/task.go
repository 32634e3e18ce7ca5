// Package charting renders queued chart jobs: sample the NDVI series at
// the selected point, fit the harmonic overlay where the model wants
// one, and keep the result as a snapshot the chart page serves.
package charting

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/guojinxiang/ndvi-time-series/cmd/loops/hook"
	"github.com/guojinxiang/ndvi-time-series/cmd/loops/recurring"
	"github.com/guojinxiang/ndvi-time-series/pkg/chart"
	configs "github.com/guojinxiang/ndvi-time-series/pkg/configs/server"
	"github.com/guojinxiang/ndvi-time-series/pkg/domain"
	chartdb "github.com/guojinxiang/ndvi-time-series/pkg/domain/chart/db"
	"github.com/guojinxiang/ndvi-time-series/pkg/ee"
	"github.com/guojinxiang/ndvi-time-series/pkg/ee/image"
	"github.com/guojinxiang/ndvi-time-series/pkg/notify"
)

// initial value for task
func Seed() any {
	return nil
}

func Task(
	jobs chartdb.ChartJobInterface,
	charts chartdb.ChartInterface,
	client ee.Client,
	messenger notify.Messenger,
	conf configs.ChartConfig,
	hooks hook.Hook[domain.ChartJob, struct{}],
) recurring.Task[any] {
	r := renderer{
		charts:    charts,
		client:    client,
		messenger: messenger,
		conf:      conf,
	}
	return func(ctx context.Context, value any) (any, bool, error) {
		picked, err := jobs.Pick(
			ctx, conf.LeaseBudget.AsDuration(),
			func(job domain.ChartJob) (domain.ChartJob, error) {
				if _, err := hooks.Before(job); err != nil {
					return job, err
				}
				job = r.render(ctx, job)
				if err := hooks.After(job); err != nil {
					return job, err
				}
				return job, nil
			},
		)
		return value, picked, err
	}
}

type renderer struct {
	charts    chartdb.ChartInterface
	client    ee.Client
	messenger notify.Messenger
	conf      configs.ChartConfig
}

func (r renderer) render(ctx context.Context, job domain.ChartJob) domain.ChartJob {
	samples, err := r.series(ctx, job.Options)
	if err != nil {
		return r.fail(ctx, job, err)
	}
	if len(samples) == 0 {
		return r.fail(ctx, job, fmt.Errorf("no images match these options"))
	}

	coefficients := map[string]float64{}
	if job.Options.Regression == domain.ZhuWood {
		// the harmonic overlay needs the fit at the point itself
		coefficients, err = r.coefficients(ctx, job.Options)
		if err != nil {
			return r.fail(ctx, job, err)
		}
	}

	payload, err := json.Marshal(chart.Build(job.Options, samples, coefficients))
	if err != nil {
		return r.fail(ctx, job, err)
	}

	err = r.charts.Put(ctx, domain.ChartSnapshot{
		ChartID:   job.JobID,
		Payload:   payload,
		ExpiresAt: time.Now().Add(r.conf.SnapshotTTL.AsDuration()),
	})
	if err != nil {
		return r.fail(ctx, job, err)
	}

	job.Status = domain.ChartDone
	r.messenger.Send(ctx, job.ClientID, domain.Message{
		ID:    "chart-" + job.JobID,
		Style: domain.StyleSuccess,
		Line1: fmt.Sprintf("Your chart is ready. (%d observations)", len(samples)),
		Line2: "/chart?id=" + job.JobID,
	})
	return job
}

func (r renderer) series(ctx context.Context, opts domain.Options) ([]ee.Sample, error) {
	node, err := image.ChartSeries(opts, r.conf.Scale)
	if err != nil {
		return nil, err
	}
	raw, err := r.client.Value(ctx, node)
	if err != nil {
		return nil, err
	}
	return ee.DecodeSeries(raw)
}

func (r renderer) coefficients(ctx context.Context, opts domain.Options) (map[string]float64, error) {
	node, err := image.PointCoefficients(opts, r.conf.Scale)
	if err != nil {
		return nil, err
	}
	raw, err := r.client.Value(ctx, node)
	if err != nil {
		return nil, err
	}
	return ee.DecodeCoefficients(raw)
}

func (r renderer) fail(ctx context.Context, job domain.ChartJob, err error) domain.ChartJob {
	job.Status = domain.ChartFailed
	r.messenger.Send(ctx, job.ClientID, domain.Message{
		ID:    "chart-" + job.JobID,
		Style: domain.StyleDanger,
		Line1: "Could not compute the NDVI series.",
		Line2: err.Error(),
	})
	return job
}
