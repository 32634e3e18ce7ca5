package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	kpool "github.com/guojinxiang/ndvi-time-series/pkg/conn/db/postgres/pool"
	"github.com/guojinxiang/ndvi-time-series/pkg/domain"
	kdb "github.com/guojinxiang/ndvi-time-series/pkg/domain/chart/db"
	xe "github.com/guojinxiang/ndvi-time-series/pkg/errors"
	"github.com/jackc/pgx/v4"
)

type chartJobPG struct {
	pool kpool.Pool
}

func NewJobs(pool kpool.Pool) kdb.ChartJobInterface {
	return &chartJobPG{pool: pool}
}

const jobColumns = `"job_id", "client_id", "options", "status", "lease_until", "created_at"`

func scanJob(row interface{ Scan(...interface{}) error }) (domain.ChartJob, error) {
	job := domain.ChartJob{}
	options := []byte{}
	status := ""

	if err := row.Scan(
		&job.JobID, &job.ClientID, &options, &status, &job.LeaseUntil, &job.Created,
	); err != nil {
		return domain.ChartJob{}, err
	}

	st, err := domain.AsChartJobStatus(status)
	if err != nil {
		return domain.ChartJob{}, err
	}
	job.Status = st

	if err := json.Unmarshal(options, &job.Options); err != nil {
		return domain.ChartJob{}, xe.WrapWithNote(err, "broken options of chart job %s", job.JobID)
	}
	return job, nil
}

func (c *chartJobPG) Request(ctx context.Context, job domain.ChartJob) (domain.ChartJob, error) {
	options, err := json.Marshal(job.Options)
	if err != nil {
		return domain.ChartJob{}, xe.Wrap(err)
	}

	row := c.pool.QueryRow(
		ctx,
		`
		INSERT INTO "chart_job" ("job_id", "client_id", "options", "status")
		VALUES ($1, $2, $3, 'requested')
		RETURNING `+jobColumns,
		job.JobID, job.ClientID, options,
	)
	created, err := scanJob(row)
	if err != nil {
		return domain.ChartJob{}, xe.Wrap(err)
	}
	return created, nil
}

func (c *chartJobPG) Pick(
	ctx context.Context,
	leaseBudget time.Duration,
	f func(domain.ChartJob) (domain.ChartJob, error),
) (bool, error) {
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return false, xe.Wrap(err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(
		ctx,
		`
		SELECT `+jobColumns+` FROM "chart_job"
		WHERE "status" = 'requested' AND "lease_until" <= now()
		ORDER BY "created_at"
		LIMIT 1
		FOR UPDATE SKIP LOCKED`,
	)
	picked, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, xe.Wrap(err)
	}

	if _, err := tx.Exec(
		ctx,
		`UPDATE "chart_job" SET "lease_until" = now() + $1 WHERE "job_id" = $2`,
		leaseBudget, picked.JobID,
	); err != nil {
		return false, xe.Wrap(err)
	}

	updated, err := f(picked)
	if err != nil {
		return true, err
	}

	// a finished job has nothing left to keep
	if updated.Status != domain.ChartRequested {
		if _, err := tx.Exec(
			ctx, `DELETE FROM "chart_job" WHERE "job_id" = $1`, picked.JobID,
		); err != nil {
			return true, xe.Wrap(err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return true, xe.Wrap(err)
	}
	return true, nil
}

type chartPG struct {
	pool kpool.Pool
}

func NewCharts(pool kpool.Pool) kdb.ChartInterface {
	return &chartPG{pool: pool}
}

func (c *chartPG) Put(ctx context.Context, snapshot domain.ChartSnapshot) error {
	if _, err := c.pool.Exec(
		ctx,
		`
		INSERT INTO "chart" ("chart_id", "payload", "expires_at")
		VALUES ($1, $2, $3)
		ON CONFLICT ("chart_id") DO UPDATE
			SET "payload" = EXCLUDED."payload", "expires_at" = EXCLUDED."expires_at"`,
		snapshot.ChartID, []byte(snapshot.Payload), snapshot.ExpiresAt,
	); err != nil {
		return xe.Wrap(err)
	}
	return nil
}

func (c *chartPG) Get(ctx context.Context, chartID string) (domain.ChartSnapshot, error) {
	snapshot := domain.ChartSnapshot{}
	payload := []byte{}

	err := c.pool.QueryRow(
		ctx,
		`
		SELECT "chart_id", "payload", "expires_at" FROM "chart"
		WHERE "chart_id" = $1 AND "expires_at" > now()`,
		chartID,
	).Scan(&snapshot.ChartID, &payload, &snapshot.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ChartSnapshot{}, domain.ErrMissing
	}
	if err != nil {
		return domain.ChartSnapshot{}, xe.Wrap(err)
	}

	snapshot.Payload = json.RawMessage(payload)
	return snapshot, nil
}

func (c *chartPG) DeleteExpired(ctx context.Context) (int, error) {
	tag, err := c.pool.Exec(ctx, `DELETE FROM "chart" WHERE "expires_at" <= now()`)
	if err != nil {
		return 0, xe.Wrap(err)
	}
	return int(tag.RowsAffected()), nil
}
