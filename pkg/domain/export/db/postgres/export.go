package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	kpool "github.com/guojinxiang/ndvi-time-series/pkg/conn/db/postgres/pool"
	"github.com/guojinxiang/ndvi-time-series/pkg/conn/db/postgres/scanner"
	"github.com/guojinxiang/ndvi-time-series/pkg/domain"
	kdb "github.com/guojinxiang/ndvi-time-series/pkg/domain/export/db"
	xe "github.com/guojinxiang/ndvi-time-series/pkg/errors"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v4"
)

type exportPG struct {
	pool kpool.Pool
}

func New(pool kpool.Pool) kdb.ExportInterface {
	return &exportPG{pool: pool}
}

var liveStatuses = `('requested', 'started', 'cancel_requested')`

const exportColumns = `
	"export_id", "client_id", "filename", "options", "status",
	"task_id", "polls", "lease_until", "message", "created_at", "updated_at"
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// exportRow is the table shape; fromRow turns it into the domain type.
type exportRow struct {
	ExportID   string    `sql:"export_id"`
	ClientID   string    `sql:"client_id"`
	Filename   string    `sql:"filename"`
	Options    []byte    `sql:"options"`
	Status     string    `sql:"status"`
	TaskID     string    `sql:"task_id"`
	Polls      int       `sql:"polls"`
	LeaseUntil time.Time `sql:"lease_until"`
	Message    string    `sql:"message"`
	Created    time.Time `sql:"created_at"`
	Updated    time.Time `sql:"updated_at"`
}

var exportScanner = scanner.New[exportRow]()

func fromRow(r exportRow) (domain.Export, error) {
	st, err := domain.AsExportStatus(r.Status)
	if err != nil {
		return domain.Export{}, err
	}

	ex := domain.Export{
		ExportID:   r.ExportID,
		ClientID:   r.ClientID,
		Filename:   r.Filename,
		Status:     st,
		TaskID:     r.TaskID,
		Polls:      r.Polls,
		LeaseUntil: r.LeaseUntil,
		Message:    r.Message,
		Created:    r.Created,
		Updated:    r.Updated,
	}
	if err := json.Unmarshal(r.Options, &ex.Options); err != nil {
		return domain.Export{}, xe.WrapWithNote(err, "broken options of export %s", ex.ExportID)
	}
	return ex, nil
}

func scanExport(row rowScanner) (domain.Export, error) {
	r := exportRow{}
	if err := row.Scan(
		&r.ExportID, &r.ClientID, &r.Filename, &r.Options, &r.Status,
		&r.TaskID, &r.Polls, &r.LeaseUntil, &r.Message, &r.Created, &r.Updated,
	); err != nil {
		return domain.Export{}, err
	}
	return fromRow(r)
}

func (e *exportPG) Request(ctx context.Context, ex domain.Export) (domain.Export, error) {
	options, err := json.Marshal(ex.Options)
	if err != nil {
		return domain.Export{}, xe.Wrap(err)
	}

	row := e.pool.QueryRow(
		ctx,
		`
		INSERT INTO "export"
			("export_id", "client_id", "filename", "options", "status")
		VALUES ($1, $2, $3, $4, 'requested')
		RETURNING `+exportColumns,
		ex.ExportID, ex.ClientID, ex.Filename, options,
	)

	created, err := scanExport(row)
	if err != nil {
		pgErr := &pgconn.PgError{}
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return domain.Export{}, domain.ErrExportConflict
		}
		return domain.Export{}, xe.Wrap(err)
	}
	return created, nil
}

func (e *exportPG) Get(ctx context.Context, exportID string) (domain.Export, error) {
	row := e.pool.QueryRow(
		ctx,
		`SELECT `+exportColumns+` FROM "export" WHERE "export_id" = $1`,
		exportID,
	)
	ex, err := scanExport(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Export{}, domain.ErrMissing
	}
	if err != nil {
		return domain.Export{}, xe.Wrap(err)
	}
	return ex, nil
}

func (e *exportPG) GetLive(ctx context.Context, clientID string) (domain.Export, error) {
	row := e.pool.QueryRow(
		ctx,
		`
		SELECT `+exportColumns+` FROM "export"
		WHERE "client_id" = $1 AND "status" IN `+liveStatuses,
		clientID,
	)
	ex, err := scanExport(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Export{}, domain.ErrMissing
	}
	if err != nil {
		return domain.Export{}, xe.Wrap(err)
	}
	return ex, nil
}

func (e *exportPG) GetByFilename(ctx context.Context, clientID string, filename string) (domain.Export, error) {
	row := e.pool.QueryRow(
		ctx,
		`
		SELECT `+exportColumns+` FROM "export"
		WHERE "client_id" = $1 AND "filename" = $2
		ORDER BY "created_at" DESC
		LIMIT 1`,
		clientID, filename,
	)
	ex, err := scanExport(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Export{}, domain.ErrMissing
	}
	if err != nil {
		return domain.Export{}, xe.Wrap(err)
	}
	return ex, nil
}

func (e *exportPG) Pick(
	ctx context.Context,
	leaseBudget time.Duration,
	f func(domain.Export) (domain.Export, error),
) (bool, error) {
	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return false, xe.Wrap(err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(
		ctx,
		`
		SELECT `+exportColumns+` FROM "export"
		WHERE "status" IN `+liveStatuses+` AND "lease_until" <= now()
		ORDER BY "lease_until"
		LIMIT 1
		FOR UPDATE SKIP LOCKED`,
	)
	picked, err := scanExport(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, xe.Wrap(err)
	}

	// hold the lease across the callback: should this process die
	// mid-work, another picker takes over once the budget runs out
	if _, err := tx.Exec(
		ctx,
		`UPDATE "export" SET "lease_until" = now() + $1 WHERE "export_id" = $2`,
		leaseBudget, picked.ExportID,
	); err != nil {
		return false, xe.Wrap(err)
	}

	updated, err := f(picked)
	if err != nil {
		return true, err
	}

	if picked.Status != updated.Status && !picked.Status.CanTransit(updated.Status) {
		return true, xe.WrapWithNote(
			domain.ErrInvalidStatusChanging,
			"export %s: %s to %s", picked.ExportID, picked.Status, updated.Status,
		)
	}

	if _, err := tx.Exec(
		ctx,
		`
		UPDATE "export" SET
			"status" = $1, "task_id" = $2, "polls" = $3,
			"message" = $4, "lease_until" = $5, "updated_at" = now()
		WHERE "export_id" = $6`,
		string(updated.Status), updated.TaskID, updated.Polls,
		updated.Message, updated.LeaseUntil, picked.ExportID,
	); err != nil {
		return true, xe.Wrap(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return true, xe.Wrap(err)
	}
	return true, nil
}

func (e *exportPG) RequestCancel(ctx context.Context, clientID string) (domain.Export, error) {
	row := e.pool.QueryRow(
		ctx,
		`
		UPDATE "export" SET
			"status" = CASE "status"
				WHEN 'requested' THEN 'cancelled'
				ELSE 'cancel_requested'
			END,
			"lease_until" = to_timestamp(0),
			"updated_at" = now()
		WHERE "client_id" = $1 AND "status" IN `+liveStatuses+`
		RETURNING `+exportColumns,
		clientID,
	)
	ex, err := scanExport(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Export{}, domain.ErrMissing
	}
	if err != nil {
		return domain.Export{}, xe.Wrap(err)
	}
	return ex, nil
}

func (e *exportPG) FinishedBefore(ctx context.Context, cutoff time.Time) ([]domain.Export, error) {
	rows, err := exportScanner.QueryAll(
		ctx, e.pool,
		`
		SELECT `+exportColumns+` FROM "export"
		WHERE "status" IN ('done', 'failed', 'cancelled') AND "updated_at" < $1`,
		cutoff,
	)
	if err != nil {
		return nil, xe.Wrap(err)
	}

	finished := []domain.Export{}
	for _, r := range rows {
		ex, err := fromRow(r)
		if err != nil {
			return nil, xe.Wrap(err)
		}
		finished = append(finished, ex)
	}
	return finished, nil
}

func (e *exportPG) Delete(ctx context.Context, exportID string) error {
	if _, err := e.pool.Exec(
		ctx, `DELETE FROM "export" WHERE "export_id" = $1`, exportID,
	); err != nil {
		return xe.Wrap(err)
	}
	return nil
}
