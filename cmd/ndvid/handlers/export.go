package handlers

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	apierr "github.com/guojinxiang/ndvi-time-series/pkg/api/types/errors"
	"github.com/guojinxiang/ndvi-time-series/pkg/domain"
	expdb "github.com/guojinxiang/ndvi-time-series/pkg/domain/export/db"
	"github.com/guojinxiang/ndvi-time-series/pkg/notify"
	"github.com/labstack/echo/v4"
)

type ExportResponse struct {
	ExportID string `json:"export_id"`
}

// ExportHandler accepts an export job. The export loop submits it to
// the compute service and follows it to the end; this handler only
// records the request.
func ExportHandler(exports expdb.ExportInterface, messenger notify.Messenger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		opts := domain.Options{}
		if err := c.Bind(&opts); err != nil {
			return apierr.BadRequest("broken request body", err)
		}
		if err := opts.Validate(domain.NeedRegion | domain.NeedFilename); err != nil {
			return apierr.BadRequest(err.Error(), err)
		}

		export, err := exports.Request(ctx, domain.Export{
			ExportID: uuid.NewString(),
			ClientID: opts.ClientID,
			Filename: opts.Filename,
			Options:  opts,
			Status:   domain.ExportRequested,
		})
		if errors.Is(err, domain.ErrExportConflict) {
			return apierr.Conflict(
				"an export is already running",
				apierr.WithAdvice("wait for it to finish or cancel it first"),
				apierr.WithError(err),
			)
		}
		if err != nil {
			return apierr.InternalServerError(err)
		}

		messenger.Send(ctx, opts.ClientID, domain.Message{
			ID:    "export-" + opts.Filename,
			Style: domain.StyleInfo,
			Line1: "Export accepted.",
			Line2: "It will be submitted to the compute service shortly.",
		})

		return c.JSON(http.StatusAccepted, ExportResponse{ExportID: export.ExportID})
	}
}
