package handlers

import (
	"errors"
	"fmt"
	"net/http"

	apierr "github.com/guojinxiang/ndvi-time-series/pkg/api/types/errors"
	"github.com/guojinxiang/ndvi-time-series/pkg/domain"
	"github.com/guojinxiang/ndvi-time-series/pkg/domain/cleanup"
	expdb "github.com/guojinxiang/ndvi-time-series/pkg/domain/export/db"
	"github.com/guojinxiang/ndvi-time-series/pkg/drive"
	"github.com/guojinxiang/ndvi-time-series/pkg/notify"
	"github.com/labstack/echo/v4"
)

type AdminView struct {
	Quota drive.Quota  `json:"quota"`
	Files []drive.File `json:"files"`
}

// CleanHandler is the maintenance endpoint.
//
// Without parameters it runs one retention sweep; cron calls it that
// way, carrying the admin key. With task= or filename= it cancels or
// removes one client's export; with m=view or m=all, also gated by the
// admin key, it shows or purges everything on Drive.
func CleanHandler(
	sweeper cleanup.Sweeper,
	exports expdb.ExportInterface,
	dr drive.Service,
	messenger notify.Messenger,
	adminKey string,
) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		if taskID := c.QueryParam("task"); taskID != "" {
			clientID := c.QueryParam("client_id")
			live, err := exports.GetLive(ctx, clientID)
			if errors.Is(err, domain.ErrMissing) || (err == nil && live.TaskID != taskID) {
				return apierr.NotFound()
			}
			if err != nil {
				return apierr.InternalServerError(err)
			}
			cancelled, err := exports.RequestCancel(ctx, clientID)
			if err != nil {
				return apierr.InternalServerError(err)
			}
			messenger.Send(ctx, clientID, domain.Message{
				ID:    "export-" + live.Filename,
				Style: domain.StyleWarning,
				Line1: "Cancelling the export...",
			})
			return c.JSON(http.StatusOK, map[string]string{
				"export_id": cancelled.ExportID,
				"status":    string(cancelled.Status),
			})
		}

		if filename := c.QueryParam("filename"); filename != "" {
			clientID := c.QueryParam("client_id")
			ex, err := exports.GetByFilename(ctx, clientID, filename)
			if errors.Is(err, domain.ErrMissing) {
				return apierr.NotFound()
			}
			if err != nil {
				return apierr.InternalServerError(err)
			}

			files, err := dr.FilesByPrefix(ctx, filename)
			if err != nil {
				return apierr.InternalServerError(err)
			}
			removed := 0
			for _, f := range files {
				if err := dr.Delete(ctx, f.ID); err != nil {
					return apierr.InternalServerError(err)
				}
				removed += 1
			}
			if err := exports.Delete(ctx, ex.ExportID); err != nil {
				return apierr.InternalServerError(err)
			}
			messenger.Send(ctx, clientID, domain.Message{
				ID:    "export-" + filename,
				Style: domain.StyleInfo,
				Line1: fmt.Sprintf("Removed %s.", filename),
			})
			return c.JSON(http.StatusOK, map[string]int{"removed": removed})
		}

		switch mode := c.QueryParam("m"); mode {
		case "":
			if adminKey == "" || c.QueryParam("key") != adminKey {
				return apierr.NotFound()
			}
			report, err := sweeper.Sweep(ctx)
			if err != nil {
				return apierr.InternalServerError(err)
			}
			return c.JSON(http.StatusOK, report)

		case "view":
			if adminKey == "" || c.QueryParam("key") != adminKey {
				return apierr.NotFound()
			}
			quota, err := dr.About(ctx)
			if err != nil {
				return apierr.InternalServerError(err)
			}
			files, err := dr.FilesByPrefix(ctx, "")
			if err != nil {
				return apierr.InternalServerError(err)
			}
			return c.JSON(http.StatusOK, AdminView{Quota: quota, Files: files})

		case "all":
			if adminKey == "" || c.QueryParam("key") != adminKey {
				return apierr.NotFound()
			}
			purgeAll := sweeper
			purgeAll.Retention = 0
			report, err := purgeAll.Sweep(ctx)
			if err != nil {
				return apierr.InternalServerError(err)
			}
			return c.JSON(http.StatusOK, report)

		default:
			return apierr.BadRequest(fmt.Sprintf(`unknown mode "%s"`, mode), nil)
		}
	}
}

// UnloadHandler takes the beacon the page sends on unload and cancels
// the leaving client's export, if any.
func UnloadHandler(exports expdb.ExportInterface) echo.HandlerFunc {
	return func(c echo.Context) error {
		clientID := c.FormValue("from")
		if clientID == "" {
			return apierr.BadRequest("form value from is missing", nil)
		}
		if _, err := exports.RequestCancel(c.Request().Context(), clientID); err != nil &&
			!errors.Is(err, domain.ErrMissing) {
			return apierr.InternalServerError(err)
		}
		return c.NoContent(http.StatusOK)
	}
}
