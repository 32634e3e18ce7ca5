package handlers

import (
	"net/http"

	apierr "github.com/guojinxiang/ndvi-time-series/pkg/api/types/errors"
	"github.com/guojinxiang/ndvi-time-series/pkg/domain"
	"github.com/guojinxiang/ndvi-time-series/pkg/ee"
	"github.com/guojinxiang/ndvi-time-series/pkg/ee/image"
	"github.com/guojinxiang/ndvi-time-series/pkg/notify"
	"github.com/labstack/echo/v4"
)

type DownloadResponse struct {
	URL string `json:"url"`
}

// DownloadHandler resolves a direct download URL for the regression
// image clipped to the drawn region. Large regions should go through
// /export instead; the remote service caps direct downloads.
func DownloadHandler(client ee.Client, scale int, messenger notify.Messenger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		opts := domain.Options{}
		if err := c.Bind(&opts); err != nil {
			return apierr.BadRequest("broken request body", err)
		}
		if err := opts.Validate(domain.NeedRegion | domain.NeedFilename); err != nil {
			return apierr.BadRequest(err.Error(), err)
		}

		img, err := image.Clipped(opts)
		if err != nil {
			return apierr.InternalServerError(err)
		}

		url, err := client.DownloadURL(ctx, img, ee.DownloadSpec{
			Name:  opts.Filename,
			Scale: scale,
		})
		if err != nil {
			return apierr.InternalServerError(err)
		}

		messenger.Send(ctx, opts.ClientID, domain.Message{
			ID:    "download-" + opts.Filename,
			Style: domain.StyleSuccess,
			Line1: "Your download is ready.",
			Line2: url,
		})

		return c.JSON(http.StatusOK, DownloadResponse{URL: url})
	}
}
