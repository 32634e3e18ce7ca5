package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"

	"github.com/google/uuid"
	apierr "github.com/guojinxiang/ndvi-time-series/pkg/api/types/errors"
	"github.com/guojinxiang/ndvi-time-series/pkg/chart"
	"github.com/guojinxiang/ndvi-time-series/pkg/domain"
	chartdb "github.com/guojinxiang/ndvi-time-series/pkg/domain/chart/db"
	"github.com/guojinxiang/ndvi-time-series/pkg/notify"
	"github.com/labstack/echo/v4"
)

type ChartRequestResponse struct {
	JobID    string `json:"job_id"`
	ChartURL string `json:"chart_url"`
}

// ChartRequestHandler queues a chart job for the selected point.
// The chart loop picks it up; progress goes over the realtime channel.
func ChartRequestHandler(jobs chartdb.ChartJobInterface, messenger notify.Messenger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		opts := domain.Options{}
		if err := c.Bind(&opts); err != nil {
			return apierr.BadRequest("broken request body", err)
		}
		if err := opts.Validate(domain.NeedPoint); err != nil {
			return apierr.BadRequest(err.Error(), err)
		}

		job, err := jobs.Request(ctx, domain.ChartJob{
			JobID:    uuid.NewString(),
			ClientID: opts.ClientID,
			Options:  opts,
			Status:   domain.ChartRequested,
		})
		if err != nil {
			return apierr.InternalServerError(err)
		}

		messenger.Send(ctx, opts.ClientID, domain.Message{
			ID:    "chart-" + job.JobID,
			Style: domain.StyleInfo,
			Line1: "Computing the NDVI series...",
		})

		return c.JSON(http.StatusAccepted, ChartRequestResponse{
			JobID:    job.JobID,
			ChartURL: "/chart?id=" + job.JobID,
		})
	}
}

// ChartPageHandler renders a stored chart snapshot as a fullscreen page.
func ChartPageHandler(charts chartdb.ChartInterface) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		chartID := c.QueryParam("id")
		if chartID == "" {
			return apierr.BadRequest("query parameter id is missing", nil)
		}

		snapshot, err := charts.Get(ctx, chartID)
		if errors.Is(err, domain.ErrMissing) {
			return apierr.NotFound()
		}
		if err != nil {
			return apierr.InternalServerError(err)
		}

		payload := chart.Payload{}
		if err := json.Unmarshal(snapshot.Payload, &payload); err != nil {
			return apierr.InternalServerError(err)
		}

		buf := bytes.Buffer{}
		err = templates.ExecuteTemplate(&buf, "chart.html", struct {
			Title   string
			Small   bool
			Payload template.JS
		}{
			Title:   payload.Title,
			Small:   payload.Small,
			Payload: template.JS(snapshot.Payload),
		})
		if err != nil {
			return apierr.InternalServerError(err)
		}

		return c.HTML(http.StatusOK, buf.String())
	}
}
