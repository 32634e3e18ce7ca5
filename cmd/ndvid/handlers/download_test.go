package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/guojinxiang/ndvi-time-series/cmd/ndvid/handlers"
	"github.com/guojinxiang/ndvi-time-series/pkg/domain"
	"github.com/guojinxiang/ndvi-time-series/pkg/ee"
	"github.com/guojinxiang/ndvi-time-series/pkg/ee/expr"
	mockee "github.com/guojinxiang/ndvi-time-series/pkg/ee/mock"
	mocknotify "github.com/guojinxiang/ndvi-time-series/pkg/notify/mock"
	"github.com/labstack/echo/v4"
)

func TestDownloadHandler(t *testing.T) {
	t.Run("it resolves a download url for the clipped image", func(t *testing.T) {
		client := mockee.New()
		client.Impl.DownloadURL = func(_ context.Context, _ *expr.Node, spec ee.DownloadSpec) (string, error) {
			if spec.Name != "ndvi_export" || spec.Scale != 30 {
				t.Errorf("unexpected spec: %+v", spec)
			}
			return "https://download.invalid/ndvi_export.zip", nil
		}
		messenger := mocknotify.New()

		e := echo.New()
		c, body := postJSON(t, e, "/download", validOptions())
		testee := handlers.DownloadHandler(client, 30, messenger)

		if err := testee(c); err != nil {
			t.Fatal(err)
		}

		actual := handlers.DownloadResponse{}
		if err := json.Unmarshal(body.Bytes(), &actual); err != nil {
			t.Fatal(err)
		}
		if actual.URL != "https://download.invalid/ndvi_export.zip" {
			t.Errorf("unexpected url: %s", actual.URL)
		}

		if messenger.Calls.Send.Times() != 1 {
			t.Fatalf("one message should be sent (actual: %d)", messenger.Calls.Send.Times())
		}
		sent := messenger.Calls.Send[0].Message
		if sent.Style != domain.StyleSuccess {
			t.Errorf("a success message should be sent (actual: %+v)", sent)
		}
		if sent.ID != "download-ndvi_export" {
			t.Errorf("the message should be keyed by the filename (actual: %s)", sent.ID)
		}
	})

	t.Run("it rejects options without a region", func(t *testing.T) {
		client := mockee.New()
		messenger := mocknotify.New()

		e := echo.New()
		opts := validOptions()
		opts.Region = nil
		c, _ := postJSON(t, e, "/download", opts)
		testee := handlers.DownloadHandler(client, 30, messenger)

		err := testee(c)
		httperr := new(echo.HTTPError)
		if !errors.As(err, &httperr) || httperr.Code != http.StatusBadRequest {
			t.Errorf("unexpected error: %+v", err)
		}
		if client.Calls.DownloadURL.Times() != 0 {
			t.Error("broken options should not reach the compute service")
		}
	})

	t.Run("it responds 500 when the compute service fails", func(t *testing.T) {
		client := mockee.New()
		client.Impl.DownloadURL = func(context.Context, *expr.Node, ee.DownloadSpec) (string, error) {
			return "", errors.New("fake error")
		}
		messenger := mocknotify.New()

		e := echo.New()
		c, _ := postJSON(t, e, "/download", validOptions())
		testee := handlers.DownloadHandler(client, 30, messenger)

		err := testee(c)
		httperr := new(echo.HTTPError)
		if !errors.As(err, &httperr) || httperr.Code != http.StatusInternalServerError {
			t.Errorf("unexpected error: %+v", err)
		}
	})
}
