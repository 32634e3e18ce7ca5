package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/guojinxiang/ndvi-time-series/cmd/ndvid/handlers"
	httptestutil "github.com/guojinxiang/ndvi-time-series/internal/testutils/http"
	"github.com/guojinxiang/ndvi-time-series/pkg/domain"
	mockchartdb "github.com/guojinxiang/ndvi-time-series/pkg/domain/chart/db/mock"
	"github.com/guojinxiang/ndvi-time-series/pkg/domain/cleanup"
	mockexpdb "github.com/guojinxiang/ndvi-time-series/pkg/domain/export/db/mock"
	"github.com/guojinxiang/ndvi-time-series/pkg/drive"
	mockdrive "github.com/guojinxiang/ndvi-time-series/pkg/drive/mock"
	mocknotify "github.com/guojinxiang/ndvi-time-series/pkg/notify/mock"
	"github.com/labstack/echo/v4"
)

func emptySweeper(exports *mockexpdb.ExportInterface, dr *mockdrive.Service) cleanup.Sweeper {
	charts := mockchartdb.NewCharts()
	charts.Impl.DeleteExpired = func(context.Context) (int, error) { return 0, nil }
	return cleanup.Sweeper{
		Drive:     dr,
		Charts:    charts,
		Exports:   exports,
		Retention: 5 * time.Hour,
	}
}

func TestCleanHandler(t *testing.T) {
	t.Run("with task=, it cancels the client's running export", func(t *testing.T) {
		exports := mockexpdb.New()
		exports.Impl.GetLive = func(_ context.Context, clientID string) (domain.Export, error) {
			return domain.Export{
				ExportID: "ex-1", ClientID: clientID, Filename: "ndvi_export",
				Status: domain.ExportStarted, TaskID: "task-1",
			}, nil
		}
		exports.Impl.RequestCancel = func(_ context.Context, clientID string) (domain.Export, error) {
			return domain.Export{
				ExportID: "ex-1", ClientID: clientID,
				Status: domain.ExportCancelRequested, TaskID: "task-1",
			}, nil
		}
		dr := mockdrive.New()
		messenger := mocknotify.New()

		e := echo.New()
		c, resp := httptestutil.Get(e, "/clean?task=task-1&client_id=client-1")
		testee := handlers.CleanHandler(
			emptySweeper(exports, dr), exports, dr, messenger, "secret",
		)

		if err := testee(c); err != nil {
			t.Fatal(err)
		}
		if exports.Calls.RequestCancel.Times() != 1 {
			t.Fatalf("cancel should be requested once (actual: %d)", exports.Calls.RequestCancel.Times())
		}
		if exports.Calls.RequestCancel[0].ClientID != "client-1" {
			t.Errorf("unexpected client: %s", exports.Calls.RequestCancel[0].ClientID)
		}
		if messenger.Calls.Send.Times() != 1 ||
			messenger.Calls.Send[0].Message.Style != domain.StyleWarning {
			t.Errorf("a warning message should be sent (actual: %+v)", messenger.Calls.Send)
		}
		if sent := messenger.Calls.Send[0].Message; sent.ID != "export-ndvi_export" {
			t.Errorf("the message should be keyed by the filename (actual: %s)", sent.ID)
		}
		if !strings.Contains(resp.Body.String(), "cancel_requested") {
			t.Errorf("unexpected response: %s", resp.Body.String())
		}
	})

	t.Run("with a task id that is not the live one, it responds 404", func(t *testing.T) {
		exports := mockexpdb.New()
		exports.Impl.GetLive = func(_ context.Context, clientID string) (domain.Export, error) {
			return domain.Export{
				ExportID: "ex-1", ClientID: clientID,
				Status: domain.ExportStarted, TaskID: "task-1",
			}, nil
		}
		dr := mockdrive.New()

		e := echo.New()
		c, _ := httptestutil.Get(e, "/clean?task=task-2&client_id=client-1")
		testee := handlers.CleanHandler(
			emptySweeper(exports, dr), exports, dr, mocknotify.New(), "secret",
		)

		err := testee(c)
		httperr := new(echo.HTTPError)
		if !errors.As(err, &httperr) || httperr.Code != http.StatusNotFound {
			t.Errorf("unexpected error: %+v", err)
		}
		if exports.Calls.RequestCancel.Times() != 0 {
			t.Error("nothing should be cancelled")
		}
	})

	t.Run("with filename=, it removes the client's exported files", func(t *testing.T) {
		exports := mockexpdb.New()
		exports.Impl.GetByFilename = func(_ context.Context, clientID, filename string) (domain.Export, error) {
			return domain.Export{
				ExportID: "ex-1", ClientID: clientID, Filename: filename,
				Status: domain.ExportDone,
			}, nil
		}
		exports.Impl.Delete = func(context.Context, string) error { return nil }
		dr := mockdrive.New()
		dr.Impl.FilesByPrefix = func(_ context.Context, prefix string) ([]drive.File, error) {
			if prefix != "ndvi_export" {
				t.Errorf("unexpected prefix: %s", prefix)
			}
			return []drive.File{{ID: "f1"}, {ID: "f2"}}, nil
		}
		dr.Impl.Delete = func(context.Context, string) error { return nil }
		messenger := mocknotify.New()

		e := echo.New()
		c, resp := httptestutil.Get(e, "/clean?filename=ndvi_export&client_id=client-1")
		testee := handlers.CleanHandler(
			emptySweeper(exports, dr), exports, dr, messenger, "secret",
		)

		if err := testee(c); err != nil {
			t.Fatal(err)
		}
		if dr.Calls.Delete.Times() != 2 {
			t.Errorf("both files should be deleted (actual: %d)", dr.Calls.Delete.Times())
		}
		if exports.Calls.Delete.Times() != 1 {
			t.Errorf("the export row should be deleted (actual: %d)", exports.Calls.Delete.Times())
		}

		actual := map[string]int{}
		if err := json.Unmarshal(resp.Body.Bytes(), &actual); err != nil {
			t.Fatal(err)
		}
		if actual["removed"] != 2 {
			t.Errorf("unexpected report: %+v", actual)
		}
	})

	t.Run("with filename= of someone else's export, it responds 404", func(t *testing.T) {
		exports := mockexpdb.New()
		exports.Impl.GetByFilename = func(context.Context, string, string) (domain.Export, error) {
			return domain.Export{}, domain.ErrMissing
		}
		dr := mockdrive.New()

		e := echo.New()
		c, _ := httptestutil.Get(e, "/clean?filename=ndvi_export&client_id=intruder")
		testee := handlers.CleanHandler(
			emptySweeper(exports, dr), exports, dr, mocknotify.New(), "secret",
		)

		err := testee(c)
		httperr := new(echo.HTTPError)
		if !errors.As(err, &httperr) || httperr.Code != http.StatusNotFound {
			t.Errorf("unexpected error: %+v", err)
		}
		if dr.Calls.Delete.Times() != 0 {
			t.Error("no file should be touched")
		}
	})

	t.Run("with the admin key, it runs a retention sweep", func(t *testing.T) {
		exports := mockexpdb.New()
		exports.Impl.FinishedBefore = func(context.Context, time.Time) ([]domain.Export, error) {
			return []domain.Export{{ExportID: "ex-1"}}, nil
		}
		exports.Impl.Delete = func(context.Context, string) error { return nil }
		dr := mockdrive.New()
		dr.Impl.FilesOlderThan = func(context.Context, time.Time) ([]drive.File, error) {
			return []drive.File{{ID: "f1"}}, nil
		}
		dr.Impl.Delete = func(context.Context, string) error { return nil }

		e := echo.New()
		c, resp := httptestutil.Get(e, "/clean?key=secret")
		testee := handlers.CleanHandler(
			emptySweeper(exports, dr), exports, dr, mocknotify.New(), "secret",
		)

		if err := testee(c); err != nil {
			t.Fatal(err)
		}
		actual := cleanup.Report{}
		if err := json.Unmarshal(resp.Body.Bytes(), &actual); err != nil {
			t.Fatal(err)
		}
		expected := cleanup.Report{DriveFiles: 1, Charts: 0, Exports: 1}
		if actual != expected {
			t.Errorf("unexpected report (actual, expected) = (%+v, %+v)", actual, expected)
		}
	})

	t.Run("without the admin key, it responds 404 and sweeps nothing", func(t *testing.T) {
		exports := mockexpdb.New()
		dr := mockdrive.New()

		e := echo.New()
		c, _ := httptestutil.Get(e, "/clean")
		testee := handlers.CleanHandler(
			emptySweeper(exports, dr), exports, dr, mocknotify.New(), "secret",
		)

		err := testee(c)
		httperr := new(echo.HTTPError)
		if !errors.As(err, &httperr) || httperr.Code != http.StatusNotFound {
			t.Errorf("unexpected error: %+v", err)
		}
		if exports.Calls.FinishedBefore.Times() != 0 {
			t.Error("no sweep should run without the key")
		}
	})

	t.Run("with m=view and the admin key, it lists files and quota", func(t *testing.T) {
		exports := mockexpdb.New()
		dr := mockdrive.New()
		dr.Impl.About = func(context.Context) (drive.Quota, error) {
			return drive.Quota{Limit: 100, Usage: 42}, nil
		}
		dr.Impl.FilesByPrefix = func(context.Context, string) ([]drive.File, error) {
			return []drive.File{{ID: "f1", Name: "ndvi_export.tif"}}, nil
		}

		e := echo.New()
		c, resp := httptestutil.Get(e, "/clean?m=view&key=secret")
		testee := handlers.CleanHandler(
			emptySweeper(exports, dr), exports, dr, mocknotify.New(), "secret",
		)

		if err := testee(c); err != nil {
			t.Fatal(err)
		}
		actual := handlers.AdminView{}
		if err := json.Unmarshal(resp.Body.Bytes(), &actual); err != nil {
			t.Fatal(err)
		}
		if actual.Quota.Usage != 42 || len(actual.Files) != 1 {
			t.Errorf("unexpected view: %+v", actual)
		}
	})

	t.Run("with m=view and a wrong key, it responds 404", func(t *testing.T) {
		exports := mockexpdb.New()
		dr := mockdrive.New()

		e := echo.New()
		c, _ := httptestutil.Get(e, "/clean?m=view&key=guess")
		testee := handlers.CleanHandler(
			emptySweeper(exports, dr), exports, dr, mocknotify.New(), "secret",
		)

		err := testee(c)
		httperr := new(echo.HTTPError)
		if !errors.As(err, &httperr) || httperr.Code != http.StatusNotFound {
			t.Errorf("unexpected error: %+v", err)
		}
	})
}

func TestUnloadHandler(t *testing.T) {
	t.Run("it cancels the leaving client's export", func(t *testing.T) {
		exports := mockexpdb.New()
		exports.Impl.RequestCancel = func(_ context.Context, clientID string) (domain.Export, error) {
			return domain.Export{ExportID: "ex-1", ClientID: clientID}, nil
		}

		e := echo.New()
		c, resp := httptestutil.Post(
			e, "/clean", strings.NewReader("from=client-1"),
			httptestutil.ContentType("application/x-www-form-urlencoded"),
		)
		testee := handlers.UnloadHandler(exports)

		if err := testee(c); err != nil {
			t.Fatal(err)
		}
		if resp.Code != http.StatusOK {
			t.Errorf("unexpected status: %d", resp.Code)
		}
		if exports.Calls.RequestCancel.Times() != 1 ||
			exports.Calls.RequestCancel[0].ClientID != "client-1" {
			t.Errorf("unexpected calls: %+v", exports.Calls.RequestCancel)
		}
	})

	t.Run("it stays quiet when the client has nothing running", func(t *testing.T) {
		exports := mockexpdb.New()
		exports.Impl.RequestCancel = func(context.Context, string) (domain.Export, error) {
			return domain.Export{}, domain.ErrMissing
		}

		e := echo.New()
		c, resp := httptestutil.Post(
			e, "/clean", strings.NewReader("from=client-1"),
			httptestutil.ContentType("application/x-www-form-urlencoded"),
		)
		testee := handlers.UnloadHandler(exports)

		if err := testee(c); err != nil {
			t.Fatal(err)
		}
		if resp.Code != http.StatusOK {
			t.Errorf("unexpected status: %d", resp.Code)
		}
	})
}
