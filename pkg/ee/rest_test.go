package ee_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/guojinxiang/ndvi-time-series/pkg/ee"
	"github.com/guojinxiang/ndvi-time-series/pkg/ee/expr"
	"github.com/guojinxiang/ndvi-time-series/pkg/utils/retry"
	"github.com/guojinxiang/ndvi-time-series/pkg/utils/try"
)

func fastRetry() ee.Option {
	return ee.WithBackoff(func() retry.Backoff {
		return retry.StaticBackoff(time.Millisecond)
	})
}

func anyImage() *expr.Node {
	return expr.Call("ImageCollection.load", expr.Args{"id": "LANDSAT/LT5_L1T_TOA"})
}

func TestRESTClient(t *testing.T) {
	t.Run("when the service answers with data, then Value returns it", func(t *testing.T) {
		requests := []*http.Request{}
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			try.To(0, r.ParseForm()).OrFatal(t)
			requests = append(requests, r)
			w.Write([]byte(`{"data": 42}`))
		}))
		defer server.Close()

		client := ee.NewClient(server.URL, server.Client(), fastRetry())
		data := try.To(client.Value(context.Background(), anyImage())).OrFatal(t)

		if n := try.To(ee.DecodeInt(data)).OrFatal(t); n != 42 {
			t.Errorf("value: got %d, expected 42", n)
		}

		if len(requests) != 1 {
			t.Fatalf("requests: got %d, expected 1", len(requests))
		}
		if requests[0].URL.Path != "/value" {
			t.Errorf("path: got %s", requests[0].URL.Path)
		}
		serialized := try.To(anyImage().Serialize()).OrFatal(t)
		if requests[0].PostForm.Get("json") != string(serialized) {
			t.Error("the serialized expression is not sent")
		}
	})

	t.Run("when the service answers with an error, then the message surfaces", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"error": {"message": "Collection is empty."}}`))
		}))
		defer server.Close()

		client := ee.NewClient(server.URL, server.Client(), fastRetry())
		if _, err := client.Value(context.Background(), anyImage()); err == nil {
			t.Error("expected an error, got nil")
		}
	})

	t.Run("when the service throttles, then the request is retried", func(t *testing.T) {
		hits := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits += 1
			if hits < 3 {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			w.Write([]byte(`{"data": ["TASK_A"]}`))
		}))
		defer server.Close()

		client := ee.NewClient(server.URL, server.Client(), fastRetry())
		taskID := try.To(client.NewTaskID(context.Background())).OrFatal(t)

		if taskID != "TASK_A" {
			t.Errorf("task id: got %s, expected TASK_A", taskID)
		}
		if hits != 3 {
			t.Errorf("hits: got %d, expected 3", hits)
		}
	})

	t.Run("when the service keeps failing, then attempts run out", func(t *testing.T) {
		hits := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits += 1
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		client := ee.NewClient(server.URL, server.Client(), fastRetry(), ee.WithAttempts(3))
		if _, err := client.NewTaskID(context.Background()); err == nil {
			t.Error("expected an error, got nil")
		}
		if hits != 3 {
			t.Errorf("hits: got %d, expected 3", hits)
		}
	})

	t.Run("when a client error comes back, then it is not retried", func(t *testing.T) {
		hits := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits += 1
			w.WriteHeader(http.StatusBadRequest)
		}))
		defer server.Close()

		client := ee.NewClient(server.URL, server.Client(), fastRetry())
		if _, err := client.Value(context.Background(), anyImage()); err == nil {
			t.Error("expected an error, got nil")
		}
		if hits != 1 {
			t.Errorf("hits: got %d, expected 1", hits)
		}
	})

	t.Run("when an export is started, then the task parameters are posted", func(t *testing.T) {
		var posted *http.Request
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			try.To(0, r.ParseForm()).OrFatal(t)
			posted = r
			w.Write([]byte(`{"data": {"started": "OK"}}`))
		}))
		defer server.Close()

		client := ee.NewClient(server.URL, server.Client(), fastRetry())
		err := client.StartExport(context.Background(), "TASK_B", anyImage(), ee.ExportSpec{
			Description:    "ndvi export",
			FilenamePrefix: "my_area",
			Scale:          30,
			MaxPixels:      1e11,
		})
		if err != nil {
			t.Fatal(err)
		}

		if posted.URL.Path != "/processingrequest" {
			t.Errorf("path: got %s", posted.URL.Path)
		}
		for key, expected := range map[string]string{
			"id":                  "TASK_B",
			"type":                "EXPORT_IMAGE",
			"description":         "ndvi export",
			"driveFileNamePrefix": "my_area",
			"scale":               "30",
			"maxPixels":           "100000000000",
		} {
			if got := posted.PostForm.Get(key); got != expected {
				t.Errorf("%s: got %s, expected %s", key, got, expected)
			}
		}
	})

	t.Run("when the task list is empty, then the state is unknown", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"data": []}`))
		}))
		defer server.Close()

		client := ee.NewClient(server.URL, server.Client(), fastRetry())
		status := try.To(client.TaskStatus(context.Background(), "TASK_C")).OrFatal(t)

		if status.State != ee.UnknownState {
			t.Errorf("state: got %s, expected %s", status.State, ee.UnknownState)
		}
	})

	t.Run("when the task has failed, then the error message is carried", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"data": [{"id": "TASK_D", "state": "FAILED", "error_message": "too many pixels"}]}`))
		}))
		defer server.Close()

		client := ee.NewClient(server.URL, server.Client(), fastRetry())
		status := try.To(client.TaskStatus(context.Background(), "TASK_D")).OrFatal(t)

		if status.State != ee.Failed || status.ErrorMessage != "too many pixels" {
			t.Errorf("unexpected status: %+v", status)
		}
		if !status.State.Done() {
			t.Error("FAILED should be terminal")
		}
	})

	t.Run("when a cancel is requested, then the update action is posted", func(t *testing.T) {
		var posted *http.Request
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			try.To(0, r.ParseForm()).OrFatal(t)
			posted = r
			w.Write([]byte(`{"data": {}}`))
		}))
		defer server.Close()

		client := ee.NewClient(server.URL, server.Client(), fastRetry())
		if err := client.CancelTask(context.Background(), "TASK_E"); err != nil {
			t.Fatal(err)
		}

		if posted.URL.Path != "/updatetask" {
			t.Errorf("path: got %s", posted.URL.Path)
		}
		if posted.PostForm.Get("action") != "CANCEL" {
			t.Errorf("action: got %s", posted.PostForm.Get("action"))
		}
	})

	t.Run("when a download is prepared, then the ticket becomes a url", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"data": {"docid": "DOC1", "token": "TOK1"}}`))
		}))
		defer server.Close()

		client := ee.NewClient(server.URL, server.Client(), fastRetry())
		url := try.To(client.DownloadURL(
			context.Background(), anyImage(), ee.DownloadSpec{Name: "my_area", Scale: 30},
		)).OrFatal(t)

		if expected := server.URL + "/download?docid=DOC1&token=TOK1"; url != expected {
			t.Errorf("url: got %s, expected %s", url, expected)
		}
	})
}

func TestDecodeSeries(t *testing.T) {
	t.Run("then masked observations keep their place with a nil value", func(t *testing.T) {
		samples := try.To(ee.DecodeSeries(
			[]byte(`[[1262304000, 0.53], [1262908800, null]]`),
		)).OrFatal(t)

		if len(samples) != 2 {
			t.Fatalf("samples: got %d, expected 2", len(samples))
		}
		if samples[0].NDVI == nil || *samples[0].NDVI != 0.53 {
			t.Error("the first observation is broken")
		}
		if samples[1].NDVI != nil {
			t.Error("the masked observation should carry nil")
		}
	})

	t.Run("when an entry has no timestamp, then it errors", func(t *testing.T) {
		if _, err := ee.DecodeSeries([]byte(`[[null, 0.5]]`)); err == nil {
			t.Error("expected an error, got nil")
		}
	})
}

func TestDecodeCoefficients(t *testing.T) {
	t.Run("then null bands are dropped", func(t *testing.T) {
		coefficients := try.To(ee.DecodeCoefficients(
			[]byte(`{"a0_sec": 0.4, "a1_sec": null, "rmse": 0.08}`),
		)).OrFatal(t)

		if len(coefficients) != 2 {
			t.Fatalf("coefficients: got %d, expected 2", len(coefficients))
		}
		if coefficients["rmse"] != 0.08 {
			t.Error("rmse is broken")
		}
	})
}
