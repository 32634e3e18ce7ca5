package drive_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/guojinxiang/ndvi-time-series/pkg/drive"
	"github.com/guojinxiang/ndvi-time-series/pkg/utils/try"
)

func TestRESTService(t *testing.T) {
	t.Run("when listing by prefix, then all pages are walked", func(t *testing.T) {
		queries := []string{}
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			queries = append(queries, r.URL.Query().Get("q"))
			if r.URL.Query().Get("pageToken") == "" {
				json.NewEncoder(w).Encode(map[string]any{
					"nextPageToken": "page-2",
					"files": []map[string]string{
						{"id": "f1", "name": "my_area.tif"},
					},
				})
				return
			}
			json.NewEncoder(w).Encode(map[string]any{
				"files": []map[string]string{
					{"id": "f2", "name": "my_area-0000000000.tif"},
				},
			})
		}))
		defer server.Close()

		service := drive.New(server.Client(), drive.WithBaseURL(server.URL))
		files := try.To(service.FilesByPrefix(context.Background(), "my_area")).OrFatal(t)

		if len(files) != 2 {
			t.Fatalf("files: got %d, expected 2", len(files))
		}
		if files[0].ID != "f1" || files[1].ID != "f2" {
			t.Errorf("unexpected files: %+v", files)
		}
		if queries[0] != "name contains 'my_area' and trashed = false" {
			t.Errorf("query: got %s", queries[0])
		}
	})

	t.Run("when listing by age, then the cutoff is in the query", func(t *testing.T) {
		query := ""
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			query = r.URL.Query().Get("q")
			json.NewEncoder(w).Encode(map[string]any{"files": []any{}})
		}))
		defer server.Close()

		service := drive.New(server.Client(), drive.WithBaseURL(server.URL))
		cutoff := time.Date(2015, 4, 1, 7, 0, 0, 0, time.UTC)
		try.To(service.FilesOlderThan(context.Background(), cutoff)).OrFatal(t)

		if query != "createdTime < '2015-04-01T07:00:00Z' and trashed = false" {
			t.Errorf("query: got %s", query)
		}
	})

	t.Run("when a folder is created, then its metadata comes back", func(t *testing.T) {
		var method string
		payload := map[string]string{}
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			method = r.Method
			try.To(0, json.NewDecoder(r.Body).Decode(&payload)).OrFatal(t)
			json.NewEncoder(w).Encode(map[string]string{
				"id": "folder-1", "name": payload["name"], "mimeType": payload["mimeType"],
			})
		}))
		defer server.Close()

		service := drive.New(server.Client(), drive.WithBaseURL(server.URL))
		folder := try.To(service.CreateFolder(context.Background(), "my_area")).OrFatal(t)

		if method != http.MethodPost {
			t.Errorf("method: got %s", method)
		}
		if payload["mimeType"] != drive.FolderMimeType {
			t.Errorf("mimeType: got %s", payload["mimeType"])
		}
		if folder.ID != "folder-1" {
			t.Errorf("folder: got %+v", folder)
		}
	})

	t.Run("when a file is moved, then parents change from the root", func(t *testing.T) {
		var request *http.Request
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			request = r
			w.Write([]byte("{}"))
		}))
		defer server.Close()

		service := drive.New(server.Client(), drive.WithBaseURL(server.URL))
		err := service.MoveToFolder(context.Background(), "f1", "folder-1")
		if err != nil {
			t.Fatal(err)
		}

		if request.Method != http.MethodPatch {
			t.Errorf("method: got %s", request.Method)
		}
		if request.URL.Path != "/files/f1" {
			t.Errorf("path: got %s", request.URL.Path)
		}
		q := request.URL.Query()
		if q.Get("addParents") != "folder-1" || q.Get("removeParents") != "root" {
			t.Errorf("parents: got %s", request.URL.RawQuery)
		}
	})

	t.Run("when a file is published, then anyone may read it", func(t *testing.T) {
		var path string
		payload := map[string]string{}
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path = r.URL.Path
			try.To(0, json.NewDecoder(r.Body).Decode(&payload)).OrFatal(t)
			w.Write([]byte("{}"))
		}))
		defer server.Close()

		service := drive.New(server.Client(), drive.WithBaseURL(server.URL))
		if err := service.Publish(context.Background(), "f1"); err != nil {
			t.Fatal(err)
		}

		if path != "/files/f1/permissions" {
			t.Errorf("path: got %s", path)
		}
		if payload["role"] != "reader" || payload["type"] != "anyone" {
			t.Errorf("permission: got %+v", payload)
		}
	})

	t.Run("when drive rejects a call, then the status surfaces", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}))
		defer server.Close()

		service := drive.New(server.Client(), drive.WithBaseURL(server.URL))
		if err := service.Delete(context.Background(), "f1"); err == nil {
			t.Error("expected an error, got nil")
		}
	})
}
