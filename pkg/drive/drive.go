// Package drive wraps the slice of the Drive REST API this app needs:
// finding the files a finished export produced, publishing them to the
// user and deleting them again once the retention period is over.
package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	xe "github.com/guojinxiang/ndvi-time-series/pkg/errors"
)

// File is the slice of Drive file metadata this app reads.
type File struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	MimeType    string    `json:"mimeType"`
	Created     time.Time `json:"createdTime"`
	ViewLink    string    `json:"webViewLink"`
	ContentLink string    `json:"webContentLink"`
}

const FolderMimeType = "application/vnd.google-apps.folder"

// Service is the Drive surface the export and cleanup flows use.
type Service interface {
	// FilesByPrefix lists the non-trashed files whose name starts
	// with prefix.
	FilesByPrefix(ctx context.Context, prefix string) ([]File, error)

	// FilesOlderThan lists the non-trashed files created before cutoff.
	FilesOlderThan(ctx context.Context, cutoff time.Time) ([]File, error)

	// CreateFolder makes a folder in the Drive root.
	CreateFolder(ctx context.Context, name string) (File, error)

	// MoveToFolder reparents the file from the root into the folder.
	MoveToFolder(ctx context.Context, fileID string, folderID string) error

	// Rename sets the file's name.
	Rename(ctx context.Context, fileID string, name string) error

	// Publish grants anyone-with-the-link read access.
	Publish(ctx context.Context, fileID string) error

	// Delete removes the file permanently.
	Delete(ctx context.Context, fileID string) error

	// About reports the storage quota of the exporting account.
	About(ctx context.Context) (Quota, error)
}

// Quota is the storage usage of the account, in bytes.
type Quota struct {
	Limit int64 `json:"limit,string"`
	Usage int64 `json:"usage,string"`
}

const fileFields = "files(id,name,mimeType,createdTime,webViewLink,webContentLink)"

type restService struct {
	baseURL string
	hc      *http.Client
}

// New builds a Service against the Drive REST API. The http client has to
// carry credentials of the account owning the exported files.
func New(hc *http.Client, options ...Option) Service {
	s := &restService{
		baseURL: "https://www.googleapis.com/drive/v3",
		hc:      hc,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

type Option func(*restService)

// WithBaseURL points the service somewhere else. For tests.
func WithBaseURL(baseURL string) Option {
	return func(s *restService) { s.baseURL = strings.TrimSuffix(baseURL, "/") }
}

func (s *restService) list(ctx context.Context, query string) ([]File, error) {
	files := []File{}
	pageToken := ""
	for {
		params := url.Values{
			"q":        {query},
			"fields":   {"nextPageToken," + fileFields},
			"orderBy":  {"createdTime desc"},
			"pageSize": {"100"},
		}
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}

		page := struct {
			NextPageToken string `json:"nextPageToken"`
			Files         []File `json:"files"`
		}{}
		if err := s.call(
			ctx, http.MethodGet, "/files?"+params.Encode(), nil, &page,
		); err != nil {
			return nil, err
		}

		files = append(files, page.Files...)
		if page.NextPageToken == "" {
			return files, nil
		}
		pageToken = page.NextPageToken
	}
}

func (s *restService) FilesByPrefix(ctx context.Context, prefix string) ([]File, error) {
	escaped := strings.ReplaceAll(prefix, `'`, `\'`)
	return s.list(ctx, fmt.Sprintf("name contains '%s' and trashed = false", escaped))
}

func (s *restService) FilesOlderThan(ctx context.Context, cutoff time.Time) ([]File, error) {
	return s.list(ctx, fmt.Sprintf(
		"createdTime < '%s' and trashed = false",
		cutoff.UTC().Format(time.RFC3339),
	))
}

func (s *restService) CreateFolder(ctx context.Context, name string) (File, error) {
	folder := File{}
	err := s.call(
		ctx, http.MethodPost, "/files?fields=id,name,mimeType,webViewLink",
		map[string]string{"name": name, "mimeType": FolderMimeType},
		&folder,
	)
	return folder, err
}

func (s *restService) MoveToFolder(ctx context.Context, fileID string, folderID string) error {
	params := url.Values{
		"addParents":    {folderID},
		"removeParents": {"root"},
	}
	return s.call(
		ctx, http.MethodPatch,
		"/files/"+url.PathEscape(fileID)+"?"+params.Encode(),
		map[string]string{}, nil,
	)
}

func (s *restService) Rename(ctx context.Context, fileID string, name string) error {
	return s.call(
		ctx, http.MethodPatch, "/files/"+url.PathEscape(fileID),
		map[string]string{"name": name}, nil,
	)
}

func (s *restService) Publish(ctx context.Context, fileID string) error {
	return s.call(
		ctx, http.MethodPost, "/files/"+url.PathEscape(fileID)+"/permissions",
		map[string]string{"role": "reader", "type": "anyone"}, nil,
	)
}

func (s *restService) Delete(ctx context.Context, fileID string) error {
	return s.call(ctx, http.MethodDelete, "/files/"+url.PathEscape(fileID), nil, nil)
}

func (s *restService) About(ctx context.Context) (Quota, error) {
	about := struct {
		StorageQuota Quota `json:"storageQuota"`
	}{}
	err := s.call(ctx, http.MethodGet, "/about?fields=storageQuota", nil, &about)
	return about.StorageQuota, err
}

// call issues one request; payload (when non-nil) is sent as JSON and the
// response (when result is non-nil) decoded into result.
func (s *restService) call(ctx context.Context, method string, path string, payload any, result any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return xe.Wrap(err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return xe.Wrap(err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.hc.Do(req)
	if err != nil {
		return xe.Wrap(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || 300 <= resp.StatusCode {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		return fmt.Errorf(
			"drive rejected %s %s with status %d: %s",
			method, path, resp.StatusCode, detail,
		)
	}
	if result == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return xe.WrapWithNote(err, "broken drive response for %s %s", method, path)
	}
	return nil
}
