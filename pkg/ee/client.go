// Package ee talks to the earth observation compute service over its REST
// API: one-shot evaluation of expression values, map tile registration,
// direct downloads and the batch export task lifecycle.
package ee

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/guojinxiang/ndvi-time-series/pkg/ee/expr"
)

// MapID identifies a registered map layer. Tiles are fetched from the
// service directly by the browser.
type MapID struct {
	MapID string `json:"mapid"`
	Token string `json:"token"`
}

// TileURLTemplate is the url pattern the map widget substitutes
// {z}/{x}/{y} into.
func (m MapID) TileURLTemplate(baseURL string) string {
	return fmt.Sprintf("%s/map/%s/{z}/{x}/{y}?token=%s", baseURL, m.MapID, m.Token)
}

// VisParams tune how a single-band image is rendered to map tiles.
type VisParams struct {
	Band    string
	Min     float64
	Max     float64
	Palette string
}

// ExportSpec describes a batch export of an image to Drive.
type ExportSpec struct {
	// Description names the task in the service's task list.
	Description string

	// FilenamePrefix is the name (or the per-part prefix) of the
	// produced files on Drive.
	FilenamePrefix string

	// Scale is the pixel resolution in meters.
	Scale int

	// MaxPixels caps the export size.
	MaxPixels float64
}

// DownloadSpec describes a synchronous (small) raster download.
type DownloadSpec struct {
	Name  string
	Scale int
}

// Client is the surface of the compute service this app uses.
type Client interface {
	// Value evaluates the expression and returns the raw result.
	Value(ctx context.Context, node *expr.Node) (json.RawMessage, error)

	// MapID registers the image as a map layer.
	MapID(ctx context.Context, image *expr.Node, vis VisParams) (MapID, error)

	// DownloadURL prepares a direct download of the image and returns
	// its url.
	DownloadURL(ctx context.Context, image *expr.Node, spec DownloadSpec) (string, error)

	// NewTaskID obtains a fresh id for a batch task.
	NewTaskID(ctx context.Context) (string, error)

	// StartExport submits the batch export of the image under the
	// given task id.
	StartExport(ctx context.Context, taskID string, image *expr.Node, spec ExportSpec) error

	// TaskStatus reports the current state of the batch task.
	TaskStatus(ctx context.Context, taskID string) (TaskStatus, error)

	// CancelTask requests the cancellation of the batch task.
	// The task may still complete.
	CancelTask(ctx context.Context, taskID string) error
}
