package mock

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/guojinxiang/ndvi-time-series/pkg/ee"
	"github.com/guojinxiang/ndvi-time-series/pkg/ee/expr"
)

type CallLog[T any] []T

func (l CallLog[T]) Times() uint {
	return uint(len(l))
}

// Client records calls and delegates to the functions set in Impl.
// Calling a method with no Impl set panics.
type Client struct {
	Impl struct {
		Value       func(context.Context, *expr.Node) (json.RawMessage, error)
		MapID       func(context.Context, *expr.Node, ee.VisParams) (ee.MapID, error)
		DownloadURL func(context.Context, *expr.Node, ee.DownloadSpec) (string, error)
		NewTaskID   func(context.Context) (string, error)
		StartExport func(context.Context, string, *expr.Node, ee.ExportSpec) error
		TaskStatus  func(context.Context, string) (ee.TaskStatus, error)
		CancelTask  func(context.Context, string) error
	}
	Calls struct {
		Value       CallLog[struct{ Node *expr.Node }]
		MapID       CallLog[struct {
			Image *expr.Node
			Vis   ee.VisParams
		}]
		DownloadURL CallLog[struct {
			Image *expr.Node
			Spec  ee.DownloadSpec
		}]
		NewTaskID   CallLog[struct{}]
		StartExport CallLog[struct {
			TaskID string
			Image  *expr.Node
			Spec   ee.ExportSpec
		}]
		TaskStatus CallLog[struct{ TaskID string }]
		CancelTask CallLog[struct{ TaskID string }]
	}
}

func New() *Client {
	return &Client{}
}

var _ ee.Client = &Client{}

func (m *Client) Value(ctx context.Context, node *expr.Node) (json.RawMessage, error) {
	m.Calls.Value = append(m.Calls.Value, struct{ Node *expr.Node }{Node: node})
	if m.Impl.Value != nil {
		return m.Impl.Value(ctx, node)
	}
	panic(errors.New("it should not be called"))
}

func (m *Client) MapID(ctx context.Context, image *expr.Node, vis ee.VisParams) (ee.MapID, error) {
	m.Calls.MapID = append(m.Calls.MapID, struct {
		Image *expr.Node
		Vis   ee.VisParams
	}{Image: image, Vis: vis})
	if m.Impl.MapID != nil {
		return m.Impl.MapID(ctx, image, vis)
	}
	panic(errors.New("it should not be called"))
}

func (m *Client) DownloadURL(ctx context.Context, image *expr.Node, spec ee.DownloadSpec) (string, error) {
	m.Calls.DownloadURL = append(m.Calls.DownloadURL, struct {
		Image *expr.Node
		Spec  ee.DownloadSpec
	}{Image: image, Spec: spec})
	if m.Impl.DownloadURL != nil {
		return m.Impl.DownloadURL(ctx, image, spec)
	}
	panic(errors.New("it should not be called"))
}

func (m *Client) NewTaskID(ctx context.Context) (string, error) {
	m.Calls.NewTaskID = append(m.Calls.NewTaskID, struct{}{})
	if m.Impl.NewTaskID != nil {
		return m.Impl.NewTaskID(ctx)
	}
	panic(errors.New("it should not be called"))
}

func (m *Client) StartExport(ctx context.Context, taskID string, image *expr.Node, spec ee.ExportSpec) error {
	m.Calls.StartExport = append(m.Calls.StartExport, struct {
		TaskID string
		Image  *expr.Node
		Spec   ee.ExportSpec
	}{TaskID: taskID, Image: image, Spec: spec})
	if m.Impl.StartExport != nil {
		return m.Impl.StartExport(ctx, taskID, image, spec)
	}
	panic(errors.New("it should not be called"))
}

func (m *Client) TaskStatus(ctx context.Context, taskID string) (ee.TaskStatus, error) {
	m.Calls.TaskStatus = append(m.Calls.TaskStatus, struct{ TaskID string }{TaskID: taskID})
	if m.Impl.TaskStatus != nil {
		return m.Impl.TaskStatus(ctx, taskID)
	}
	panic(errors.New("it should not be called"))
}

func (m *Client) CancelTask(ctx context.Context, taskID string) error {
	m.Calls.CancelTask = append(m.Calls.CancelTask, struct{ TaskID string }{TaskID: taskID})
	if m.Impl.CancelTask != nil {
		return m.Impl.CancelTask(ctx, taskID)
	}
	panic(errors.New("it should not be called"))
}
