package mock

import (
	"context"
	"errors"
	"time"

	"github.com/guojinxiang/ndvi-time-series/pkg/domain"
	kdb "github.com/guojinxiang/ndvi-time-series/pkg/domain/export/db"
)

type CallLog[T any] []T

func (l CallLog[T]) Times() uint {
	return uint(len(l))
}

type ExportInterface struct {
	Impl struct {
		Request        func(context.Context, domain.Export) (domain.Export, error)
		Get            func(context.Context, string) (domain.Export, error)
		GetLive        func(context.Context, string) (domain.Export, error)
		GetByFilename  func(context.Context, string, string) (domain.Export, error)
		Pick           func(context.Context, time.Duration, func(domain.Export) (domain.Export, error)) (bool, error)
		RequestCancel  func(context.Context, string) (domain.Export, error)
		FinishedBefore func(context.Context, time.Time) ([]domain.Export, error)
		Delete         func(context.Context, string) error
	}
	Calls struct {
		Request        CallLog[domain.Export]
		Get            CallLog[struct{ ExportID string }]
		GetLive        CallLog[struct{ ClientID string }]
		GetByFilename  CallLog[struct{ ClientID, Filename string }]
		Pick           CallLog[struct{ LeaseBudget time.Duration }]
		RequestCancel  CallLog[struct{ ClientID string }]
		FinishedBefore CallLog[struct{ Cutoff time.Time }]
		Delete         CallLog[struct{ ExportID string }]
	}
}

func New() *ExportInterface {
	return &ExportInterface{}
}

var _ kdb.ExportInterface = &ExportInterface{}

func (m *ExportInterface) Request(ctx context.Context, ex domain.Export) (domain.Export, error) {
	m.Calls.Request = append(m.Calls.Request, ex)
	if m.Impl.Request != nil {
		return m.Impl.Request(ctx, ex)
	}
	panic(errors.New("it should not be called"))
}

func (m *ExportInterface) Get(ctx context.Context, exportID string) (domain.Export, error) {
	m.Calls.Get = append(m.Calls.Get, struct{ ExportID string }{ExportID: exportID})
	if m.Impl.Get != nil {
		return m.Impl.Get(ctx, exportID)
	}
	panic(errors.New("it should not be called"))
}

func (m *ExportInterface) GetLive(ctx context.Context, clientID string) (domain.Export, error) {
	m.Calls.GetLive = append(m.Calls.GetLive, struct{ ClientID string }{ClientID: clientID})
	if m.Impl.GetLive != nil {
		return m.Impl.GetLive(ctx, clientID)
	}
	panic(errors.New("it should not be called"))
}

func (m *ExportInterface) GetByFilename(ctx context.Context, clientID string, filename string) (domain.Export, error) {
	m.Calls.GetByFilename = append(m.Calls.GetByFilename, struct{ ClientID, Filename string }{ClientID: clientID, Filename: filename})
	if m.Impl.GetByFilename != nil {
		return m.Impl.GetByFilename(ctx, clientID, filename)
	}
	panic(errors.New("it should not be called"))
}

func (m *ExportInterface) Pick(
	ctx context.Context,
	leaseBudget time.Duration,
	f func(domain.Export) (domain.Export, error),
) (bool, error) {
	m.Calls.Pick = append(m.Calls.Pick, struct{ LeaseBudget time.Duration }{LeaseBudget: leaseBudget})
	if m.Impl.Pick != nil {
		return m.Impl.Pick(ctx, leaseBudget, f)
	}
	panic(errors.New("it should not be called"))
}

func (m *ExportInterface) RequestCancel(ctx context.Context, clientID string) (domain.Export, error) {
	m.Calls.RequestCancel = append(m.Calls.RequestCancel, struct{ ClientID string }{ClientID: clientID})
	if m.Impl.RequestCancel != nil {
		return m.Impl.RequestCancel(ctx, clientID)
	}
	panic(errors.New("it should not be called"))
}

func (m *ExportInterface) FinishedBefore(ctx context.Context, cutoff time.Time) ([]domain.Export, error) {
	m.Calls.FinishedBefore = append(m.Calls.FinishedBefore, struct{ Cutoff time.Time }{Cutoff: cutoff})
	if m.Impl.FinishedBefore != nil {
		return m.Impl.FinishedBefore(ctx, cutoff)
	}
	panic(errors.New("it should not be called"))
}

func (m *ExportInterface) Delete(ctx context.Context, exportID string) error {
	m.Calls.Delete = append(m.Calls.Delete, struct{ ExportID string }{ExportID: exportID})
	if m.Impl.Delete != nil {
		return m.Impl.Delete(ctx, exportID)
	}
	panic(errors.New("it should not be called"))
}
