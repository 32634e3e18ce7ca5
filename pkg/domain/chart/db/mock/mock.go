package mock

import (
	"context"
	"errors"
	"time"

	"github.com/guojinxiang/ndvi-time-series/pkg/domain"
	kdb "github.com/guojinxiang/ndvi-time-series/pkg/domain/chart/db"
)

type CallLog[T any] []T

func (l CallLog[T]) Times() uint {
	return uint(len(l))
}

type ChartJobInterface struct {
	Impl struct {
		Request func(context.Context, domain.ChartJob) (domain.ChartJob, error)
		Pick    func(context.Context, time.Duration, func(domain.ChartJob) (domain.ChartJob, error)) (bool, error)
	}
	Calls struct {
		Request CallLog[domain.ChartJob]
		Pick    CallLog[struct{ LeaseBudget time.Duration }]
	}
}

func NewJobs() *ChartJobInterface {
	return &ChartJobInterface{}
}

var _ kdb.ChartJobInterface = &ChartJobInterface{}

func (m *ChartJobInterface) Request(ctx context.Context, job domain.ChartJob) (domain.ChartJob, error) {
	m.Calls.Request = append(m.Calls.Request, job)
	if m.Impl.Request != nil {
		return m.Impl.Request(ctx, job)
	}
	panic(errors.New("it should not be called"))
}

func (m *ChartJobInterface) Pick(
	ctx context.Context,
	leaseBudget time.Duration,
	f func(domain.ChartJob) (domain.ChartJob, error),
) (bool, error) {
	m.Calls.Pick = append(m.Calls.Pick, struct{ LeaseBudget time.Duration }{LeaseBudget: leaseBudget})
	if m.Impl.Pick != nil {
		return m.Impl.Pick(ctx, leaseBudget, f)
	}
	panic(errors.New("it should not be called"))
}

type ChartInterface struct {
	Impl struct {
		Put           func(context.Context, domain.ChartSnapshot) error
		Get           func(context.Context, string) (domain.ChartSnapshot, error)
		DeleteExpired func(context.Context) (int, error)
	}
	Calls struct {
		Put           CallLog[domain.ChartSnapshot]
		Get           CallLog[struct{ ChartID string }]
		DeleteExpired CallLog[struct{}]
	}
}

func NewCharts() *ChartInterface {
	return &ChartInterface{}
}

var _ kdb.ChartInterface = &ChartInterface{}

func (m *ChartInterface) Put(ctx context.Context, snapshot domain.ChartSnapshot) error {
	m.Calls.Put = append(m.Calls.Put, snapshot)
	if m.Impl.Put != nil {
		return m.Impl.Put(ctx, snapshot)
	}
	panic(errors.New("it should not be called"))
}

func (m *ChartInterface) Get(ctx context.Context, chartID string) (domain.ChartSnapshot, error) {
	m.Calls.Get = append(m.Calls.Get, struct{ ChartID string }{ChartID: chartID})
	if m.Impl.Get != nil {
		return m.Impl.Get(ctx, chartID)
	}
	panic(errors.New("it should not be called"))
}

func (m *ChartInterface) DeleteExpired(ctx context.Context) (int, error) {
	m.Calls.DeleteExpired = append(m.Calls.DeleteExpired, struct{}{})
	if m.Impl.DeleteExpired != nil {
		return m.Impl.DeleteExpired(ctx)
	}
	panic(errors.New("it should not be called"))
}
