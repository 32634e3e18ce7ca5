package mock

import (
	"context"
	"errors"

	"github.com/guojinxiang/ndvi-time-series/pkg/domain"
	"github.com/guojinxiang/ndvi-time-series/pkg/notify"
)

type CallLog[T any] []T

func (l CallLog[T]) Times() uint {
	return uint(len(l))
}

type Messenger struct {
	Impl struct {
		Send  func(context.Context, string, domain.Message) error
		Clear func(context.Context, string) error
	}
	Calls struct {
		Send CallLog[struct {
			ClientID string
			Message  domain.Message
		}]
		Clear CallLog[struct{ ClientID string }]
	}
}

func New() *Messenger {
	m := &Messenger{}
	// delivery failures never fail the caller's operation, so most tests
	// just want a sink
	m.Impl.Send = func(context.Context, string, domain.Message) error { return nil }
	return m
}

var _ notify.Messenger = &Messenger{}

func (m *Messenger) Send(ctx context.Context, clientID string, message domain.Message) error {
	m.Calls.Send = append(m.Calls.Send, struct {
		ClientID string
		Message  domain.Message
	}{ClientID: clientID, Message: message})
	if m.Impl.Send != nil {
		return m.Impl.Send(ctx, clientID, message)
	}
	panic(errors.New("it should not be called"))
}

func (m *Messenger) Clear(ctx context.Context, clientID string) error {
	m.Calls.Clear = append(m.Calls.Clear, struct{ ClientID string }{ClientID: clientID})
	if m.Impl.Clear != nil {
		return m.Impl.Clear(ctx, clientID)
	}
	panic(errors.New("it should not be called"))
}
