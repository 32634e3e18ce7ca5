package mock

import (
	"context"
	"errors"
	"time"

	"github.com/guojinxiang/ndvi-time-series/pkg/drive"
)

type CallLog[T any] []T

func (l CallLog[T]) Times() uint {
	return uint(len(l))
}

type Service struct {
	Impl struct {
		FilesByPrefix  func(context.Context, string) ([]drive.File, error)
		FilesOlderThan func(context.Context, time.Time) ([]drive.File, error)
		CreateFolder   func(context.Context, string) (drive.File, error)
		MoveToFolder   func(context.Context, string, string) error
		Rename         func(context.Context, string, string) error
		Publish        func(context.Context, string) error
		Delete         func(context.Context, string) error
		About          func(context.Context) (drive.Quota, error)
	}
	Calls struct {
		FilesByPrefix  CallLog[struct{ Prefix string }]
		FilesOlderThan CallLog[struct{ Cutoff time.Time }]
		CreateFolder   CallLog[struct{ Name string }]
		MoveToFolder   CallLog[struct{ FileID, FolderID string }]
		Rename         CallLog[struct{ FileID, Name string }]
		Publish        CallLog[struct{ FileID string }]
		Delete         CallLog[struct{ FileID string }]
		About          CallLog[struct{}]
	}
}

func New() *Service {
	return &Service{}
}

var _ drive.Service = &Service{}

func (m *Service) FilesByPrefix(ctx context.Context, prefix string) ([]drive.File, error) {
	m.Calls.FilesByPrefix = append(m.Calls.FilesByPrefix, struct{ Prefix string }{Prefix: prefix})
	if m.Impl.FilesByPrefix != nil {
		return m.Impl.FilesByPrefix(ctx, prefix)
	}
	panic(errors.New("it should not be called"))
}

func (m *Service) FilesOlderThan(ctx context.Context, cutoff time.Time) ([]drive.File, error) {
	m.Calls.FilesOlderThan = append(m.Calls.FilesOlderThan, struct{ Cutoff time.Time }{Cutoff: cutoff})
	if m.Impl.FilesOlderThan != nil {
		return m.Impl.FilesOlderThan(ctx, cutoff)
	}
	panic(errors.New("it should not be called"))
}

func (m *Service) CreateFolder(ctx context.Context, name string) (drive.File, error) {
	m.Calls.CreateFolder = append(m.Calls.CreateFolder, struct{ Name string }{Name: name})
	if m.Impl.CreateFolder != nil {
		return m.Impl.CreateFolder(ctx, name)
	}
	panic(errors.New("it should not be called"))
}

func (m *Service) MoveToFolder(ctx context.Context, fileID string, folderID string) error {
	m.Calls.MoveToFolder = append(m.Calls.MoveToFolder, struct{ FileID, FolderID string }{FileID: fileID, FolderID: folderID})
	if m.Impl.MoveToFolder != nil {
		return m.Impl.MoveToFolder(ctx, fileID, folderID)
	}
	panic(errors.New("it should not be called"))
}

func (m *Service) Rename(ctx context.Context, fileID string, name string) error {
	m.Calls.Rename = append(m.Calls.Rename, struct{ FileID, Name string }{FileID: fileID, Name: name})
	if m.Impl.Rename != nil {
		return m.Impl.Rename(ctx, fileID, name)
	}
	panic(errors.New("it should not be called"))
}

func (m *Service) Publish(ctx context.Context, fileID string) error {
	m.Calls.Publish = append(m.Calls.Publish, struct{ FileID string }{FileID: fileID})
	if m.Impl.Publish != nil {
		return m.Impl.Publish(ctx, fileID)
	}
	panic(errors.New("it should not be called"))
}

func (m *Service) Delete(ctx context.Context, fileID string) error {
	m.Calls.Delete = append(m.Calls.Delete, struct{ FileID string }{FileID: fileID})
	if m.Impl.Delete != nil {
		return m.Impl.Delete(ctx, fileID)
	}
	panic(errors.New("it should not be called"))
}

func (m *Service) About(ctx context.Context) (drive.Quota, error) {
	m.Calls.About = append(m.Calls.About, struct{}{})
	if m.Impl.About != nil {
		return m.Impl.About(ctx)
	}
	panic(errors.New("it should not be called"))
}
