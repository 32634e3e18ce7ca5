package domain

import "errors"

var (
	// record is not found
	ErrMissing = errors.New("missing")

	// a request option has an invalid value
	ErrBadOption = errors.New("invalid option")

	// state transition not allowed by the export lifecycle
	ErrInvalidStatusChanging = errors.New("invalid status changing")

	// the client already has a live export
	ErrExportConflict = errors.New("another export is running")

	// the requested collection holds no images
	ErrEmptyCollection = errors.New("no images in collection")
)
