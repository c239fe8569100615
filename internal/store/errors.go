package store

import (
	"fleetmon/internal/errors"
)

var (
	ErrNotFound       = errors.ErrNotFound
	ErrSourceNotFound = errors.ErrSourceNotFound
	ErrUnavailable    = errors.ErrStoreUnavailable
	ErrClosed         = errors.ErrStoreClosed
)
