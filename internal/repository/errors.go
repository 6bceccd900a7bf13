package repository

import "errors"

// ErrNotFound is returned when a queried row does not exist. The service
// layer translates it into its typed NotFoundError with the resource name.
var ErrNotFound = errors.New("not found")
