// Package store holds what the catalog backends share.
package store

import "errors"

// ErrNotFound is returned when a movie with the requested id does not exist.
var ErrNotFound = errors.New("movie not found")
