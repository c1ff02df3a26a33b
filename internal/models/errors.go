package models

import "errors"

// ErrNotFound is returned by repositories when a record does not exist.
// Kept in this package so callers need not depend on the storage driver.
var ErrNotFound = errors.New("not found")
