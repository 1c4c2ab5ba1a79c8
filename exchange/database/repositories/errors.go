package repositories

import "errors"

// ErrNotFound is returned when a requested row does not exist. Callers that
// need to distinguish missing rows from storage failures match it with
// errors.Is.
var ErrNotFound = errors.New("not found")
