package sentinel

import "errors"

// Sentinel errors returned by stores and infrastructure adapters. Services
// translate them into coded domain errors or structured results:
// - ErrNotFound: no row for the requested id or foreign reference
// - ErrConflict: a uniqueness constraint on a foreign reference was hit
// - ErrUnavailable: backing store or broker cannot be reached
//
// Input validation never uses these; see pkg/domain-errors.
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("unavailable")
)
