package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores, provider clients and
// coordination layers return these (optionally wrapped) so services can
// translate them into domain errors.
//
//   - ErrNotFound: entity does not exist
//   - ErrConflict: a uniqueness constraint rejected the write
//   - ErrInvalidState: entity in wrong state for the requested transition
//   - ErrUnavailable: dependency temporarily unavailable
//   - ErrLeaseHeld: another instance holds the coordination lease
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
	ErrLeaseHeld    = errors.New("lease held")
)
