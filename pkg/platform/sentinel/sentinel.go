package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally wrapped)
// so services can translate them into coded domain errors:
//   - ErrNotFound: row does not exist
//   - ErrAlreadyUsed: a unique value (email, order id) is already taken
//   - ErrConflict: a concurrent writer won the race for the row
//   - ErrUnavailable: backing service temporarily unavailable
//
// Input validation belongs in pkg/domain-errors, not here.
var (
	ErrNotFound    = errors.New("not found")
	ErrAlreadyUsed = errors.New("already used")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("unavailable")
)
