// Package fault defines the error taxonomy shared by the board engine.
//
// Errors fall into four classes:
//
//   - ErrStorage: local persistence failed (store error, corrupt JSON).
//     Recovered by degrading to an empty value; only logged.
//   - ErrSettingsSync: the remote settings write failed. Recovered by
//     rolling back the optimistic local state and notifying the user.
//   - ErrGraphIntegrity: a mutation would create a dangling edge or a
//     duplicate id. The change is skipped; the rest of the batch applies.
//   - ErrExternalFetch: the card list could not be loaded. Surfaced as a
//     blocking error state with a retry.
//
// More specific sentinels wrap one of the classes so callers can test
// either level with errors.Is:
//
//	if errors.Is(err, fault.ErrGraphIntegrity) {
//	    // skipped change
//	}
package fault

import (
	"errors"
	"fmt"
)

// Fault classes.
var (
	ErrStorage        = errors.New("storage fault")
	ErrSettingsSync   = errors.New("settings sync fault")
	ErrGraphIntegrity = errors.New("graph integrity fault")
	ErrExternalFetch  = errors.New("external fetch fault")
)

// Specific errors. Each one belongs to a class above or is an input error.
var (
	// ErrDuplicateID is returned when a node or edge id is already present.
	ErrDuplicateID = fmt.Errorf("%w: duplicate id", ErrGraphIntegrity)

	// ErrDanglingEdge is returned when an edge endpoint is not a known node.
	ErrDanglingEdge = fmt.Errorf("%w: edge references missing node", ErrGraphIntegrity)

	// ErrNodeNotFound is returned when an operation names an unknown node.
	ErrNodeNotFound = errors.New("node not found")

	// ErrEdgeNotFound is returned when an operation names an unknown edge.
	ErrEdgeNotFound = errors.New("edge not found")

	// ErrSelfConnection is returned when a connect gesture targets its own source.
	ErrSelfConnection = errors.New("cannot connect a node to itself")

	// ErrInvalidPayload is returned when gesture input fails validation.
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrInvalidChange is returned for malformed change entries.
	ErrInvalidChange = errors.New("invalid change")

	// ErrInvalidSettings is returned when a merged settings record fails validation.
	ErrInvalidSettings = errors.New("invalid settings")

	// ErrSaveFailed is returned by manual save when persistence failed.
	ErrSaveFailed = fmt.Errorf("%w: save failed", ErrStorage)
)

// IsRetryable returns true if the operation that produced err can be retried
// by the user (remote settings write, card fetch).
func IsRetryable(err error) bool {
	return errors.Is(err, ErrExternalFetch) || errors.Is(err, ErrSettingsSync)
}

// IsSilent returns true for faults that are only logged, never shown.
func IsSilent(err error) bool {
	if errors.Is(err, ErrSaveFailed) {
		return false
	}
	return errors.Is(err, ErrStorage) || errors.Is(err, ErrGraphIntegrity)
}

// Storage wraps err as a storage fault with an operation description.
func Storage(op string, err error) error {
	return fmt.Errorf("%w: failed to %s: %v", ErrStorage, op, err)
}

// ExternalFetch wraps err as an external fetch fault.
func ExternalFetch(op string, err error) error {
	return fmt.Errorf("%w: failed to %s: %v", ErrExternalFetch, op, err)
}

// SettingsSync wraps err as a settings sync fault.
func SettingsSync(err error) error {
	return fmt.Errorf("%w: %v", ErrSettingsSync, err)
}
