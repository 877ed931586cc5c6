/*
errors.go - Centralized error types for the settlement engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Domain packages wrap these errors with additional context.

ERROR CATEGORIES:
  1. Lookup errors - Missing records, regions, directory entries
  2. Validation errors - Malformed policies and periods
  3. Provider errors - Live distance provider failures

NON-FATAL CONDITIONS:
  Missing distances, unmapped regions and corrupt stored policies are NOT
  errors for the computation. They surface as Diagnostics warnings and the
  computation proceeds with a conservative value (0 km, default policy).

USAGE:
  if errors.Is(err, generic.ErrNotFound) {
      // key absent in the store
  }

SEE ALSO:
  - diagnostics.go: Non-fatal warnings
  - store.go: Uses ErrNotFound
*/
package generic

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a key or record doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidPolicy is returned when a policy payload fails validation.
	ErrInvalidPolicy = errors.New("invalid policy")

	// ErrUnknownRegion is returned when a region name maps to no city/county code.
	ErrUnknownRegion = errors.New("unknown region")

	// ErrInvalidPeriod is returned when a period is malformed (end before start).
	ErrInvalidPeriod = errors.New("invalid period: end before start")

	// ErrInvalidOverride is returned when an override carries no value or a negative value.
	ErrInvalidOverride = errors.New("invalid override")

	// ErrProviderUnavailable is returned when a live distance provider cannot answer.
	ErrProviderUnavailable = errors.New("distance provider unavailable")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// PolicyError names the policy key that failed to parse or validate.
type PolicyError struct {
	Key    string
	Reason string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("invalid policy %q: %s", e.Key, e.Reason)
}

func (e *PolicyError) Unwrap() error {
	return ErrInvalidPolicy
}

// RegionError describes a failed region resolution.
// Candidates is non-empty when the name was ambiguous.
type RegionError struct {
	Name       string
	Candidates []string
}

func (e *RegionError) Error() string {
	if len(e.Candidates) > 0 {
		return fmt.Sprintf("ambiguous region %q: candidates %s", e.Name, strings.Join(e.Candidates, ", "))
	}
	return fmt.Sprintf("unknown region %q", e.Name)
}

func (e *RegionError) Unwrap() error {
	return ErrUnknownRegion
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidPolicy) ||
		errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrInvalidOverride) ||
		errors.Is(err, ErrUnknownRegion)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
