package generic

import "fmt"

// =============================================================================
// DIAGNOSTICS - Data-completeness warnings surfaced to callers
// =============================================================================

type WarningCode string

const (
	WarnMissingDistance    WarningCode = "missing_distance"
	WarnUnmappedRegion     WarningCode = "unmapped_region"
	WarnUnknownInstructor  WarningCode = "unknown_instructor"
	WarnUnknownInstitution WarningCode = "unknown_institution"
	WarnInvalidPolicy      WarningCode = "invalid_policy"
	WarnProviderFallback   WarningCode = "provider_fallback"
)

// Warning is a non-fatal notice attached to a computation result.
// Ref points at the record that triggered it (instructor, date, row ID).
type Warning struct {
	Code    WarningCode `json:"code"`
	Message string      `json:"message"`
	Ref     string      `json:"ref,omitempty"`
}

func (w Warning) String() string {
	if w.Ref == "" {
		return fmt.Sprintf("%s: %s", w.Code, w.Message)
	}
	return fmt.Sprintf("%s: %s (%s)", w.Code, w.Message, w.Ref)
}

// Diagnostics collects warnings in the order they were raised.
type Diagnostics struct {
	Warnings []Warning
}

func (d *Diagnostics) Warn(code WarningCode, ref, format string, args ...any) {
	d.Warnings = append(d.Warnings, Warning{Code: code, Message: fmt.Sprintf(format, args...), Ref: ref})
}

// Merge appends another collection's warnings.
func (d *Diagnostics) Merge(other Diagnostics) {
	d.Warnings = append(d.Warnings, other.Warnings...)
}

func (d Diagnostics) Empty() bool { return len(d.Warnings) == 0 }

// Has reports whether any warning carries the code.
func (d Diagnostics) Has(code WarningCode) bool {
	for _, w := range d.Warnings {
		if w.Code == code {
			return true
		}
	}
	return false
}
