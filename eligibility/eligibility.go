/*
Package eligibility decides whether a training counts toward payable totals.

COUNTING MODES:
  ONLY_CONFIRMED_ENDED (default):
    A training counts when its status is confirmed or ended. The excluded
    set (pending, open, canceled, draft, closed-recruiting) is checked
    first, so an excluded status never counts.

  COUNT_IF_ASSIGNED:
    A training counts when at least one main or assistant instructor is
    assigned to any of its lessons, whatever its status.

Statuses are normalized case-insensitively and accept the Korean labels
used by operators (확정, 종료, 대기, 오픈, 취소, 임시, 모집마감).
*/
package eligibility

import (
	"fmt"
	"strings"

	"github.com/warp/settlement-engine/generic"
)

// PolicyKey names the counting-mode policy in errors and storage.
const PolicyKey = "counting_mode"

type CountingMode string

const (
	OnlyConfirmedEnded CountingMode = "ONLY_CONFIRMED_ENDED"
	CountIfAssigned    CountingMode = "COUNT_IF_ASSIGNED"
)

// DefaultMode is used when no mode is stored.
const DefaultMode = OnlyConfirmedEnded

// ParseMode accepts a mode name in any case.
func ParseMode(s string) (CountingMode, error) {
	switch CountingMode(strings.ToUpper(strings.TrimSpace(s))) {
	case OnlyConfirmedEnded:
		return OnlyConfirmedEnded, nil
	case CountIfAssigned:
		return CountIfAssigned, nil
	}
	return "", &generic.PolicyError{Key: PolicyKey, Reason: fmt.Sprintf("unknown counting mode %q", s)}
}

// =============================================================================
// STATUS
// =============================================================================

type Status string

const (
	StatusConfirmed        Status = "CONFIRMED"
	StatusEnded            Status = "ENDED"
	StatusPending          Status = "PENDING"
	StatusOpen             Status = "OPEN"
	StatusCanceled         Status = "CANCELED"
	StatusDraft            Status = "DRAFT"
	StatusClosedRecruiting Status = "CLOSED_RECRUITING"
	StatusUnknown          Status = "UNKNOWN"
)

var statusAliases = map[string]Status{
	"CONFIRMED":         StatusConfirmed,
	"확정":                StatusConfirmed,
	"ENDED":             StatusEnded,
	"COMPLETED":         StatusEnded,
	"종료":                StatusEnded,
	"PENDING":           StatusPending,
	"대기":                StatusPending,
	"OPEN":              StatusOpen,
	"오픈":                StatusOpen,
	"CANCELED":          StatusCanceled,
	"CANCELLED":         StatusCanceled,
	"취소":                StatusCanceled,
	"DRAFT":             StatusDraft,
	"임시":                StatusDraft,
	"CLOSED_RECRUITING": StatusClosedRecruiting,
	"CLOSED":            StatusClosedRecruiting,
	"모집마감":              StatusClosedRecruiting,
}

// NormalizeStatus maps raw status text onto a Status.
func NormalizeStatus(raw string) Status {
	key := strings.ToUpper(strings.TrimSpace(raw))
	key = strings.ReplaceAll(key, " ", "_")
	key = strings.ReplaceAll(key, "-", "_")
	if s, ok := statusAliases[key]; ok {
		return s
	}
	return StatusUnknown
}

var (
	excluded = map[Status]bool{
		StatusPending: true, StatusOpen: true, StatusCanceled: true,
		StatusDraft: true, StatusClosedRecruiting: true,
	}
	included = map[Status]bool{StatusConfirmed: true, StatusEnded: true}
)

// =============================================================================
// FILTER
// =============================================================================

// Record is what the filter needs to know about a training.
type Record struct {
	Status            string
	MainAssigned      int
	AssistantAssigned int
}

type Filter struct {
	Mode CountingMode
}

func NewFilter(mode CountingMode) Filter {
	if mode == "" {
		mode = DefaultMode
	}
	return Filter{Mode: mode}
}

// Counts reports whether the training counts toward payable totals.
func (f Filter) Counts(r Record) bool {
	if f.Mode == CountIfAssigned {
		return r.MainAssigned > 0 || r.AssistantAssigned > 0
	}
	s := NormalizeStatus(r.Status)
	if excluded[s] {
		return false
	}
	return included[s]
}
