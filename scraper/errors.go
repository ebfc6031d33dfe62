package scraper

import (
	"errors"
	"fmt"
)

// ErrNavigationTimeout means the first page or the search input never became
// ready. Nothing was collected yet, so callers may retry the whole run.
var ErrNavigationTimeout = errors.New("navigation timeout")

// ErrPageTimeout means a later result page never became ready. The run ends
// FAILED with the records of the earlier pages and must not be retried.
var ErrPageTimeout = errors.New("page timeout")

// RecoveredKind names a failure the controller swallows and keeps going
type RecoveredKind int

const (
	ExtractionFieldMissing RecoveredKind = iota + 1
	ModalDismissalFailure
	PaginationAdvanceFailure
)

func (k RecoveredKind) String() string {
	switch k {
	case ExtractionFieldMissing:
		return "extraction_field_missing"
	case ModalDismissalFailure:
		return "modal_dismissal_failure"
	case PaginationAdvanceFailure:
		return "pagination_advance_failure"
	default:
		return "unknown"
	}
}

// Recovered records one swallowed failure
type Recovered struct {
	Kind RecoveredKind
	Page int
	Err  error
}

func (r Recovered) String() string {
	return fmt.Sprintf("%s on page %d: %v", r.Kind, r.Page, r.Err)
}
