// Package stage defines authored stages, redirects, and the per-hand
// breadcrumb trail used for navigation history.
package stage

import (
	"sort"
	"strings"

	apperrors "github.com/louisbranch/convening.space/internal/platform/errors"
)

// BreadcrumbType controls how a newly created breadcrumb links to the trail.
type BreadcrumbType string

const (
	BreadcrumbUnspecified BreadcrumbType = ""
	// BreadcrumbNone creates an unlinked breadcrumb; no back or forward.
	BreadcrumbNone BreadcrumbType = "none"
	// BreadcrumbBack links the new breadcrumb to its predecessor only.
	BreadcrumbBack BreadcrumbType = "back"
	// BreadcrumbAll links both directions.
	BreadcrumbAll BreadcrumbType = "all"
)

var (
	// ErrEmptyName indicates a stage without a name.
	ErrEmptyName = apperrors.New(apperrors.CodeStageEmptyName, "stage name is required")
	// ErrInvalidBreadcrumbType indicates an unknown breadcrumb type label.
	ErrInvalidBreadcrumbType = apperrors.New(apperrors.CodeStageInvalidBreadcrumbType, "stage breadcrumb type is invalid")
)

// ParseBreadcrumbType canonicalizes a breadcrumb type label.
func ParseBreadcrumbType(value string) (BreadcrumbType, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "none":
		return BreadcrumbNone, true
	case "back":
		return BreadcrumbBack, true
	case "all":
		return BreadcrumbAll, true
	default:
		return BreadcrumbUnspecified, false
	}
}

// AllowsBack reports whether backward navigation is permitted.
func (b BreadcrumbType) AllowsBack() bool {
	return b == BreadcrumbBack || b == BreadcrumbAll
}

// Definition is the authored description of a stage.
type Definition struct {
	ID       string
	ModuleID string
	Name     string
	// PreActionID names an action run once on a hand's first arrival.
	PreActionID    string
	BreadcrumbType BreadcrumbType
	// EndStage marks the stage that completes its module when no redirect fires.
	EndStage bool
}

// Validate checks the authored invariants of a stage definition.
func (d Definition) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return ErrEmptyName
	}
	switch d.BreadcrumbType {
	case BreadcrumbNone, BreadcrumbBack, BreadcrumbAll:
		return nil
	default:
		return ErrInvalidBreadcrumbType
	}
}

// Redirect is an ordered, optionally conditioned stage transition rule.
type Redirect struct {
	ID          string
	StageID     string
	Order       int
	ConditionID string
	NextStageID string
}

// SortRedirects returns redirects in ascending order; order is the total
// tie-break used for deterministic selection.
func SortRedirects(redirects []Redirect) []Redirect {
	sorted := make([]Redirect, len(redirects))
	copy(sorted, redirects)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })
	return sorted
}

// Breadcrumb is a per-hand, per-visit navigation record. Links are held as
// ids rather than pointers; the trail is an acyclic doubly-linked path.
type Breadcrumb struct {
	ID         string
	HandID     string
	StageID    string
	PreviousID string
	NextID     string
	// Started flags that the stage's pre-action has fired for this visit.
	Started bool
}
