// Package conditions evaluates the ABAC predicates attached to role
// assignments. Conditions combine with logical AND; an assignment with no
// active conditions always passes.
package conditions

import "time"

// Condition kinds.
const (
	KindTime          = "time"
	KindLocation      = "location"
	KindBudget        = "budget"
	KindResourceCount = "resource_count"
	KindCustom        = "custom"
)

// TimePayload restricts when an assignment may be used. Every present
// sub-check must pass.
type TimePayload struct {
	// WorkingHours is a daily "HH:MM-HH:MM" window. A value that does not
	// parse is treated as always-pass with a warning, never as a lockout.
	WorkingHours string `json:"working_hours,omitempty"`
	// Weekdays allows use only on the listed days (time.Weekday values).
	Weekdays []int `json:"weekdays,omitempty"`
	// ValidFrom / ValidUntil bound the absolute validity window.
	ValidFrom  *time.Time `json:"valid_from,omitempty"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`
}

// LocationPayload restricts where a caller may act from.
type LocationPayload struct {
	AllowedIPs     []string `json:"allowed_ips,omitempty"`
	AllowedRegions []string `json:"allowed_regions,omitempty"`
	// RequireGeo fails the check when the evaluation context has no
	// coordinates at all.
	RequireGeo bool `json:"require_geolocation,omitempty"`
}

// BudgetPayload caps monetary operations. DailyLimit and MonthlyLimit are
// declared for configuration compatibility but carry no evaluation logic
// yet; until implemented they always pass.
type BudgetPayload struct {
	MaxAmount    *float64 `json:"max_amount,omitempty"`
	DailyLimit   *float64 `json:"daily_limit,omitempty"`
	MonthlyLimit *float64 `json:"monthly_limit,omitempty"`
}

// ResourceCountPayload caps how many active projects the user may hold.
type ResourceCountPayload struct {
	MaxProjects *int `json:"max_projects,omitempty"`
}

// CustomPayload carries ad-hoc minimum-threshold comparisons. A sub-check
// only runs when both the payload and the evaluation context carry the key.
type CustomPayload struct {
	MinAccessLevel      *int           `json:"min_access_level,omitempty"`
	MinExperienceMonths *int           `json:"min_experience_months,omitempty"`
	Attributes          map[string]any `json:"attributes,omitempty"`
}

// Input is the runtime evaluation context a check runs against. Optional
// signals are pointers; their absence skips the corresponding sub-check
// rather than failing it. UserID is mandatory only where a kind says so.
type Input struct {
	Now    time.Time
	UserID int64
	IP     string
	Region string
	Lat    *float64
	Lon    *float64
	Amount *float64
	Attrs  map[string]any
}
