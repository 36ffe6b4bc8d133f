package customroles

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
)

// CustomRole is a tenant-authored role. It has the same permission shape as
// a built-in descriptor but lives as mutable tenant data.
type CustomRole struct {
	ID                uuid.UUID
	OrgID             int64
	Slug              string
	Name              string
	Description       string
	SystemPermissions []string
	ModulePermissions map[string][]string
	Interfaces        []string
	// ConditionTemplate is an optional condition block copied onto
	// assignments created from this role.
	ConditionTemplate json.RawMessage
	Active            bool
	CreatedBy         *int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
	DeletedAt         *time.Time
}

var slugFolder = cases.Fold()

// NormalizeSlug case-folds and hyphen-normalizes a role slug so lookups are
// stable regardless of how the tenant typed the name.
func NormalizeSlug(s string) string {
	folded := slugFolder.String(strings.TrimSpace(s))
	folded = strings.ReplaceAll(folded, " ", "_")
	return folded
}

// FieldErrors reports validation failures per field so callers can surface
// them next to the offending input. It implements error.
type FieldErrors map[string][]string

// Add appends a message to one field.
func (fe FieldErrors) Add(field, message string) {
	fe[field] = append(fe[field], message)
}

// Any reports whether any field failed.
func (fe FieldErrors) Any() bool {
	return len(fe) > 0
}

// Error summarizes the failing fields.
func (fe FieldErrors) Error() string {
	fields := make([]string, 0, len(fe))
	for f := range fe {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fmt.Sprintf("customroles: validation failed on %s", strings.Join(fields, ", "))
}
