package conditions

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/helios-suite/helios/internal/assignments"
)

// ProjectCounter reports how many active projects a user currently holds.
type ProjectCounter interface {
	CountActiveProjects(ctx context.Context, userID int64) (int, error)
}

// Evaluator applies the condition taxonomy to an evaluation input.
type Evaluator struct {
	projects ProjectCounter
	logger   *slog.Logger
}

// NewEvaluator constructs an Evaluator.
func NewEvaluator(projects ProjectCounter, logger *slog.Logger) *Evaluator {
	return &Evaluator{projects: projects, logger: logger}
}

// EvaluateAssignment reports whether every active condition on the
// assignment passes for in. No active conditions means pass.
func (e *Evaluator) EvaluateAssignment(ctx context.Context, a assignments.RoleAssignment, in Input) (bool, error) {
	for _, cond := range a.ActiveConditions() {
		ok, err := e.Evaluate(ctx, cond, in)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// Evaluate runs a single condition. An unknown kind passes with a warning so
// that a newer writer cannot lock every caller out of an older engine.
func (e *Evaluator) Evaluate(ctx context.Context, cond assignments.Condition, in Input) (bool, error) {
	switch cond.Kind {
	case KindTime:
		return e.evaluateTime(cond.Data, in), nil
	case KindLocation:
		return e.evaluateLocation(cond.Data, in), nil
	case KindBudget:
		return e.evaluateBudget(cond.Data, in), nil
	case KindResourceCount:
		return e.evaluateResourceCount(ctx, cond.Data, in)
	case KindCustom:
		return e.evaluateCustom(cond.Data, in), nil
	default:
		e.logger.Warn("conditions: unknown kind, passing", slog.String("kind", cond.Kind))
		return true, nil
	}
}

func (e *Evaluator) evaluateTime(data json.RawMessage, in Input) bool {
	var p TimePayload
	if err := json.Unmarshal(data, &p); err != nil {
		e.logger.Warn("conditions: malformed time payload, passing", slog.Any("error", err))
		return true
	}

	if p.WorkingHours != "" {
		start, end, err := parseWorkingHours(p.WorkingHours)
		if err != nil {
			// Leniency rule: a formatting typo must not lock users out.
			e.logger.Warn("conditions: unparsable working_hours, passing",
				slog.String("working_hours", p.WorkingHours), slog.Any("error", err))
		} else {
			minute := in.Now.Hour()*60 + in.Now.Minute()
			if minute < start || minute >= end {
				return false
			}
		}
	}

	if len(p.Weekdays) > 0 {
		allowed := false
		for _, day := range p.Weekdays {
			if day == int(in.Now.Weekday()) {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}

	if p.ValidFrom != nil && in.Now.Before(*p.ValidFrom) {
		return false
	}
	if p.ValidUntil != nil && in.Now.After(*p.ValidUntil) {
		return false
	}
	return true
}

// parseWorkingHours parses "HH:MM-HH:MM" into minutes-of-day bounds.
func parseWorkingHours(s string) (start, end int, err error) {
	parts := strings.Split(s, "-")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("conditions: want HH:MM-HH:MM, got %q", s)
	}
	if start, err = parseClock(parts[0]); err != nil {
		return 0, 0, err
	}
	if end, err = parseClock(parts[1]); err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

func parseClock(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("conditions: want HH:MM, got %q", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("conditions: bad hour in %q", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("conditions: bad minute in %q", s)
	}
	return hour*60 + minute, nil
}

func (e *Evaluator) evaluateLocation(data json.RawMessage, in Input) bool {
	var p LocationPayload
	if err := json.Unmarshal(data, &p); err != nil {
		e.logger.Warn("conditions: malformed location payload, passing", slog.Any("error", err))
		return true
	}

	if len(p.AllowedIPs) > 0 {
		found := false
		for _, ip := range p.AllowedIPs {
			if ip == in.IP {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	// Region is an optional signal: absent from context means skip.
	if len(p.AllowedRegions) > 0 && in.Region != "" {
		found := false
		for _, region := range p.AllowedRegions {
			if region == in.Region {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if p.RequireGeo && (in.Lat == nil || in.Lon == nil) {
		return false
	}
	return true
}

func (e *Evaluator) evaluateBudget(data json.RawMessage, in Input) bool {
	var p BudgetPayload
	if err := json.Unmarshal(data, &p); err != nil {
		e.logger.Warn("conditions: malformed budget payload, passing", slog.Any("error", err))
		return true
	}
	if p.MaxAmount != nil && in.Amount != nil && *in.Amount > *p.MaxAmount {
		return false
	}
	// Daily and monthly cumulative limits have no evaluation logic yet.
	// They must pass rather than guess a stricter policy.
	return true
}

func (e *Evaluator) evaluateResourceCount(ctx context.Context, data json.RawMessage, in Input) (bool, error) {
	var p ResourceCountPayload
	if err := json.Unmarshal(data, &p); err != nil {
		e.logger.Warn("conditions: malformed resource_count payload, passing", slog.Any("error", err))
		return true, nil
	}
	if p.MaxProjects == nil {
		return true, nil
	}
	// The user identity is a mandatory signal here: without it the ceiling
	// cannot be enforced, so the check fails closed.
	if in.UserID == 0 {
		return false, nil
	}
	count, err := e.projects.CountActiveProjects(ctx, in.UserID)
	if err != nil {
		return false, fmt.Errorf("conditions: count projects for user %d: %w", in.UserID, err)
	}
	return count < *p.MaxProjects, nil
}

func (e *Evaluator) evaluateCustom(data json.RawMessage, in Input) bool {
	var p CustomPayload
	if err := json.Unmarshal(data, &p); err != nil {
		e.logger.Warn("conditions: malformed custom payload, passing", slog.Any("error", err))
		return true
	}

	if p.MinAccessLevel != nil {
		if level, ok := intAttr(in.Attrs, "access_level"); ok && level < *p.MinAccessLevel {
			return false
		}
	}
	if p.MinExperienceMonths != nil {
		if months, ok := intAttr(in.Attrs, "experience_months"); ok && months < *p.MinExperienceMonths {
			return false
		}
	}
	for key, want := range p.Attributes {
		got, ok := in.Attrs[key]
		if !ok {
			// Absent on either side skips the sub-check.
			continue
		}
		if fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

func intAttr(attrs map[string]any, key string) (int, bool) {
	v, ok := attrs[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case string:
		parsed, err := strconv.Atoi(n)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}
