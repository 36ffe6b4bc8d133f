package conditions

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/helios-suite/helios/internal/assignments"
)

type fakeCounter struct {
	count int
	err   error
	calls int
}

func (f *fakeCounter) CountActiveProjects(_ context.Context, _ int64) (int, error) {
	f.calls++
	return f.count, f.err
}

func cond(kind string, payload any) assignments.Condition {
	data, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	return assignments.Condition{Kind: kind, Data: data, Active: true}
}

// Tuesday 10:00.
var tuesdayMorning = time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC)

func TestEvaluateTimeWorkingHours(t *testing.T) {
	e := NewEvaluator(&fakeCounter{}, slog.Default())
	c := cond(KindTime, TimePayload{WorkingHours: "09:00-18:00"})

	ok, err := e.Evaluate(context.Background(), c, Input{Now: tuesdayMorning})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !ok {
		t.Fatal("10:00 falls inside 09:00-18:00")
	}

	evening := tuesdayMorning.Add(10 * time.Hour)
	ok, _ = e.Evaluate(context.Background(), c, Input{Now: evening})
	if ok {
		t.Fatal("20:00 falls outside 09:00-18:00")
	}

	// End of window is exclusive.
	six := time.Date(2026, 3, 3, 18, 0, 0, 0, time.UTC)
	ok, _ = e.Evaluate(context.Background(), c, Input{Now: six})
	if ok {
		t.Fatal("18:00 is outside an 09:00-18:00 window")
	}
}

func TestEvaluateTimeMalformedWorkingHoursPasses(t *testing.T) {
	e := NewEvaluator(&fakeCounter{}, slog.Default())
	for _, raw := range []string{"9-18", "25:00-26:00", "workinghours", ""} {
		c := cond(KindTime, TimePayload{WorkingHours: raw})
		ok, err := e.Evaluate(context.Background(), c, Input{Now: tuesdayMorning})
		if err != nil {
			t.Fatalf("Evaluate(%q): %v", raw, err)
		}
		if !ok {
			t.Fatalf("unparsable working_hours %q must not lock out", raw)
		}
	}
}

func TestEvaluateTimeWeekdays(t *testing.T) {
	e := NewEvaluator(&fakeCounter{}, slog.Default())
	c := cond(KindTime, TimePayload{Weekdays: []int{1, 2, 3, 4, 5}})

	ok, _ := e.Evaluate(context.Background(), c, Input{Now: tuesdayMorning})
	if !ok {
		t.Fatal("Tuesday should pass a weekday window")
	}

	sunday := tuesdayMorning.AddDate(0, 0, 5)
	ok, _ = e.Evaluate(context.Background(), c, Input{Now: sunday})
	if ok {
		t.Fatal("Sunday should fail a weekday window")
	}
}

func TestEvaluateTimeValidityWindow(t *testing.T) {
	e := NewEvaluator(&fakeCounter{}, slog.Default())
	from := tuesdayMorning.Add(time.Hour)
	c := cond(KindTime, TimePayload{ValidFrom: &from})

	ok, _ := e.Evaluate(context.Background(), c, Input{Now: tuesdayMorning})
	if ok {
		t.Fatal("before valid_from must fail")
	}
	ok, _ = e.Evaluate(context.Background(), c, Input{Now: from.Add(time.Minute)})
	if !ok {
		t.Fatal("after valid_from must pass")
	}
}

func TestEvaluateLocation(t *testing.T) {
	e := NewEvaluator(&fakeCounter{}, slog.Default())
	c := cond(KindLocation, LocationPayload{
		AllowedIPs:     []string{"10.0.0.1"},
		AllowedRegions: []string{"eu-west"},
	})

	ok, _ := e.Evaluate(context.Background(), c, Input{IP: "10.0.0.1", Region: "eu-west"})
	if !ok {
		t.Fatal("allowed IP and region should pass")
	}

	ok, _ = e.Evaluate(context.Background(), c, Input{IP: "10.0.0.2", Region: "eu-west"})
	if ok {
		t.Fatal("unlisted IP must fail")
	}

	// Region missing from the evaluation context skips the region check.
	ok, _ = e.Evaluate(context.Background(), c, Input{IP: "10.0.0.1"})
	if !ok {
		t.Fatal("absent region signal skips the region sub-check")
	}
}

func TestEvaluateLocationRequireGeo(t *testing.T) {
	e := NewEvaluator(&fakeCounter{}, slog.Default())
	c := cond(KindLocation, LocationPayload{RequireGeo: true})

	ok, _ := e.Evaluate(context.Background(), c, Input{})
	if ok {
		t.Fatal("require_geolocation without coordinates must fail")
	}

	lat, lon := 52.5, 13.4
	ok, _ = e.Evaluate(context.Background(), c, Input{Lat: &lat, Lon: &lon})
	if !ok {
		t.Fatal("coordinates present should pass")
	}
}

func TestEvaluateBudget(t *testing.T) {
	e := NewEvaluator(&fakeCounter{}, slog.Default())
	limit := 500.0
	c := cond(KindBudget, BudgetPayload{MaxAmount: &limit})

	amount := 499.0
	ok, _ := e.Evaluate(context.Background(), c, Input{Amount: &amount})
	if !ok {
		t.Fatal("amount under the cap should pass")
	}

	amount = 501.0
	ok, _ = e.Evaluate(context.Background(), c, Input{Amount: &amount})
	if ok {
		t.Fatal("amount over the cap must fail")
	}

	// No amount in the evaluation context skips the cap.
	ok, _ = e.Evaluate(context.Background(), c, Input{})
	if !ok {
		t.Fatal("absent amount signal skips the cap")
	}
}

func TestEvaluateResourceCount(t *testing.T) {
	counter := &fakeCounter{count: 2}
	e := NewEvaluator(counter, slog.Default())
	max := 3
	c := cond(KindResourceCount, ResourceCountPayload{MaxProjects: &max})

	ok, err := e.Evaluate(context.Background(), c, Input{UserID: 7})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !ok {
		t.Fatal("2 of 3 projects should pass")
	}

	counter.count = 3
	ok, _ = e.Evaluate(context.Background(), c, Input{UserID: 7})
	if ok {
		t.Fatal("at the ceiling must fail")
	}
}

func TestEvaluateResourceCountNoUserFailsClosed(t *testing.T) {
	counter := &fakeCounter{count: 0}
	e := NewEvaluator(counter, slog.Default())
	max := 3
	c := cond(KindResourceCount, ResourceCountPayload{MaxProjects: &max})

	ok, err := e.Evaluate(context.Background(), c, Input{})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if ok {
		t.Fatal("missing user identity must fail closed")
	}
	if counter.calls != 0 {
		t.Fatal("store must not be consulted without a user id")
	}
}

func TestEvaluateResourceCountStoreError(t *testing.T) {
	counter := &fakeCounter{err: errors.New("db down")}
	e := NewEvaluator(counter, slog.Default())
	max := 3
	c := cond(KindResourceCount, ResourceCountPayload{MaxProjects: &max})

	_, err := e.Evaluate(context.Background(), c, Input{UserID: 7})
	if err == nil {
		t.Fatal("store failure must surface as an error")
	}
}

func TestEvaluateCustom(t *testing.T) {
	e := NewEvaluator(&fakeCounter{}, slog.Default())
	level := 5
	c := cond(KindCustom, CustomPayload{
		MinAccessLevel: &level,
		Attributes:     map[string]any{"department": "finance"},
	})

	ok, _ := e.Evaluate(context.Background(), c, Input{Attrs: map[string]any{
		"access_level": 7, "department": "finance",
	}})
	if !ok {
		t.Fatal("satisfied thresholds should pass")
	}

	ok, _ = e.Evaluate(context.Background(), c, Input{Attrs: map[string]any{
		"access_level": 3, "department": "finance",
	}})
	if ok {
		t.Fatal("access level under the minimum must fail")
	}

	// Keys absent from the evaluation context skip their sub-checks.
	ok, _ = e.Evaluate(context.Background(), c, Input{Attrs: map[string]any{}})
	if !ok {
		t.Fatal("absent attributes skip the sub-checks")
	}
}

func TestEvaluateUnknownKindPasses(t *testing.T) {
	e := NewEvaluator(&fakeCounter{}, slog.Default())
	c := assignments.Condition{Kind: "biometric", Data: json.RawMessage(`{}`), Active: true}

	ok, err := e.Evaluate(context.Background(), c, Input{})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !ok {
		t.Fatal("unknown condition kinds pass")
	}
}

func TestEvaluateAssignmentAND(t *testing.T) {
	e := NewEvaluator(&fakeCounter{}, slog.Default())
	limit := 100.0
	a := assignments.RoleAssignment{Conditions: []assignments.Condition{
		cond(KindTime, TimePayload{WorkingHours: "09:00-18:00"}),
		cond(KindBudget, BudgetPayload{MaxAmount: &limit}),
	}}

	amount := 50.0
	ok, err := e.EvaluateAssignment(context.Background(), a, Input{Now: tuesdayMorning, Amount: &amount})
	if err != nil {
		t.Fatalf("EvaluateAssignment: %v", err)
	}
	if !ok {
		t.Fatal("both conditions hold")
	}

	amount = 150.0
	ok, _ = e.EvaluateAssignment(context.Background(), a, Input{Now: tuesdayMorning, Amount: &amount})
	if ok {
		t.Fatal("one failing condition fails the assignment")
	}
}

func TestEvaluateAssignmentIgnoresInactiveConditions(t *testing.T) {
	e := NewEvaluator(&fakeCounter{}, slog.Default())
	limit := 10.0
	inactive := cond(KindBudget, BudgetPayload{MaxAmount: &limit})
	inactive.Active = false
	a := assignments.RoleAssignment{Conditions: []assignments.Condition{inactive}}

	amount := 999.0
	ok, err := e.EvaluateAssignment(context.Background(), a, Input{Amount: &amount})
	if err != nil {
		t.Fatalf("EvaluateAssignment: %v", err)
	}
	if !ok {
		t.Fatal("inactive conditions are not evaluated")
	}
}
