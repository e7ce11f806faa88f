package habit

import (
	"testing"
	"time"
)

func event(id, goal, date string, amount float64) ActivityEvent {
	return ActivityEvent{ID: id, Goal: goal, Date: date, Amount: amount}
}

func TestDayTotalSumsMatchingEventsOnly(t *testing.T) {
	events := []ActivityEvent{
		event("1", "water", "2026-08-29", 20),
		event("2", "water", "2026-08-29", 30),
		event("3", "water", "2026-08-28", 64),
		event("4", "protein", "2026-08-29", 40),
	}
	if got := DayTotal(events, "water", "2026-08-29"); got != 50 {
		t.Fatalf("DayTotal = %v, want 50", got)
	}
	if got := DayTotal(events, "exercise", "2026-08-29"); got != 0 {
		t.Fatalf("DayTotal for unlogged goal = %v, want 0", got)
	}
}

func TestProgressPctClampsAtOne(t *testing.T) {
	catalog := DefaultCatalog()
	events := []ActivityEvent{
		event("1", "water", "2026-08-29", 50),
		event("2", "water", "2026-08-28", 200),
	}
	pct := ProgressPct(events, catalog, "water", "2026-08-29")
	if pct < 0.78 || pct > 0.79 {
		t.Fatalf("ProgressPct = %v, want 50/64", pct)
	}
	if got := ProgressPct(events, catalog, "water", "2026-08-28"); got != 1 {
		t.Fatalf("overshoot ProgressPct = %v, want clamped 1", got)
	}
	if got := ProgressPct(events, catalog, "unknown", "2026-08-29"); got != 0 {
		t.Fatalf("ProgressPct for uncataloged goal = %v, want 0", got)
	}
}

func TestProgressTierBoundaries(t *testing.T) {
	cases := []struct {
		pct  float64
		want Tier
	}{
		{0, TierLow},
		{0.33, TierLow},
		{0.34, TierMedium},
		{0.66, TierMedium},
		{0.67, TierHigh},
		{0.99, TierHigh},
		{1, TierComplete},
		{1.5, TierComplete},
	}
	for _, c := range cases {
		if got := ProgressTier(c.pct); got != c.want {
			t.Fatalf("ProgressTier(%v) = %v, want %v", c.pct, got, c.want)
		}
	}
}

func TestDayClassDistinguishesEmptyFromUnachieved(t *testing.T) {
	catalog := DefaultCatalog()
	events := []ActivityEvent{
		event("1", "water", "2026-08-29", 5),
		event("2", "water", "2026-08-28", 64),
		event("3", "protein", "2026-08-27", 100),
		event("4", "water", "2026-08-27", 64),
		event("5", "exercise", "2026-08-27", 30),
	}
	if got := DayClass(events, catalog, "2026-08-30"); got != ClassNone {
		t.Fatalf("empty day class = %v, want %v", got, ClassNone)
	}
	if got := DayClass(events, catalog, "2026-08-29"); got != ClassNoGoals {
		t.Fatalf("logged-but-unachieved day class = %v, want %v", got, ClassNoGoals)
	}
	if got := DayClass(events, catalog, "2026-08-28"); got != ClassPartial {
		t.Fatalf("partial day class = %v, want %v", got, ClassPartial)
	}
	if got := DayClass(events, catalog, "2026-08-27"); got != ClassAllGoals {
		t.Fatalf("all-goals day class = %v, want %v", got, ClassAllGoals)
	}
}

func TestAggregateDayCoversEveryGoal(t *testing.T) {
	catalog := DefaultCatalog()
	events := []ActivityEvent{
		event("1", "water", "2026-08-29", 64),
		event("2", "protein", "2026-08-29", 30),
	}
	day := AggregateDay(events, catalog, "2026-08-29")
	if day.Totals["water"] != 64 || day.Totals["protein"] != 30 || day.Totals["exercise"] != 0 {
		t.Fatalf("unexpected totals: %v", day.Totals)
	}
	if day.GoalsAchieved != 1 {
		t.Fatalf("GoalsAchieved = %d, want 1", day.GoalsAchieved)
	}
}

func TestMonthClassesCoversWholeMonth(t *testing.T) {
	catalog := DefaultCatalog()
	events := []ActivityEvent{
		event("1", "water", "2026-02-10", 64),
	}
	classes := MonthClasses(events, catalog, 2026, time.February)
	if len(classes) != 28 {
		t.Fatalf("expected 28 days, got %d", len(classes))
	}
	if classes["2026-02-10"] != ClassPartial {
		t.Fatalf("2026-02-10 class = %v, want %v", classes["2026-02-10"], ClassPartial)
	}
	if classes["2026-02-11"] != ClassNone {
		t.Fatalf("2026-02-11 class = %v, want %v", classes["2026-02-11"], ClassNone)
	}
}

func TestSortEventsNewestFirst(t *testing.T) {
	events := []ActivityEvent{
		{ID: "a", Date: "2026-08-28", Timestamp: "2026-08-28T08:00:00Z"},
		{ID: "b", Date: "2026-08-29", Timestamp: "2026-08-29T08:00:00Z"},
		{ID: "c", Date: "2026-08-29", Timestamp: "2026-08-29T09:00:00Z"},
	}
	sorted := SortEvents(events)
	if sorted[0].ID != "c" || sorted[1].ID != "b" || sorted[2].ID != "a" {
		t.Fatalf("unexpected order: %v %v %v", sorted[0].ID, sorted[1].ID, sorted[2].ID)
	}
	if events[0].ID != "a" {
		t.Fatal("SortEvents mutated its input")
	}
}
