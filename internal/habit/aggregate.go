package habit

import (
	"sort"
	"time"
)

// Aggregation over the current event set. Pure functions, recomputed on
// every read; the Day Aggregate is never persisted.

type Tier string

const (
	TierLow      Tier = "low"
	TierMedium   Tier = "medium"
	TierHigh     Tier = "high"
	TierComplete Tier = "complete"
)

type CalendarClass string

const (
	ClassNone     CalendarClass = "none"
	ClassNoGoals  CalendarClass = "no-goals"
	ClassPartial  CalendarClass = "partial-goals"
	ClassAllGoals CalendarClass = "all-goals"
)

// DayAggregate is the derived per-date summary.
type DayAggregate struct {
	Date          string
	Totals        map[string]float64
	GoalsAchieved int
}

// DayTotal sums amounts over events matching both goal and date.
func DayTotal(events []ActivityEvent, goal, date string) float64 {
	total := 0.0
	for _, event := range events {
		if event.Goal == goal && event.Date == date {
			total += event.Amount
		}
	}
	return total
}

// ProgressPct returns the day total as a fraction of the goal target,
// clamped to 1.0.
func ProgressPct(events []ActivityEvent, catalog Catalog, goal, date string) float64 {
	target, ok := catalog.Get(goal)
	if !ok || target.Target <= 0 {
		return 0
	}
	pct := DayTotal(events, goal, date) / target.Target
	if pct > 1 {
		return 1
	}
	return pct
}

// ProgressTier classifies a clamped percentage into the four coloring
// tiers: <34%, 34-66%, 67-99%, >=100%.
func ProgressTier(pct float64) Tier {
	switch {
	case pct >= 1:
		return TierComplete
	case pct >= 0.67:
		return TierHigh
	case pct >= 0.34:
		return TierMedium
	default:
		return TierLow
	}
}

// GoalsAchieved counts goals whose day total meets or exceeds the target.
func GoalsAchieved(events []ActivityEvent, catalog Catalog, date string) int {
	achieved := 0
	for _, key := range catalog.Keys() {
		goal, _ := catalog.Get(key)
		if goal.Target > 0 && DayTotal(events, key, date) >= goal.Target {
			achieved++
		}
	}
	return achieved
}

// DayClass distinguishes "no data" from "data but zero achievement".
func DayClass(events []ActivityEvent, catalog Catalog, date string) CalendarClass {
	achieved := GoalsAchieved(events, catalog, date)
	if achieved == 0 {
		for _, event := range events {
			if event.Date == date {
				return ClassNoGoals
			}
		}
		return ClassNone
	}
	if achieved == catalog.Len() {
		return ClassAllGoals
	}
	return ClassPartial
}

// AggregateDay derives the full per-date summary.
func AggregateDay(events []ActivityEvent, catalog Catalog, date string) DayAggregate {
	totals := make(map[string]float64, catalog.Len())
	for _, key := range catalog.Keys() {
		totals[key] = DayTotal(events, key, date)
	}
	return DayAggregate{
		Date:          date,
		Totals:        totals,
		GoalsAchieved: GoalsAchieved(events, catalog, date),
	}
}

// MonthClasses computes the calendar cell class for every day of a month.
func MonthClasses(events []ActivityEvent, catalog Catalog, year int, month time.Month) map[string]CalendarClass {
	out := map[string]CalendarClass{}
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	for day := first; day.Month() == month; day = day.AddDate(0, 0, 1) {
		date := day.Format(DateLayout)
		out[date] = DayClass(events, catalog, date)
	}
	return out
}

// SortEvents orders events newest-date first, breaking ties by timestamp,
// then by identifier for stability.
func SortEvents(events []ActivityEvent) []ActivityEvent {
	sorted := make([]ActivityEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Date != sorted[j].Date {
			return sorted[i].Date > sorted[j].Date
		}
		if sorted[i].Timestamp != sorted[j].Timestamp {
			return sorted[i].Timestamp > sorted[j].Timestamp
		}
		return sorted[i].ID > sorted[j].ID
	})
	return sorted
}
