// Package wire converts between the two historical server record shapes
// and the canonical ActivityEvent. Both shapes have existed as server
// contracts: the aggregate shape stores one row per (user, date) with
// per-goal running totals; the event shape stores one row per logged
// action. Downstream code depends only on habit.ActivityEvent.
package wire

import (
	"fmt"
	"strconv"
	"strings"
)

// AggregateRow is the legacy per-day record: one numeric column per goal
// plus an optional <goal>_desc text column.
type AggregateRow struct {
	ID           string
	Date         string
	Timestamp    string
	Amounts      map[string]float64
	Descriptions map[string]string
}

// Clone returns a deep copy safe to mutate.
func (r AggregateRow) Clone() AggregateRow {
	out := AggregateRow{ID: r.ID, Date: r.Date, Timestamp: r.Timestamp}
	out.Amounts = make(map[string]float64, len(r.Amounts))
	for goal, amount := range r.Amounts {
		out.Amounts[goal] = amount
	}
	out.Descriptions = make(map[string]string, len(r.Descriptions))
	for goal, desc := range r.Descriptions {
		out.Descriptions[goal] = desc
	}
	return out
}

// SyntheticID derives the per-goal identifier for an event expanded from
// an aggregate row, so edits and deletes can be routed back to the
// correct column of the parent row.
func SyntheticID(rowID, goal string) string {
	return rowID + "-" + goal
}

// normalizeID renders a wire identifier as a string. Legacy rows carry
// numeric ids; newer rows carry strings.
func normalizeID(v any) (string, bool) {
	switch typed := v.(type) {
	case string:
		trimmed := strings.TrimSpace(typed)
		return trimmed, trimmed != ""
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64), true
	case int:
		return strconv.Itoa(typed), true
	case int64:
		return strconv.FormatInt(typed, 10), true
	default:
		return "", false
	}
}

func toNumber(v any) (float64, bool) {
	switch typed := v.(type) {
	case float64:
		return typed, true
	case int:
		return float64(typed), true
	case int64:
		return float64(typed), true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(typed), 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

func toString(v any) string {
	s, _ := v.(string)
	return s
}

func descColumn(goal string) string {
	return goal + "_desc"
}

type malformedRecordError struct {
	reason string
}

func (e *malformedRecordError) Error() string {
	return fmt.Sprintf("malformed wire record: %s", e.reason)
}
