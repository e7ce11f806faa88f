package habit

import (
	"strconv"
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

// ActivityEvent is the canonical unit: one logged occurrence of progress
// toward a goal on a specific date. Date is the calendar day the event
// counts toward, independent of Timestamp.
type ActivityEvent struct {
	ID          string  `json:"id"`
	Goal        string  `json:"goal"`
	Date        string  `json:"date"`
	Amount      float64 `json:"amount"`
	Description string  `json:"description,omitempty"`
	Timestamp   string  `json:"timestamp,omitempty"`
}

// NewClientID issues a creation-time identifier. The remote store may
// rewrite it on first successful push; the server identifier takes
// precedence once known.
func NewClientID(now time.Time) string {
	return strconv.FormatInt(now.UnixMilli(), 10)
}

// Validate rejects a malformed event before any I/O happens.
func (e ActivityEvent) Validate(catalog Catalog) error {
	if strings.TrimSpace(e.Goal) == "" {
		return &ValidationError{Field: "goal", Reason: "is required"}
	}
	if !catalog.Has(e.Goal) {
		return &ValidationError{Field: "goal", Reason: "unknown goal " + e.Goal}
	}
	if strings.TrimSpace(e.Date) == "" {
		return &ValidationError{Field: "date", Reason: "is required"}
	}
	if _, err := time.Parse(DateLayout, e.Date); err != nil {
		return &ValidationError{Field: "date", Reason: "must be YYYY-MM-DD"}
	}
	if e.Amount < 0 {
		return &ValidationError{Field: "amount", Reason: "must not be negative"}
	}
	return nil
}
