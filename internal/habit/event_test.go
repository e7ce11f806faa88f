package habit

import (
	"errors"
	"strconv"
	"testing"
	"time"
)

func TestValidateRejectsMalformedEvents(t *testing.T) {
	catalog := DefaultCatalog()
	cases := []struct {
		name  string
		event ActivityEvent
	}{
		{"missing goal", ActivityEvent{Date: "2026-08-29", Amount: 10}},
		{"unknown goal", ActivityEvent{Goal: "sleep", Date: "2026-08-29", Amount: 10}},
		{"missing date", ActivityEvent{Goal: "water", Amount: 10}},
		{"bad date format", ActivityEvent{Goal: "water", Date: "08/29/2026", Amount: 10}},
		{"negative amount", ActivityEvent{Goal: "water", Date: "2026-08-29", Amount: -1}},
	}
	for _, c := range cases {
		err := c.event.Validate(catalog)
		if err == nil {
			t.Fatalf("%s: expected validation error", c.name)
		}
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("%s: error %v does not match ErrValidation", c.name, err)
		}
	}
}

func TestValidateAcceptsZeroAmount(t *testing.T) {
	event := ActivityEvent{Goal: "water", Date: "2026-08-29", Amount: 0}
	if err := event.Validate(DefaultCatalog()); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
}

func TestNewClientIDIsMillisecondTimestamp(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	want := strconv.FormatInt(now.UnixMilli(), 10)
	if got := NewClientID(now); got != want {
		t.Fatalf("NewClientID = %s, want %s", got, want)
	}
	if len(want) != 13 {
		t.Fatalf("identifier %s is not millisecond precision", want)
	}
}
