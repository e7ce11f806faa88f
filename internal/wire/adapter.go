package wire

import (
	"encoding/json"
	"strings"

	"github.com/AryanShah2000/HabitTracker/internal/habit"
)

// Adapter normalizes wire records into ActivityEvents and routes per-goal
// operations back to legacy aggregate rows. It must stay transparent to
// the sync engine and the aggregation view.
type Adapter struct {
	catalog habit.Catalog
}

func NewAdapter(catalog habit.Catalog) Adapter {
	return Adapter{catalog: catalog}
}

// Decode maps one raw record to canonical events. An event-shape record
// maps 1:1; an aggregate-shape record expands to one synthetic event per
// goal whose stored amount is greater than zero, and the parent row is
// returned so later edits and deletes can be resolved against it.
func (a Adapter) Decode(raw json.RawMessage) ([]habit.ActivityEvent, *AggregateRow, error) {
	var record map[string]any
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, nil, &malformedRecordError{reason: err.Error()}
	}
	if goal := strings.TrimSpace(toString(record["goal"])); goal != "" {
		event, err := a.decodeEventShape(record, goal)
		if err != nil {
			return nil, nil, err
		}
		return []habit.ActivityEvent{event}, nil, nil
	}
	return a.decodeAggregateShape(record)
}

// DecodeAll normalizes a full fetch payload, collecting aggregate parent
// rows keyed by record id.
func (a Adapter) DecodeAll(raws []json.RawMessage) ([]habit.ActivityEvent, map[string]AggregateRow, error) {
	events := make([]habit.ActivityEvent, 0, len(raws))
	parents := map[string]AggregateRow{}
	for _, raw := range raws {
		decoded, row, err := a.Decode(raw)
		if err != nil {
			return nil, nil, err
		}
		events = append(events, decoded...)
		if row != nil {
			parents[row.ID] = *row
		}
	}
	return events, parents, nil
}

func (a Adapter) decodeEventShape(record map[string]any, goal string) (habit.ActivityEvent, error) {
	id, ok := normalizeID(record["id"])
	if !ok {
		return habit.ActivityEvent{}, &malformedRecordError{reason: "event record has no id"}
	}
	amount, ok := toNumber(record["amount"])
	if !ok {
		return habit.ActivityEvent{}, &malformedRecordError{reason: "event record has no numeric amount"}
	}
	date := strings.TrimSpace(toString(record["date"]))
	if date == "" {
		return habit.ActivityEvent{}, &malformedRecordError{reason: "event record has no date"}
	}
	return habit.ActivityEvent{
		ID:          id,
		Goal:        goal,
		Date:        date,
		Amount:      amount,
		Description: toString(record["description"]),
		Timestamp:   toString(record["timestamp"]),
	}, nil
}

func (a Adapter) decodeAggregateShape(record map[string]any) ([]habit.ActivityEvent, *AggregateRow, error) {
	id, ok := normalizeID(record["id"])
	if !ok {
		return nil, nil, &malformedRecordError{reason: "record has no id"}
	}
	date := strings.TrimSpace(toString(record["date"]))
	if date == "" {
		return nil, nil, &malformedRecordError{reason: "record has no date"}
	}
	row := AggregateRow{
		ID:           id,
		Date:         date,
		Timestamp:    toString(record["timestamp"]),
		Amounts:      map[string]float64{},
		Descriptions: map[string]string{},
	}
	matched := false
	for _, goal := range a.catalog.Keys() {
		if raw, present := record[goal]; present {
			matched = true
			amount, _ := toNumber(raw)
			row.Amounts[goal] = amount
		}
		if desc := toString(record[descColumn(goal)]); desc != "" {
			row.Descriptions[goal] = desc
		}
	}
	if !matched {
		return nil, nil, &malformedRecordError{reason: "record matches neither event nor aggregate shape"}
	}

	var events []habit.ActivityEvent
	for _, goal := range a.catalog.Keys() {
		amount := row.Amounts[goal]
		if amount <= 0 {
			continue
		}
		events = append(events, habit.ActivityEvent{
			ID:          SyntheticID(id, goal),
			Goal:        goal,
			Date:        date,
			Amount:      amount,
			Description: row.Descriptions[goal],
			Timestamp:   row.Timestamp,
		})
	}
	return events, &row, nil
}

// ParseSyntheticID splits a derived <recordId>-<goal> identifier. It only
// reports ok when the suffix names a cataloged goal.
func (a Adapter) ParseSyntheticID(id string) (rowID, goal string, ok bool) {
	idx := strings.LastIndex(id, "-")
	if idx <= 0 || idx == len(id)-1 {
		return "", "", false
	}
	goal = id[idx+1:]
	if !a.catalog.Has(goal) {
		return "", "", false
	}
	return id[:idx], goal, true
}

// ZeroGoal returns the parent row with one goal's amount set to zero.
// Deleting a synthetic event intentionally zeroes the column instead of
// removing the row; the row's other goals survive. This asymmetry with
// event-shape deletion is a compatibility contract, not an oversight.
func (a Adapter) ZeroGoal(row AggregateRow, goal string) AggregateRow {
	out := row.Clone()
	out.Amounts[goal] = 0
	delete(out.Descriptions, goal)
	return out
}

// SetGoal returns the parent row with one goal's slot replaced, used when
// an edit targets a synthetic event.
func (a Adapter) SetGoal(row AggregateRow, goal string, amount float64, description string) AggregateRow {
	out := row.Clone()
	out.Amounts[goal] = amount
	if description == "" {
		delete(out.Descriptions, goal)
	} else {
		out.Descriptions[goal] = description
	}
	return out
}

// EncodeRow renders an aggregate row back to its wire form for an update.
func (a Adapter) EncodeRow(row AggregateRow) map[string]any {
	body := map[string]any{
		"id":   row.ID,
		"date": row.Date,
	}
	if row.Timestamp != "" {
		body["timestamp"] = row.Timestamp
	}
	for _, goal := range a.catalog.Keys() {
		if amount, present := row.Amounts[goal]; present {
			body[goal] = amount
		}
		if desc, present := row.Descriptions[goal]; present {
			body[descColumn(goal)] = desc
		}
	}
	return body
}

// EncodeEvent renders a canonical event in the event wire shape.
func (a Adapter) EncodeEvent(event habit.ActivityEvent) map[string]any {
	body := map[string]any{
		"id":     event.ID,
		"goal":   event.Goal,
		"date":   event.Date,
		"amount": event.Amount,
	}
	if event.Description != "" {
		body["description"] = event.Description
	}
	if event.Timestamp != "" {
		body["timestamp"] = event.Timestamp
	}
	return body
}
