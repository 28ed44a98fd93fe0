package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Timestamp is a UTC instant that also accepts the naive ISO-8601 layouts
// found in older sidecars (no zone designator, space separator).
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02",
}

// NewTimestamp wraps t, normalised to UTC.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC()}
}

// MarshalJSON encodes the instant as RFC 3339 in UTC.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// UnmarshalJSON parses any of the accepted layouts. Naive values are UTC.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	raw = strings.TrimSpace(raw)
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("timestamp: unrecognised layout %q", raw)
}

// UnmarshalJSON applies the "key" role default when the field is absent.
func (r *XRow) UnmarshalJSON(data []byte) error {
	type plain XRow
	p := plain{Role: RoleKey}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = XRow(p)
	return nil
}
