package checkpoint

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// zonelessLayouts are the ISO-8601 forms written without a UTC offset,
// e.g. 2025-12-23T10:11:12.123456. They are read as local time.
var zonelessLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// Timestamp is an ISO-8601 instant. It is written as RFC 3339 and read from
// RFC 3339 or from the zone-less layouts above.
type Timestamp struct {
	time.Time
}

// At wraps t as a Timestamp.
func At(t time.Time) Timestamp { return Timestamp{Time: t} }

func (ts Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(ts.Time.Format(time.RFC3339Nano))
}

func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		ts.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("checkpoint: timestamp: %w", err)
	}
	if s == "" {
		ts.Time = time.Time{}
		return nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		ts.Time = t
		return nil
	}
	for _, layout := range zonelessLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			ts.Time = t
			return nil
		}
	}
	return fmt.Errorf("checkpoint: unrecognized timestamp %q", s)
}
