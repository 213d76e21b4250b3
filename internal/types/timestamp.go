package types

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// FlexTime accepts either an RFC3339 string or a Unix-seconds number
// (fractional allowed) on the wire. It always normalizes to UTC and
// marshals back as RFC3339 with a Z suffix.
type FlexTime struct {
	time.Time
}

func NewFlexTime(t time.Time) FlexTime {
	return FlexTime{Time: t.UTC()}
}

func (t FlexTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

func (t *FlexTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, perr := time.Parse(time.RFC3339Nano, s)
		if perr != nil {
			parsed, perr = time.Parse(time.RFC3339, s)
		}
		if perr != nil {
			return fmt.Errorf("unparseable timestamp %q: %w", s, perr)
		}
		t.Time = parsed.UTC()
		return nil
	}
	var secs float64
	if err := json.Unmarshal(data, &secs); err == nil {
		whole, frac := math.Modf(secs)
		t.Time = time.Unix(int64(whole), int64(frac*float64(time.Second))).UTC()
		return nil
	}
	return fmt.Errorf("timestamp must be an RFC3339 string or unix seconds, got %s", string(data))
}
