package telemetry

import (
	"encoding/json"
	"fmt"
	"time"
)

// LivenessState classifies a source by the age of its latest sample.
type LivenessState int

const (
	// StateOnline means the source reported within the offline threshold.
	StateOnline LivenessState = iota

	// StateOffline means the source missed at least one expected report
	// but has not yet aged past the inactive threshold.
	StateOffline

	// StateInactive means the source has been silent longer than the
	// inactive threshold and is a candidate for purging.
	StateInactive
)

// String returns the string representation of the state.
func (s LivenessState) String() string {
	switch s {
	case StateOnline:
		return "online"
	case StateOffline:
		return "offline"
	case StateInactive:
		return "inactive"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// ParseLivenessState parses the string form of a state.
func ParseLivenessState(s string) (LivenessState, error) {
	switch s {
	case "online":
		return StateOnline, nil
	case "offline":
		return StateOffline, nil
	case "inactive":
		return StateInactive, nil
	default:
		return 0, fmt.Errorf("unknown liveness state: %q", s)
	}
}

// MarshalJSON encodes the state as its string form.
func (s LivenessState) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON decodes the string form.
func (s *LivenessState) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	state, err := ParseLivenessState(str)
	if err != nil {
		return err
	}
	*s = state
	return nil
}

// LivenessRecord is the classification of one source at a point in time.
// Sources with zero samples have no record.
type LivenessRecord struct {
	SourceID string        `json:"sourceId"`
	State    LivenessState `json:"state"`
	LastSeen int64         `json:"lastSeen"` // Unix ms of the latest sample
	AgeMs    int64         `json:"ageMs"`    // now - LastSeen at classification time
}

// LastSeenTime returns the latest-sample timestamp as a time.Time.
func (r *LivenessRecord) LastSeenTime() time.Time {
	return time.UnixMilli(r.LastSeen)
}

// Age returns the classification age as a duration.
func (r *LivenessRecord) Age() time.Duration {
	return time.Duration(r.AgeMs) * time.Millisecond
}
