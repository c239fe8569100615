// Package liveness classifies sources as online, offline, or inactive from
// the age of their latest sample.
//
// One classifier instance is shared by the retention manager and the API
// layer, so deletion decisions and status badges can never disagree about
// a source's state.
package liveness

import (
	"context"
	"sort"
	"time"

	"fleetmon/internal/errors"
	"fleetmon/internal/latest"
	"fleetmon/internal/telemetry"
)

// Thresholds holds the two age cutoffs. A source is Online up to
// OfflineAfter, Offline up to InactiveAfter, Inactive beyond that.
type Thresholds struct {
	OfflineAfter  time.Duration
	InactiveAfter time.Duration
}

// Validate rejects non-positive or inverted thresholds. OfflineAfter must
// be strictly less than InactiveAfter.
func (t Thresholds) Validate() error {
	v := errors.NewValidationErrors()

	if t.OfflineAfter <= 0 {
		v.AddField("offlineAfter", "must be positive")
	}
	if t.InactiveAfter <= 0 {
		v.AddField("inactiveAfter", "must be positive")
	}
	if t.OfflineAfter > 0 && t.InactiveAfter > 0 && t.OfflineAfter >= t.InactiveAfter {
		v.AddField("inactiveAfter", "must be greater than offlineAfter")
	}

	return v.Err()
}

// Classifier maps latest-sample ages to liveness states.
type Classifier struct {
	resolver   *latest.Resolver
	thresholds Thresholds
}

// NewClassifier validates the thresholds and binds the classifier to the
// latest-state resolver.
func NewClassifier(resolver *latest.Resolver, t Thresholds) (*Classifier, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &Classifier{
		resolver:   resolver,
		thresholds: t,
	}, nil
}

// Thresholds returns the configured cutoffs.
func (c *Classifier) Thresholds() Thresholds {
	return c.thresholds
}

// StateFor maps a single latest-sample age to its state.
func (c *Classifier) StateFor(age time.Duration) telemetry.LivenessState {
	switch {
	case age <= c.thresholds.OfflineAfter:
		return telemetry.StateOnline
	case age <= c.thresholds.InactiveAfter:
		return telemetry.StateOffline
	default:
		return telemetry.StateInactive
	}
}

// Classify is a pure function of the latest-state projection and the
// thresholds: no store access, no hidden state. Records come back sorted
// by source id. Sources with zero samples are absent from states and so
// produce no record.
func (c *Classifier) Classify(now time.Time, states map[string]telemetry.Sample) []telemetry.LivenessRecord {
	records := make([]telemetry.LivenessRecord, 0, len(states))

	for id, sample := range states {
		age := now.Sub(sample.ObservedTime())
		records = append(records, telemetry.LivenessRecord{
			SourceID: id,
			State:    c.StateFor(age),
			LastSeen: sample.ObservedAt,
			AgeMs:    age.Milliseconds(),
		})
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].SourceID < records[j].SourceID
	})
	return records
}

// Snapshot pulls the latest states from the store and classifies them.
func (c *Classifier) Snapshot(ctx context.Context, now time.Time) ([]telemetry.LivenessRecord, error) {
	states, err := c.resolver.LatestAll(ctx)
	if err != nil {
		return nil, err
	}
	return c.Classify(now, states), nil
}

// CountByState tallies records per state, including zero entries for
// states with no sources.
func CountByState(records []telemetry.LivenessRecord) map[telemetry.LivenessState]int {
	counts := map[telemetry.LivenessState]int{
		telemetry.StateOnline:   0,
		telemetry.StateOffline:  0,
		telemetry.StateInactive: 0,
	}
	for _, r := range records {
		counts[r.State]++
	}
	return counts
}
