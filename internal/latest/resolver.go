// Package latest resolves the most recent sample per source.
//
// The groupby-max runs inside the store as one indexed aggregation, so the
// projection stays cheap as the source count grows. Ties on observed_at
// resolve to the latest inserted row; the policy is stable across calls.
package latest

import (
	"context"

	"fleetmon/internal/store"
	"fleetmon/internal/telemetry"
)

// Resolver computes latest-state projections from the sample store.
type Resolver struct {
	store *store.Store
}

// NewResolver creates a resolver bound to the store.
func NewResolver(st *store.Store) *Resolver {
	return &Resolver{store: st}
}

// LatestAll returns the latest sample per source, one entry per distinct
// source with at least one sample. Recomputed from the store on every call,
// never cached.
func (r *Resolver) LatestAll(ctx context.Context) (map[string]telemetry.Sample, error) {
	samples, err := r.store.LatestAll(ctx)
	if err != nil {
		return nil, err
	}

	states := make(map[string]telemetry.Sample, len(samples))
	for _, s := range samples {
		states[s.SourceID] = s
	}
	return states, nil
}

// LatestOne returns the latest sample for one source, or a not-found error
// when the source has no samples.
func (r *Resolver) LatestOne(ctx context.Context, sourceID string) (telemetry.Sample, error) {
	return r.store.LatestOne(ctx, sourceID)
}
