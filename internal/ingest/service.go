// Package ingest accepts samples from the transport layer, validates them,
// stamps the observation time, and appends them to the store.
package ingest

import (
	"context"
	"sync/atomic"
	"time"

	"fleetmon/internal/logging"
	"fleetmon/internal/store"
	"fleetmon/internal/telemetry"
)

var log = logging.Component("ingest")

// Service is the single write path into the sample store.
type Service struct {
	store *store.Store

	// now is the observation clock. Samples carry the time this service
	// saw them; client timestamps are never trusted.
	now func() time.Time

	stats Stats
}

// Stats holds ingestion statistics.
type Stats struct {
	SamplesReceived atomic.Int64
	SamplesIngested atomic.Int64
	SamplesRejected atomic.Int64
	StoreErrors     atomic.Int64
}

// New creates an ingestion service bound to the store.
func New(st *store.Store) *Service {
	return &Service{
		store: st,
		now:   time.Now,
	}
}

// WithClock replaces the observation clock. Tests use it to pin time.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Ingest validates one incoming sample, stamps it with the service clock,
// and persists it. One sample per call; a rejected sample is never
// persisted. The returned Sample carries the assigned ObservedAt.
func (s *Service) Ingest(ctx context.Context, in telemetry.NewSample) (telemetry.Sample, error) {
	s.stats.SamplesReceived.Add(1)

	if err := in.Validate(); err != nil {
		s.stats.SamplesRejected.Add(1)
		return telemetry.Sample{}, err
	}

	sample := in.At(s.now().UnixMilli())
	if err := s.store.Append(ctx, sample); err != nil {
		s.stats.StoreErrors.Add(1)
		return telemetry.Sample{}, err
	}

	s.stats.SamplesIngested.Add(1)
	log.Debug("sample ingested",
		"source_id", sample.SourceID,
		"observed_at", sample.ObservedAt)
	return sample, nil
}

// ServiceStats holds a snapshot of the ingestion counters.
type ServiceStats struct {
	SamplesReceived int64
	SamplesIngested int64
	SamplesRejected int64
	StoreErrors     int64
}

// Stats returns current statistics.
func (s *Service) Stats() ServiceStats {
	return ServiceStats{
		SamplesReceived: s.stats.SamplesReceived.Load(),
		SamplesIngested: s.stats.SamplesIngested.Load(),
		SamplesRejected: s.stats.SamplesRejected.Load(),
		StoreErrors:     s.stats.StoreErrors.Load(),
	}
}
