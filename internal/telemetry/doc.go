// Package telemetry defines the core data types shared across the
// aggregation and lifecycle engine.
//
// Key types:
//   - Sample: one persisted measurement from a source
//   - NewSample: the ingestion input, validated before a Sample exists
//   - LivenessRecord: Online/Offline/Inactive classification per source
//   - Bucket: a fixed-width time-window average derived from samples
//   - OverviewStats: fleet-wide trailing-window snapshot
package telemetry
