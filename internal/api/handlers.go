package api

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	defaults "fleetmon/config"
	"fleetmon/internal/errors"
	"fleetmon/internal/liveness"
	"fleetmon/internal/observability"
	"fleetmon/internal/retention"
	"fleetmon/internal/rollup"
	"fleetmon/internal/telemetry"
)

// =============================================================================
// JSON plumbing
// =============================================================================

// decodeJSON reads a JSON body with the configured size limit. Unknown
// fields are rejected, so a client-supplied observedAt cannot sneak in.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	_ = encoder.Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeError maps a typed failure to its HTTP status.
func writeError(w http.ResponseWriter, err error) {
	status := errors.HTTPStatus(err)
	if status >= 500 {
		log.Error("request failed", "status", status, "error", err)
	}
	writeJSONError(w, status, err.Error())
}

// =============================================================================
// Query parameter parsing
// =============================================================================

// parseWindow resolves the query window: an explicit RFC3339 start/end
// pair, or a trailing `hours` window ending now.
func parseWindow(r *http.Request, defaultHours int) (time.Time, time.Time, error) {
	q := r.URL.Query()
	now := time.Now()

	startStr, endStr := q.Get("start"), q.Get("end")
	if startStr != "" || endStr != "" {
		if startStr == "" || endStr == "" {
			return time.Time{}, time.Time{}, errors.NewRange("window", "start and end must be given together")
		}
		start, err := time.Parse(time.RFC3339, startStr)
		if err != nil {
			return time.Time{}, time.Time{}, errors.NewRange("start", "must be an RFC3339 timestamp")
		}
		end, err := time.Parse(time.RFC3339, endStr)
		if err != nil {
			return time.Time{}, time.Time{}, errors.NewRange("end", "must be an RFC3339 timestamp")
		}
		return start, end, nil
	}

	hours := defaultHours
	if hStr := q.Get("hours"); hStr != "" {
		h, err := strconv.Atoi(hStr)
		if err != nil || h <= 0 {
			return time.Time{}, time.Time{}, errors.NewRange("hours", "must be a positive integer")
		}
		hours = h
	}
	return now.Add(-time.Duration(hours) * time.Hour), now, nil
}

// parseBucket resolves the bucket width in minutes.
func parseBucket(r *http.Request) (time.Duration, error) {
	bStr := r.URL.Query().Get("bucket")
	if bStr == "" {
		return defaults.DefaultBucketWidthMin * time.Minute, nil
	}
	m, err := strconv.Atoi(bStr)
	if err != nil || m <= 0 {
		return 0, errors.NewRange("bucket", "must be a positive integer of minutes")
	}
	return time.Duration(m) * time.Minute, nil
}

// parseHours resolves a trailing window length.
func parseHours(r *http.Request, defaultHours int) (time.Duration, error) {
	hStr := r.URL.Query().Get("hours")
	if hStr == "" {
		return time.Duration(defaultHours) * time.Hour, nil
	}
	h, err := strconv.Atoi(hStr)
	if err != nil || h <= 0 {
		return 0, errors.NewRange("hours", "must be a positive integer")
	}
	return time.Duration(h) * time.Hour, nil
}

// =============================================================================
// Ingestion
// =============================================================================

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var in telemetry.NewSample
	if err := s.decodeJSON(w, r, &in); err != nil {
		observability.RecordRejected("malformed")
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	sample, err := s.monitor.Ingest(r.Context(), in)
	if err != nil {
		observability.RecordRejected(rejectReason(err))
		writeError(w, err)
		return
	}

	observability.RecordIngested()
	writeJSON(w, http.StatusCreated, sample)
}

func rejectReason(err error) string {
	switch {
	case errors.IsValidation(err):
		return "validation"
	case errors.IsStoreUnavailable(err):
		return "store_unavailable"
	default:
		return "other"
	}
}

// =============================================================================
// Sources
// =============================================================================

// SourceStatus joins a source's latest sample with its liveness state.
type SourceStatus struct {
	telemetry.Sample
	State telemetry.LivenessState `json:"state"`
	AgeMs int64                   `json:"ageMs"`
}

type sourcesResponse struct {
	Sources []SourceStatus `json:"sources"`
	Count   int            `json:"count"`
}

func (s *Server) joinLiveness(sample telemetry.Sample, now time.Time) SourceStatus {
	age := sample.Age(now)
	if age < 0 {
		age = 0
	}
	return SourceStatus{
		Sample: sample,
		State:  s.monitor.StateFor(age),
		AgeMs:  age.Milliseconds(),
	}
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	states, err := s.monitor.LatestAll(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	now := time.Now()
	sources := make([]SourceStatus, 0, len(states))
	for _, sample := range states {
		sources = append(sources, s.joinLiveness(sample, now))
	}
	sort.Slice(sources, func(i, j int) bool {
		return sources[i].SourceID < sources[j].SourceID
	})

	writeJSON(w, http.StatusOK, sourcesResponse{Sources: sources, Count: len(sources)})
}

func (s *Server) handleSource(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	sample, err := s.monitor.LatestOne(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, s.joinLiveness(sample, time.Now()))
}

// =============================================================================
// Trend and overview
// =============================================================================

type trendResponse struct {
	SourceID string             `json:"sourceId,omitempty"`
	Buckets  []telemetry.Bucket `json:"buckets"`
}

func (s *Server) handleTrend(w http.ResponseWriter, r *http.Request) {
	s.serveTrend(w, r, "")
}

func (s *Server) handleSourceTrend(w http.ResponseWriter, r *http.Request) {
	s.serveTrend(w, r, mux.Vars(r)["id"])
}

func (s *Server) serveTrend(w http.ResponseWriter, r *http.Request, sourceID string) {
	start, end, err := parseWindow(r, defaults.DefaultTrendWindowHours)
	if err != nil {
		writeError(w, err)
		return
	}
	width, err := parseBucket(r)
	if err != nil {
		writeError(w, err)
		return
	}

	buckets, err := s.monitor.Trend(r.Context(), rollup.TrendOptions{
		SourceID:    sourceID,
		WindowStart: start,
		WindowEnd:   end,
		BucketWidth: width,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, trendResponse{SourceID: sourceID, Buckets: buckets})
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	window, err := parseHours(r, defaults.DefaultOverviewWindowHours)
	if err != nil {
		writeError(w, err)
		return
	}

	stats, err := s.monitor.Overview(r.Context(), time.Now(), window)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleDistribution(w http.ResponseWriter, r *http.Request) {
	window, err := parseHours(r, defaults.DefaultOverviewWindowHours)
	if err != nil {
		writeError(w, err)
		return
	}

	metric, err := telemetry.ParseMetric(r.URL.Query().Get("metric"))
	if err != nil {
		writeError(w, err)
		return
	}

	dist, err := s.monitor.Distribution(r.Context(), time.Now(), window, metric)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dist)
}

// =============================================================================
// Liveness
// =============================================================================

// LivenessSummary lists every source's state with per-state totals.
type LivenessSummary struct {
	Sources  []telemetry.LivenessRecord `json:"sources"`
	Online   int                        `json:"online"`
	Offline  int                        `json:"offline"`
	Inactive int                        `json:"inactive"`
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	records, err := s.monitor.Liveness(r.Context(), time.Now())
	if err != nil {
		writeError(w, err)
		return
	}

	counts := liveness.CountByState(records)
	writeJSON(w, http.StatusOK, LivenessSummary{
		Sources:  records,
		Online:   counts[telemetry.StateOnline],
		Offline:  counts[telemetry.StateOffline],
		Inactive: counts[telemetry.StateInactive],
	})
}

// =============================================================================
// Cleanup and operations
// =============================================================================

// CleanupReport is the wire form of a cleanup run's outcome.
type CleanupReport struct {
	SamplesDeleted int64  `json:"samplesDeleted"`
	SourcesPurged  int    `json:"sourcesPurged"`
	ArchivedRows   int64  `json:"archivedRows"`
	ArchivePath    string `json:"archivePath,omitempty"`
	DurationMs     int64  `json:"durationMs"`
	DryRun         bool   `json:"dryRun,omitempty"`
	Coalesced      bool   `json:"coalesced,omitempty"`
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	now := time.Now()

	var result retention.CleanupResult
	var err error
	if r.URL.Query().Get("dry_run") == "true" {
		result, err = s.monitor.DryRunCleanup(r.Context(), now)
	} else {
		result, err = s.monitor.RunCleanup(r.Context(), now)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, CleanupReport{
		SamplesDeleted: result.SamplesDeleted,
		SourcesPurged:  result.SourcesPurged,
		ArchivedRows:   result.ArchivedRows,
		ArchivePath:    result.ArchivePath,
		DurationMs:     result.Duration.Milliseconds(),
		DryRun:         result.DryRun,
		Coalesced:      result.Coalesced,
	})
}

type statsResponse struct {
	Running   bool           `json:"running"`
	UptimeMs  int64          `json:"uptimeMs"`
	Ingestion ingestStats    `json:"ingestion"`
	Retention retentionStats `json:"retention"`
}

type ingestStats struct {
	Received    int64 `json:"received"`
	Ingested    int64 `json:"ingested"`
	Rejected    int64 `json:"rejected"`
	StoreErrors int64 `json:"storeErrors"`
}

type retentionStats struct {
	Runs           int64 `json:"runs"`
	Failures       int64 `json:"failures"`
	SamplesDeleted int64 `json:"samplesDeleted"`
	SourcesPurged  int64 `json:"sourcesPurged"`
	ArchivedRows   int64 `json:"archivedRows"`
	LastRunUnix    int64 `json:"lastRunUnix,omitempty"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := s.monitor.Stats()

	var lastRun int64
	if !stats.Retention.LastRun.IsZero() {
		lastRun = stats.Retention.LastRun.Unix()
	}

	writeJSON(w, http.StatusOK, statsResponse{
		Running:  stats.Running,
		UptimeMs: stats.Uptime.Milliseconds(),
		Ingestion: ingestStats{
			Received:    stats.Ingestion.SamplesReceived,
			Ingested:    stats.Ingestion.SamplesIngested,
			Rejected:    stats.Ingestion.SamplesRejected,
			StoreErrors: stats.Ingestion.StoreErrors,
		},
		Retention: retentionStats{
			Runs:           stats.Retention.Runs,
			Failures:       stats.Retention.Failures,
			SamplesDeleted: stats.Retention.SamplesDeleted,
			SourcesPurged:  stats.Retention.SourcesPurged,
			ArchivedRows:   stats.Retention.ArchivedRows,
			LastRunUnix:    lastRun,
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.monitor.Health(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
