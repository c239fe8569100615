package store

import (
	"context"
	"testing"

	"fleetmon/internal/telemetry"
)

func TestStore_BucketStats_Alignment(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	// Window [10000, 14000), width 1000. Buckets are aligned to the
	// window start, and a sample on a boundary belongs to the bucket it
	// opens.
	for _, s := range []struct {
		ts  int64
		cpu float64
	}{
		{10000, 40}, // bucket 0
		{10999, 60}, // bucket 0
		{11000, 10}, // bucket 1
		{13500, 90}, // bucket 3; bucket 2 stays empty
	} {
		if err := st.Append(ctx, sampleAt("web-01", s.ts, s.cpu)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	rows, err := st.BucketStats(ctx, BucketQuery{
		WindowStart: 10000,
		WindowEnd:   14000,
		WidthMs:     1000,
	})
	if err != nil {
		t.Fatalf("bucket stats: %v", err)
	}

	if len(rows) != 3 {
		t.Fatalf("expected 3 non-empty buckets, got %d: %+v", len(rows), rows)
	}

	if rows[0].Index != 0 || rows[0].Count != 2 || rows[0].AvgCPU != 50 {
		t.Errorf("bucket 0: expected idx=0 count=2 avg=50, got %+v", rows[0])
	}
	if rows[1].Index != 1 || rows[1].Count != 1 || rows[1].AvgCPU != 10 {
		t.Errorf("bucket 1: expected idx=1 count=1 avg=10, got %+v", rows[1])
	}
	if rows[2].Index != 3 {
		t.Errorf("empty bucket 2 must be absent, got idx=%d", rows[2].Index)
	}
}

func TestStore_BucketStats_SourceFilter(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if err := st.Append(ctx, sampleAt("web-01", 10500, 20)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := st.Append(ctx, sampleAt("db-01", 10500, 80)); err != nil {
		t.Fatalf("append: %v", err)
	}

	rows, err := st.BucketStats(ctx, BucketQuery{
		SourceID:    "web-01",
		WindowStart: 10000,
		WindowEnd:   11000,
		WidthMs:     1000,
	})
	if err != nil {
		t.Fatalf("bucket stats: %v", err)
	}
	if len(rows) != 1 || rows[0].Count != 1 || rows[0].AvgCPU != 20 {
		t.Errorf("expected only web-01 samples, got %+v", rows)
	}
}

func TestStore_BucketStats_EmptyWindow(t *testing.T) {
	st := newTestStore(t)

	rows, err := st.BucketStats(context.Background(), BucketQuery{
		WindowStart: 10000,
		WindowEnd:   20000,
		WidthMs:     1000,
	})
	if err != nil {
		t.Fatalf("bucket stats: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("expected no buckets for empty window, got %d", len(rows))
	}
}

func TestStore_WindowStats(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	samples := []telemetry.Sample{
		{SourceID: "web-01", ObservedAt: 1000, CPU: 40, RAM: 30, Disk: 20, OS: "debian", UptimeSeconds: 1},
		{SourceID: "web-01", ObservedAt: 2000, CPU: 60, RAM: 50, Disk: 40, OS: "debian", UptimeSeconds: 2},
		{SourceID: "db-01", ObservedAt: 1500, CPU: 20, RAM: 10, Disk: 60, OS: "alpine", UptimeSeconds: 3},
		// Outside the window, must not count.
		{SourceID: "cache-01", ObservedAt: 5000, CPU: 99, RAM: 99, Disk: 99, OS: "alpine", UptimeSeconds: 4},
	}
	if err := st.AppendBatch(ctx, samples); err != nil {
		t.Fatalf("append batch: %v", err)
	}

	agg, err := st.WindowStats(ctx, 1000, 3000)
	if err != nil {
		t.Fatalf("window stats: %v", err)
	}

	if agg.SampleCount != 3 {
		t.Errorf("expected 3 samples, got %d", agg.SampleCount)
	}
	if agg.SourceCount != 2 {
		t.Errorf("expected 2 distinct sources, got %d", agg.SourceCount)
	}
	if agg.AvgCPU != 40 { // (40+60+20)/3
		t.Errorf("expected avg cpu 40, got %v", agg.AvgCPU)
	}
	if agg.AvgRAM != 30 { // (30+50+10)/3
		t.Errorf("expected avg ram 30, got %v", agg.AvgRAM)
	}
	if agg.AvgDisk != 40 { // (20+40+60)/3
		t.Errorf("expected avg disk 40, got %v", agg.AvgDisk)
	}
}

func TestStore_WindowStats_Empty(t *testing.T) {
	st := newTestStore(t)

	agg, err := st.WindowStats(context.Background(), 1000, 2000)
	if err != nil {
		t.Fatalf("window stats: %v", err)
	}
	if agg.SampleCount != 0 || agg.SourceCount != 0 {
		t.Errorf("expected zero counts, got %+v", agg)
	}
	if agg.AvgCPU != 0 || agg.AvgRAM != 0 || agg.AvgDisk != 0 {
		t.Errorf("averages over nothing must be zero, got %+v", agg)
	}
}

func TestStore_MetricValues(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	samples := []telemetry.Sample{
		{SourceID: "web-01", ObservedAt: 1000, CPU: 11, RAM: 22, Disk: 33, OS: "debian", UptimeSeconds: 1},
		{SourceID: "web-01", ObservedAt: 2000, CPU: 44, RAM: 55, Disk: 66, OS: "debian", UptimeSeconds: 2},
	}
	if err := st.AppendBatch(ctx, samples); err != nil {
		t.Fatalf("append batch: %v", err)
	}

	tests := []struct {
		metric telemetry.Metric
		want   [2]float64
	}{
		{telemetry.MetricCPU, [2]float64{11, 44}},
		{telemetry.MetricRAM, [2]float64{22, 55}},
		{telemetry.MetricDisk, [2]float64{33, 66}},
	}

	for _, tt := range tests {
		values, err := st.MetricValues(ctx, tt.metric, 0, 3000)
		if err != nil {
			t.Fatalf("metric values %s: %v", tt.metric, err)
		}
		if len(values) != 2 {
			t.Fatalf("metric %s: expected 2 values, got %d", tt.metric, len(values))
		}
		got := map[float64]bool{values[0]: true, values[1]: true}
		if !got[tt.want[0]] || !got[tt.want[1]] {
			t.Errorf("metric %s: expected %v, got %v", tt.metric, tt.want, values)
		}
	}
}
