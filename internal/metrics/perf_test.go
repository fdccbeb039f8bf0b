package metrics

import "testing"

func TestPerfMetricsAggregate(t *testing.T) {
	t.Parallel()

	p := NewPerfMetrics()
	if got := p.Aggregate(); got.TotalMessages != 0 {
		t.Fatalf("empty aggregate = %+v, want zero value", got)
	}

	p.Record("transform_update", 128, 10)
	p.Record("transform_update", 64, 20)
	p.Record("scene_change", 32, 30)

	agg := p.Aggregate()
	if agg.TotalMessages != 3 {
		t.Fatalf("TotalMessages = %d, want 3", agg.TotalMessages)
	}
	if agg.TotalBytes != 224 {
		t.Fatalf("TotalBytes = %d, want 224", agg.TotalBytes)
	}
	wantAvg := (10.0 + 20.0 + 30.0) / 3.0
	if agg.AverageLatencyMs != wantAvg {
		t.Fatalf("AverageLatencyMs = %v, want %v", agg.AverageLatencyMs, wantAvg)
	}
}

func TestPerfMetricsWraps(t *testing.T) {
	t.Parallel()

	p := NewPerfMetrics()
	for i := 0; i < sampleWindow+10; i++ {
		p.Record("heartbeat", 1, 1)
	}
	agg := p.Aggregate()
	if agg.TotalMessages != int64(sampleWindow+10) {
		t.Fatalf("TotalMessages = %d, want %d (lifetime count, not window-bounded)", agg.TotalMessages, sampleWindow+10)
	}
}
