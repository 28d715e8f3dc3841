package otel

import (
	"context"
	"sync"
	"testing"

	"github.com/MrEthical07/formauth"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot formauth.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() formauth.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := formauth.MetricsSnapshot{
		Counters:   make(map[formauth.MetricID]uint64, len(f.snapshot.Counters)),
		Histograms: make(map[formauth.MetricID][]uint64, len(f.snapshot.Histograms)),
	}
	for k, v := range f.snapshot.Counters {
		out.Counters[k] = v
	}
	for k, buckets := range f.snapshot.Histograms {
		out.Histograms[k] = append([]uint64(nil), buckets...)
	}
	return out
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func newManualMeter() (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	reader := sdkmetric.NewManualReader()
	return reader, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
}

func findSum(rm metricdata.ResourceMetrics, name string) (int64, bool) {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				if len(data.DataPoints) > 0 {
					return data.DataPoints[0].Value, true
				}
			case metricdata.Gauge[int64]:
				if len(data.DataPoints) > 0 {
					return data.DataPoints[0].Value, true
				}
			}
		}
	}
	return 0, false
}

func TestExporterRegistersAndCollects(t *testing.T) {
	reader, provider := newManualMeter()
	meter := provider.Meter("formauth-test")

	src := &fakeSource{
		snapshot: formauth.MetricsSnapshot{
			Counters: map[formauth.MetricID]uint64{
				formauth.MetricLoginSuccess: 3,
			},
			Histograms: map[formauth.MetricID][]uint64{
				formauth.MetricAuthenticateLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
		},
		dropped: 1,
	}

	exp, err := NewExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	if v, ok := findSum(rm, "formauth_login_success_total"); !ok || v != 3 {
		t.Fatalf("login success = %d (found %v), want 3", v, ok)
	}
	if v, ok := findSum(rm, "formauth_authenticate_latency_seconds_bucket_le_0_025"); !ok || v != 2 {
		t.Fatalf("0.025 bucket = %d (found %v), want 2", v, ok)
	}
	if v, ok := findSum(rm, "formauth_authenticate_latency_seconds_bucket_le_inf"); !ok || v != 8 {
		t.Fatalf("+Inf bucket = %d (found %v), want 8", v, ok)
	}
	if v, ok := findSum(rm, "formauth_audit_dropped_total"); !ok || v != 1 {
		t.Fatalf("audit dropped = %d (found %v), want 1", v, ok)
	}
}

func TestExporterRejectsNilInputs(t *testing.T) {
	_, provider := newManualMeter()
	meter := provider.Meter("formauth-test")

	if _, err := NewExporterFromSource(meter, nil); err != ErrNilSource {
		t.Fatalf("expected ErrNilSource, got %v", err)
	}
	if _, err := NewExporterFromSource(nil, &fakeSource{}); err != ErrNilMeter {
		t.Fatalf("expected ErrNilMeter, got %v", err)
	}
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader, provider := newManualMeter()
	meter := provider.Meter("formauth-test")

	src := &fakeSource{
		snapshot: formauth.MetricsSnapshot{
			Counters: map[formauth.MetricID]uint64{
				formauth.MetricLoginSuccess: 1,
			},
			Histograms: map[formauth.MetricID][]uint64{
				formauth.MetricAuthenticateLatency: {1, 0, 0, 0, 0, 0, 0, 0},
			},
		},
	}

	exp, err := NewExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[formauth.MetricLoginSuccess] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}
