package metrics

import (
	"sync"
	"testing"
	"time"
)

func TestRegistry_IncrementCounter(t *testing.T) {
	registry := NewRegistry()

	registry.IncrementCounter("test_counter", nil, "Test counter")

	snap := registry.Snapshot()
	if counter, exists := snap.Counters["test_counter"]; !exists {
		t.Fatal("Expected counter 'test_counter' to exist")
	} else if counter.Value != 1 {
		t.Fatalf("Expected counter value to be 1, got %f", counter.Value)
	}

	labels := map[string]string{"status": "success"}
	registry.IncrementCounter("test_counter", labels, "Test counter")
	registry.IncrementCounter("test_counter", labels, "Test counter")

	if got := registry.CounterValue("test_counter", labels); got != 2 {
		t.Fatalf("Expected labeled counter value to be 2, got %f", got)
	}
	if _, exists := registry.Snapshot().Counters["test_counter_status:success"]; !exists {
		t.Fatal("Expected labeled counter key to exist")
	}
}

func TestMetricKey_StableLabelOrder(t *testing.T) {
	a := metricKey("relay", map[string]string{"result": "ok", "code": "200", "kind": "text"})
	b := metricKey("relay", map[string]string{"kind": "text", "code": "200", "result": "ok"})

	if a != b {
		t.Fatalf("Expected identical keys, got %q and %q", a, b)
	}
	if a != "relay_code:200_kind:text_result:ok" {
		t.Fatalf("Unexpected key %q", a)
	}
}

func TestRegistry_RecordTimer(t *testing.T) {
	registry := NewRegistry()

	for i := 1; i <= 20; i++ {
		registry.RecordTimer("delivery", time.Duration(i)*time.Millisecond, nil)
	}

	timer := registry.Snapshot().Timers["delivery"]
	if timer.Count != 20 {
		t.Fatalf("Expected count 20, got %d", timer.Count)
	}
	if timer.Min != 1 || timer.Max != 20 {
		t.Fatalf("Expected min 1 and max 20, got %f and %f", timer.Min, timer.Max)
	}
	if timer.Average != 10.5 {
		t.Fatalf("Expected average 10.5, got %f", timer.Average)
	}
	if timer.P95 != 20 {
		t.Fatalf("Expected p95 20, got %f", timer.P95)
	}
}

func TestRegistry_SetGauge(t *testing.T) {
	registry := NewRegistry()

	registry.SetGauge(SessionStateGauge, 1, nil, "state")
	registry.SetGauge(SessionStateGauge, 0, nil, "state")

	gauge := registry.Snapshot().Gauges[SessionStateGauge]
	if gauge.Value != 0 || gauge.Type != Gauge {
		t.Fatalf("Expected gauge value 0, got %+v", gauge)
	}
}

func TestRegistry_SnapshotIsCopy(t *testing.T) {
	registry := NewRegistry()
	registry.IncrementCounter("c", nil, "")

	snap := registry.Snapshot()
	registry.IncrementCounter("c", nil, "")

	if snap.Counters["c"].Value != 1 {
		t.Fatalf("Snapshot changed after later increment: %f", snap.Counters["c"].Value)
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	registry := NewRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			registry.IncrementCounter("concurrent", nil, "")
			registry.RecordTimer("concurrent_timer", time.Millisecond, nil)
			_ = registry.Snapshot()
		}()
	}
	wg.Wait()

	if got := registry.CounterValue("concurrent", nil); got != 50 {
		t.Fatalf("Expected 50, got %f", got)
	}
}
