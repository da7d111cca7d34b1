package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gather(t *testing.T, reg *prometheus.Registry) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	byName := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		byName[f.GetName()] = f
	}
	return byName
}

func counterValue(t *testing.T, family *dto.MetricFamily, labels map[string]string) float64 {
	t.Helper()
	if family == nil {
		t.Fatal("metric family is missing")
	}
	for _, m := range family.GetMetric() {
		match := true
		for _, lp := range m.GetLabel() {
			if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
				match = false
			}
		}
		if match {
			return m.GetCounter().GetValue()
		}
	}
	t.Fatalf("no sample with labels %v in %s", labels, family.GetName())
	return 0
}

func TestInventoryMetrics_RecordTransactionLifecycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewInventoryMetricsWithRegisterer(reg)

	m.RecordAttempt("update_stock", ResultConflict)
	m.RecordRetry("update_stock")
	m.RecordAttempt("update_stock", ResultCommitted)
	m.RecordExhausted("reserve")
	m.ObserveDuration("update_stock", 15*time.Millisecond)

	families := gather(t, reg)
	if got := counterValue(t, families["stockd_tx_attempts_total"], map[string]string{"operation": "update_stock", "result": ResultCommitted}); got != 1 {
		t.Fatalf("expected 1 committed attempt, got %v", got)
	}
	if got := counterValue(t, families["stockd_tx_retries_total"], map[string]string{"operation": "update_stock"}); got != 1 {
		t.Fatalf("expected 1 retry, got %v", got)
	}
	if got := counterValue(t, families["stockd_tx_retry_exhausted_total"], map[string]string{"operation": "reserve"}); got != 1 {
		t.Fatalf("expected 1 exhausted, got %v", got)
	}
	hist := families["stockd_tx_duration_seconds"]
	if hist == nil || hist.GetMetric()[0].GetHistogram().GetSampleCount() != 1 {
		t.Fatal("expected one duration observation")
	}
}

func TestInventoryMetrics_RecordMovement(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewInventoryMetricsWithRegisterer(reg)

	m.RecordMovement("reservation", "reduction", 3)
	m.RecordMovement("reservation", "reduction", 2)
	m.RecordInsufficientStock()
	m.RecordOutboxEnqueued()

	families := gather(t, reg)
	if got := counterValue(t, families["stockd_stock_movements_total"], map[string]string{"kind": "reservation"}); got != 2 {
		t.Fatalf("expected 2 movements, got %v", got)
	}
	if got := counterValue(t, families["stockd_stock_units_total"], map[string]string{"kind": "reservation"}); got != 5 {
		t.Fatalf("expected 5 units, got %v", got)
	}
	if got := counterValue(t, families["stockd_insufficient_stock_total"], nil); got != 1 {
		t.Fatalf("expected 1 insufficient stock, got %v", got)
	}
}

func TestInventoryMetrics_ReRegistrationReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := NewInventoryMetricsWithRegisterer(reg)
	second := NewInventoryMetricsWithRegisterer(reg)

	if first.txAttempts != second.txAttempts {
		t.Fatal("expected second registration to reuse existing collector")
	}
}

func TestInventoryMetrics_NilReceiverIsNoop(t *testing.T) {
	var m *InventoryMetrics
	m.RecordAttempt("op", ResultFailed)
	m.RecordRetry("op")
	m.RecordExhausted("op")
	m.ObserveDuration("op", time.Second)
	m.RecordMovement("mutation", "addition", 1)
	m.RecordInsufficientStock()
	m.RecordOutboxEnqueued()
}
