package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveReceiptOp(t *testing.T) {
	before := testutil.ToFloat64(receiptOps.WithLabelValues(OpCancel, ResultError))
	ObserveReceiptOp(OpCancel, ResultError, 15*time.Millisecond)
	after := testutil.ToFloat64(receiptOps.WithLabelValues(OpCancel, ResultError))
	if after-before != 1 {
		t.Fatalf("receipt op counter delta mismatch: got=%v want=1", after-before)
	}

	before = testutil.ToFloat64(receiptOps.WithLabelValues("unknown", ResultSuccess))
	ObserveReceiptOp("", "", time.Millisecond)
	after = testutil.ToFloat64(receiptOps.WithLabelValues("unknown", ResultSuccess))
	if after-before != 1 {
		t.Fatalf("empty labels must fall back to defaults")
	}
}

func TestRolloverCounters(t *testing.T) {
	before := testutil.ToFloat64(rolloverStudents.WithLabelValues(OpChargeFees, OutcomeApplied))
	AddRolloverStudents(OpChargeFees, OutcomeApplied, 3)
	AddRolloverStudents(OpChargeFees, OutcomeApplied, 0)
	after := testutil.ToFloat64(rolloverStudents.WithLabelValues(OpChargeFees, OutcomeApplied))
	if after-before != 3 {
		t.Fatalf("rollover students delta mismatch: got=%v want=3", after-before)
	}

	before = testutil.ToFloat64(rolloverOps.WithLabelValues(OpCarryForward, ResultSuccess))
	IncRolloverOp(OpCarryForward, ResultSuccess)
	after = testutil.ToFloat64(rolloverOps.WithLabelValues(OpCarryForward, ResultSuccess))
	if after-before != 1 {
		t.Fatalf("rollover op delta mismatch: got=%v want=1", after-before)
	}
}

func TestObserveRecomputeCountsRewrites(t *testing.T) {
	before := testutil.ToFloat64(recomputeRewritten)
	ObserveRecompute(4, time.Millisecond)
	ObserveRecompute(0, time.Millisecond)
	if delta := testutil.ToFloat64(recomputeRewritten) - before; delta != 4 {
		t.Fatalf("rewritten delta mismatch: got=%v want=4", delta)
	}
}

func TestCollectorsRegisterOnCustomRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	for _, c := range Collectors() {
		if err := reg.Register(c); err != nil {
			t.Fatalf("register collector: %v", err)
		}
	}
	ObserveDues(ResultSuccess, time.Millisecond)
	count, err := testutil.GatherAndCount(reg, metricPrefix+"dues_latency_seconds")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if count != 1 {
		t.Fatalf("dues latency series mismatch: got=%d want=1", count)
	}
}
