package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func delta(t *testing.T, collector prometheus.Collector, observe func()) float64 {
	t.Helper()

	before := testutil.ToFloat64(collector)
	observe()
	after := testutil.ToFloat64(collector)
	return after - before
}

func TestMinerRecords(t *testing.T) {
	m := NewMiner("MAIN")
	start := time.Now().Add(-time.Second)

	if inc := delta(t, powAttemptsTotal.WithLabelValues("MAIN"), func() {
		m.ObserveAttempts(3)
	}); inc != 3 {
		t.Fatalf("expected attempts counter to grow by 3, got %v", inc)
	}

	if inc := delta(t, powSolveTotal.WithLabelValues("MAIN", "error"), func() {
		m.ObserveSolve(errors.New("cancelled"), start)
	}); inc != 1 {
		t.Fatalf("expected solve error increment, got %v", inc)
	}

	m.ObserveSolve(nil, start)
}

func TestValidatorRecords(t *testing.T) {
	v := NewValidator("")
	start := time.Now()

	if inc := delta(t, validationTotal.WithLabelValues("unknown", "success"), func() {
		v.Observe(nil, start)
	}); inc != 1 {
		t.Fatalf("expected validation success increment, got %v", inc)
	}
}

func TestStoreRecords(t *testing.T) {
	s := NewStore("memory")

	if inc := delta(t, storeOpsTotal.WithLabelValues("memory", "get", "error"), func() {
		s.ObserveOp("get", errors.New("missing"))
	}); inc != 1 {
		t.Fatalf("expected store error increment, got %v", inc)
	}
}

func TestRequestRecords(t *testing.T) {
	if inc := delta(t, requestsTotal.WithLabelValues("404"), func() {
		ObserveRequest(404, errors.New("not found"))
	}); inc != 1 {
		t.Fatalf("expected request increment, got %v", inc)
	}

	if inc := delta(t, panicsTotal, AddPanic); inc != 1 {
		t.Fatalf("expected panic increment, got %v", inc)
	}
}
