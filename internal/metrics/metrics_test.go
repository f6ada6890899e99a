package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(rows.WithLabelValues("streaming"))
	AddRows("streaming", 3)
	AddRows("streaming", 0)
	if got := testutil.ToFloat64(rows.WithLabelValues("streaming")) - before; got != 3 {
		t.Errorf("expected 3 rows, got %v", got)
	}

	before = testutil.ToFloat64(skipped.WithLabelValues("unknown"))
	IncSkipped("")
	if got := testutil.ToFloat64(skipped.WithLabelValues("unknown")) - before; got != 1 {
		t.Errorf("expected 1 skipped row, got %v", got)
	}

	before = testutil.ToFloat64(failures.WithLabelValues("expression", "decode"))
	IncFailures("expression", "decode")
	if got := testutil.ToFloat64(failures.WithLabelValues("expression", "decode")) - before; got != 1 {
		t.Errorf("expected 1 failure, got %v", got)
	}
}
