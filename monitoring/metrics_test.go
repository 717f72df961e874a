package monitoring

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegisterIsIdempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := Register(reg); err != nil {
		t.Fatalf("second register should be ignored: %v", err)
	}

	ObservePrediction(10*time.Millisecond, OutcomeSuccess, "Potable")
	ObservePrediction(-time.Second, OutcomeValidationError, "")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, family := range families {
		if family.GetName() == "watercheck_predictions_total" {
			found = true
			if len(family.GetMetric()) < 2 {
				t.Fatalf("expected two label sets, got %d", len(family.GetMetric()))
			}
		}
	}
	if !found {
		t.Fatal("predictions_total not gathered")
	}
}
