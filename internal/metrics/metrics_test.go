package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestObserveRequest_incrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveRequest("GET", "200", 10*time.Millisecond)
	m.ObserveRequest("GET", "200", 5*time.Millisecond)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	var found *dto.MetricFamily
	for _, f := range families {
		if f.GetName() == "hashshelf_requests_total" {
			found = f
		}
	}
	if found == nil {
		t.Fatal("hashshelf_requests_total not registered")
	}
	if len(found.Metric) != 1 || found.Metric[0].GetCounter().GetValue() != 2 {
		t.Fatalf("unexpected metric state: %+v", found.Metric)
	}
}

func TestStreamStarted_tracksInFlight(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	done := m.StreamStarted()

	families, _ := reg.Gather()
	var gauge *dto.MetricFamily
	for _, f := range families {
		if f.GetName() == "hashshelf_streams_in_flight" {
			gauge = f
		}
	}
	if gauge == nil || gauge.Metric[0].GetGauge().GetValue() != 1 {
		t.Fatalf("expected gauge = 1 after StreamStarted")
	}

	done()
	families, _ = reg.Gather()
	for _, f := range families {
		if f.GetName() == "hashshelf_streams_in_flight" {
			gauge = f
		}
	}
	if gauge.Metric[0].GetGauge().GetValue() != 0 {
		t.Fatalf("expected gauge = 0 after done()")
	}
}
