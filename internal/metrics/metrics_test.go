package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func value(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, fam := range families {
		if fam.GetName() == name {
			return fam.GetMetric()[0].GetCounter().GetValue()
		}
	}
	t.Fatalf("counter %s not registered", name)
	return 0
}

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := NewWith(reg)

	s.CycleDone()
	s.ReadOK()
	s.ReadOK()
	s.ReadFailed(false)
	s.ReadFailed(true)
	s.RangeRejected(3)
	s.RangeRejected(0)
	s.Published()

	checks := map[string]float64{
		"tankmon_cycles_total":                1,
		"tankmon_sensor_reads_total":          2,
		"tankmon_sensor_read_failures_total":  2,
		"tankmon_sensor_stale_rebuilds_total": 1,
		"tankmon_range_rejected_total":        3,
		"tankmon_snapshots_published_total":   1,
	}
	for name, want := range checks {
		if got := value(t, reg, name); got != want {
			t.Errorf("%s: got %v, want %v", name, got, want)
		}
	}
}

func TestNilSetIsSafe(t *testing.T) {
	var s *Set
	s.CycleDone()
	s.ReadOK()
	s.ReadFailed(true)
	s.RangeRejected(5)
	s.Published()
}
