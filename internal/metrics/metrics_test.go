package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

// counterValue sums the samples of name whose labels include want.
func counterValue(t *testing.T, reg *prometheus.Registry, name string, want map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	total := 0.0
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
	metrics:
		for _, m := range family.GetMetric() {
			labels := map[string]string{}
			for _, pair := range m.GetLabel() {
				labels[pair.GetName()] = pair.GetValue()
			}
			for k, v := range want {
				if labels[k] != v {
					continue metrics
				}
			}
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func TestCollectorCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.SessionOpened(true)
	c.SessionOpened(false)
	c.SessionOpened(false)
	c.RecordSaved(true)
	c.RecordSaved(false)
	c.Verification(false)
	c.TxRetry()
	c.OverdueReported(3)

	cases := []struct {
		name   string
		labels map[string]string
		want   float64
	}{
		{"sac_attendance_sessions_opened_total", map[string]string{"mode": "explicit"}, 2},
		{"sac_attendance_sessions_opened_total", map[string]string{"mode": "implicit"}, 1},
		{"sac_attendance_records_saved_total", map[string]string{"op": "create"}, 1},
		{"sac_attendance_verifications_total", map[string]string{"result": "not_found"}, 1},
		{"sac_attendance_tx_retries_total", nil, 1},
		{"sac_attendance_overdue_sessions_total", nil, 3},
	}
	for _, tc := range cases {
		if got := counterValue(t, reg, tc.name, tc.labels); got != tc.want {
			t.Fatalf("%s %v: expected %v, got %v", tc.name, tc.labels, tc.want, got)
		}
	}
}

func TestNewPanicsOnDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected duplicate registration to panic")
		}
	}()
	New(reg)
}
