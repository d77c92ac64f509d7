package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/smokyabdulrahman/prayer-clock/internal/countdown"
	"github.com/smokyabdulrahman/prayer-clock/internal/prayer"
)

// gather returns the metric family called name, failing the test if absent.
func gather(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("%s metric not found", name)
	return nil
}

func sampleState() countdown.State {
	end := time.Date(2026, 10, 18, 12, 15, 0, 0, time.UTC)
	return countdown.State{
		Interval: countdown.Interval{
			Resolved: prayer.Resolved{
				Previous: prayer.Prayer{Name: prayer.Sunrise, Time: 350},
				Next:     prayer.Prayer{Name: prayer.Dhuhr, Time: 735},
			},
			Start: time.Date(2026, 10, 18, 5, 50, 0, 0, time.UTC),
			End:   end,
		},
		Now:           end.Add(-15 * time.Minute),
		Remaining:     15 * time.Minute,
		Progress:      96.1,
		ProgressKnown: true,
	}
}

func TestNewCollector_ReturnsNonNil(t *testing.T) {
	if NewCollector(prometheus.NewRegistry()) == nil {
		t.Fatal("expected non-nil Collector")
	}
}

func TestRecordFetch(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordFetchSuccess(120 * time.Millisecond)
	c.RecordFetchSuccess(80 * time.Millisecond)
	c.RecordFetchFailure("http")

	if v := gather(t, reg, "prayer_clock_fetch_success_total").GetMetric()[0].GetCounter().GetValue(); v != 2 {
		t.Errorf("fetch_success_total = %v, want 2", v)
	}
	if n := gather(t, reg, "prayer_clock_fetch_latency_seconds").GetMetric()[0].GetHistogram().GetSampleCount(); n != 2 {
		t.Errorf("latency sample count = %d, want 2", n)
	}

	fail := gather(t, reg, "prayer_clock_fetch_fail_total").GetMetric()
	if len(fail) != 1 || fail[0].GetLabel()[0].GetValue() != "http" {
		t.Fatalf("unexpected fail series: %v", fail)
	}
}

func TestOnTick_SetsGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	st := sampleState()
	c.OnTick(st)

	if v := gather(t, reg, "prayer_clock_remaining_seconds").GetMetric()[0].GetGauge().GetValue(); v != 900 {
		t.Errorf("remaining_seconds = %v, want 900", v)
	}
	if v := gather(t, reg, "prayer_clock_progress_percent").GetMetric()[0].GetGauge().GetValue(); v != 96.1 {
		t.Errorf("progress_percent = %v, want 96.1", v)
	}
	if v := gather(t, reg, "prayer_clock_ticks_total").GetMetric()[0].GetCounter().GetValue(); v != 1 {
		t.Errorf("ticks_total = %v, want 1", v)
	}

	next := gather(t, reg, "prayer_clock_next_prayer_timestamp_seconds").GetMetric()
	if len(next) != 1 {
		t.Fatalf("expected 1 next-prayer series, got %d", len(next))
	}
	if next[0].GetLabel()[0].GetValue() != "Dhuhr" {
		t.Errorf("next prayer label = %q, want Dhuhr", next[0].GetLabel()[0].GetValue())
	}
	if next[0].GetGauge().GetValue() != float64(st.Interval.End.Unix()) {
		t.Errorf("next prayer timestamp = %v", next[0].GetGauge().GetValue())
	}
}

func TestOnTick_UnknownProgressKeepsLastValue(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.OnTick(sampleState())
	st := sampleState()
	st.ProgressKnown = false
	st.Progress = 0
	c.OnTick(st)

	if v := gather(t, reg, "prayer_clock_progress_percent").GetMetric()[0].GetGauge().GetValue(); v != 96.1 {
		t.Errorf("progress_percent = %v, want last known 96.1", v)
	}
}

func TestOnTick_NextPrayerSeriesReplaced(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.OnTick(sampleState())
	st := sampleState()
	st.Interval.Next = prayer.Prayer{Name: prayer.Asr, Time: 940}
	c.OnTick(st)

	next := gather(t, reg, "prayer_clock_next_prayer_timestamp_seconds").GetMetric()
	if len(next) != 1 || next[0].GetLabel()[0].GetValue() != "Asr" {
		t.Errorf("expected only the Asr series, got %v", next)
	}
}

func TestOnRollover_CountsByPrayer(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	from := sampleState().Interval
	to := from
	to.Next = prayer.Prayer{Name: prayer.Asr, Time: 940}
	c.OnRollover(from, to)
	c.OnRollover(from, to)

	mf := gather(t, reg, "prayer_clock_rollovers_total")
	if v := mf.GetMetric()[0].GetCounter().GetValue(); v != 2 {
		t.Errorf("rollovers_total{prayer=Asr} = %v, want 2", v)
	}
}

func TestWriteTextfile(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.OnTick(sampleState())

	path := filepath.Join(t.TempDir(), "prayer_clock.prom")
	if err := WriteTextfile(path, reg); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read textfile: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, "prayer_clock_remaining_seconds 900") {
		t.Errorf("textfile missing remaining gauge:\n%s", out)
	}
	if !strings.Contains(out, `prayer_clock_next_prayer_timestamp_seconds{prayer="Dhuhr"}`) {
		t.Errorf("textfile missing next-prayer series:\n%s", out)
	}
}
