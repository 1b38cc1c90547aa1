package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

type fakeSource struct {
	mu   sync.Mutex
	snap Snapshot
}

func (f *fakeSource) get() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeSource) set(s Snapshot) {
	f.mu.Lock()
	f.snap = s
	f.mu.Unlock()
}

func gather(t *testing.T, reg *prometheus.Registry) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	out := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		out[f.GetName()] = f
	}
	return out
}

func labelValue(m *dto.Metric, name string) string {
	for _, l := range m.GetLabel() {
		if l.GetName() == name {
			return l.GetValue()
		}
	}
	return ""
}

func TestChannelCollector(t *testing.T) {
	src := &fakeSource{}
	reg := prometheus.NewRegistry()
	New(src.get, WithRegistry(reg), WithConstLabels(prometheus.Labels{"link": "hall"}))

	t.Run("no channel", func(t *testing.T) {
		families := gather(t, reg)
		up := families["knxlink_channel_up"]
		if up == nil || up.GetMetric()[0].GetGauge().GetValue() != 0 {
			t.Fatalf("knxlink_channel_up = %v, want 0", up)
		}
		if labelValue(up.GetMetric()[0], "link") != "hall" {
			t.Error("const label link missing")
		}
		if _, ok := families["knxlink_channel_frames_total"]; ok {
			t.Error("counters exported without a channel")
		}
	})

	t.Run("open channel", func(t *testing.T) {
		src.set(Snapshot{
			Open:            true,
			State:           "open",
			Protocol:        "objectserver",
			ChannelID:       7,
			SendSequence:    3,
			ReceiveSequence: 255,
			Counters:        map[string]uint64{"frames_rx": 42, "duplicates": 2},
			LastActivity:    time.Unix(1700000000, 0),
		})

		families := gather(t, reg)
		if got := families["knxlink_channel_up"].GetMetric()[0].GetGauge().GetValue(); got != 1 {
			t.Errorf("channel_up = %v, want 1", got)
		}

		info := families["knxlink_channel_info"].GetMetric()[0]
		if labelValue(info, "state") != "open" || labelValue(info, "channel_id") != "7" {
			t.Errorf("channel_info labels = %v", info.GetLabel())
		}

		frames := map[string]float64{}
		for _, m := range families["knxlink_channel_frames_total"].GetMetric() {
			frames[labelValue(m, "kind")] = m.GetCounter().GetValue()
		}
		if frames["frames_rx"] != 42 || frames["duplicates"] != 2 {
			t.Errorf("frames_total = %v", frames)
		}

		seq := map[string]float64{}
		for _, m := range families["knxlink_channel_sequence"].GetMetric() {
			seq[labelValue(m, "direction")] = m.GetGauge().GetValue()
		}
		if seq["send"] != 3 || seq["receive"] != 255 {
			t.Errorf("sequence = %v", seq)
		}

		if got := families["knxlink_channel_last_activity_timestamp_seconds"].GetMetric()[0].GetGauge().GetValue(); got != 1700000000 {
			t.Errorf("last_activity = %v, want 1700000000", got)
		}
	})
}

func TestRecorders(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(nil, WithRegistry(reg), WithNamespace("test"))

	m.RecordDial(nil)
	m.RecordDial(errors.New("refused"))
	m.RecordDial(errors.New("timeout"))
	m.RecordClose("remote-endpoint")
	m.RecordCommand("group_write", "ok")
	m.ObserveSend("wait-for-ack", 20*time.Millisecond)
	m.RecordPublish("group")

	families := gather(t, reg)

	dials := map[string]float64{}
	for _, metric := range families["test_dials_total"].GetMetric() {
		dials[labelValue(metric, "result")] = metric.GetCounter().GetValue()
	}
	if dials["success"] != 1 || dials["failure"] != 2 {
		t.Errorf("dials = %v", dials)
	}

	if got := families["test_send_duration_seconds"].GetMetric()[0].GetHistogram().GetSampleCount(); got != 1 {
		t.Errorf("send_duration sample count = %d, want 1", got)
	}
	for _, name := range []string{"test_channel_closes_total", "test_commands_total", "test_mqtt_published_total"} {
		if families[name] == nil {
			t.Errorf("%s not exported", name)
		}
	}
	if _, ok := families["test_channel_up"]; ok {
		t.Error("channel collector registered without a source")
	}
}

func TestHandler(t *testing.T) {
	m := New(func() Snapshot { return Snapshot{} })

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	for _, want := range []string{"knxlink_channel_up 0", "go_goroutines"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
