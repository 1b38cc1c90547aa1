package influxdb_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-knxlink/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-knxlink/internal/infrastructure/influxdb"
)

// fakeInflux answers /ping and records line protocol bodies posted to
// /api/v2/write.
type fakeInflux struct {
	mu     sync.Mutex
	writes []string
	query  string
}

func (f *fakeInflux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/ping":
		w.WriteHeader(http.StatusNoContent)
	case "/api/v2/write":
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.writes = append(f.writes, string(body))
		f.query = r.URL.RawQuery
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeInflux) body() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return strings.Join(f.writes, "\n")
}

func connectFake(t *testing.T) (*influxdb.Client, *fakeInflux) {
	t.Helper()
	fake := &fakeInflux{}
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	client, err := influxdb.Connect(config.InfluxDBConfig{
		Enabled:       true,
		URL:           server.URL,
		Token:         "test-token",
		Org:           "knxlink",
		Bucket:        "stats",
		BatchSize:     10,
		FlushInterval: 1,
	})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client, fake
}

// waitForBody flushes and polls until the fake server saw want.
func waitForBody(t *testing.T, client *influxdb.Client, fake *fakeInflux, want ...string) string {
	t.Helper()
	client.Flush()
	deadline := time.Now().Add(3 * time.Second)
	for {
		body := fake.body()
		ok := true
		for _, w := range want {
			if !strings.Contains(body, w) {
				ok = false
			}
		}
		if ok {
			return body
		}
		if time.Now().After(deadline) {
			t.Fatalf("write body = %q, want all of %q", body, want)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestConnect_Disabled(t *testing.T) {
	_, err := influxdb.Connect(config.InfluxDBConfig{Enabled: false})
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := influxdb.Connect(config.InfluxDBConfig{Enabled: true, URL: url, Bucket: "b"})
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestHealthCheck(t *testing.T) {
	client, _ := connectFake(t)

	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	client.Close()
	if err := client.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() after Close error = %v, want ErrNotConnected", err)
	}
}

func TestWriteChannelSample(t *testing.T) {
	client, fake := connectFake(t)

	client.WriteChannelSample(influxdb.ChannelSample{
		LinkID:          "hall",
		Protocol:        "objectserver",
		Transport:       "udp",
		Session:         "s-1",
		State:           "open",
		ChannelID:       7,
		SendSequence:    3,
		ReceiveSequence: 9,
		Counters:        map[string]uint64{"frames_rx": 42, "duplicates": 1},
		At:              time.Unix(1700000000, 0),
	})

	body := waitForBody(t, client, fake,
		"knx_channel,",
		"link=hall",
		"protocol=objectserver",
		"frames_rx=42i",
		"duplicates=1i",
		"channel_id=7i",
		"receive_sequence=9i",
	)
	if !strings.Contains(body, "1700000000") {
		t.Errorf("body %q does not carry the sample timestamp", body)
	}

	fake.mu.Lock()
	query := fake.query
	fake.mu.Unlock()
	if !strings.Contains(query, "bucket=stats") || !strings.Contains(query, "org=knxlink") {
		t.Errorf("write query = %q, want org and bucket", query)
	}
}

func TestWriteChannelEvent(t *testing.T) {
	client, fake := connectFake(t)

	client.WriteChannelEvent("hall", "s-2", "closed", "remote-endpoint", time.Now())
	client.WritePoint("custom", map[string]string{"k": "v"}, map[string]any{"n": 1.5})

	waitForBody(t, client, fake,
		"knx_channel_event,",
		"event=closed",
		"reason=remote-endpoint",
		`session="s-2"`,
		"custom,k=v n=1.5",
	)
}

func TestWritesAfterCloseAreDropped(t *testing.T) {
	client, fake := connectFake(t)
	client.Close()

	client.WriteChannelSample(influxdb.ChannelSample{LinkID: "late"})
	client.Flush()
	time.Sleep(50 * time.Millisecond)

	if strings.Contains(fake.body(), "late") {
		t.Error("point written after Close")
	}
}

func TestClose_Nil(t *testing.T) {
	client := &influxdb.Client{}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on zero client error = %v", err)
	}
}
