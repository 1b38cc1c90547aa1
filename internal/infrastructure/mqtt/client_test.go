package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-knxlink/internal/infrastructure/config"
)

// testConfig returns an MQTT configuration pointing at a local Mosquitto.
func testConfig(clientID string) config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: clientID,
		},
		QoS: 1,
		Reconnect: config.ReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// connectOrSkip connects to the local broker, skipping the test when none
// is listening.
func connectOrSkip(t *testing.T, clientID string) *Client {
	t.Helper()
	conn, err := net.DialTimeout("tcp", "127.0.0.1:1883", 200*time.Millisecond)
	if err != nil {
		t.Skip("no MQTT broker on 127.0.0.1:1883")
	}
	conn.Close()

	client, err := Connect(testConfig(clientID), "test")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

type mockLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *mockLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

func (l *mockLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

// =============================================================================
// Offline Tests
// =============================================================================

func TestCloseNil(t *testing.T) {
	client := &Client{}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v, want nil", err)
	}
}

func TestIsConnected_InitialState(t *testing.T) {
	client := &Client{}
	if client.IsConnected() {
		t.Error("IsConnected() = true on zero client")
	}
}

func TestHealthCheckDisconnected(t *testing.T) {
	client := &Client{}

	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := client.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck(cancelled) error = %v, want context.Canceled", err)
	}
}

func TestValidationBeforeConnection(t *testing.T) {
	client := &Client{subscriptions: make(map[string]subscription)}
	noop := func(string, []byte) error { return nil }

	tests := []struct {
		name string
		call func() error
		want error
	}{
		{"publish empty topic", func() error { return client.Publish("", nil, 1, false) }, ErrInvalidTopic},
		{"publish qos 3", func() error { return client.Publish("a", nil, 3, false) }, ErrInvalidQoS},
		{"publish oversize", func() error { return client.Publish("a", make([]byte, maxPayloadSize+1), 1, false) }, ErrPublishFailed},
		{"publish disconnected", func() error { return client.Publish("a", []byte("x"), 1, false) }, ErrNotConnected},
		{"subscribe empty topic", func() error { return client.Subscribe("", 1, noop) }, ErrInvalidTopic},
		{"subscribe qos 3", func() error { return client.Subscribe("a", 3, noop) }, ErrInvalidQoS},
		{"subscribe nil handler", func() error { return client.Subscribe("a", 1, nil) }, ErrSubscribeFailed},
		{"subscribe disconnected", func() error { return client.Subscribe("a", 1, noop) }, ErrNotConnected},
		{"unsubscribe empty topic", func() error { return client.Unsubscribe("") }, ErrInvalidTopic},
		{"unsubscribe disconnected", func() error { return client.Unsubscribe("a") }, ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}

	if client.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", client.SubscriptionCount())
	}
}

func TestDispatchRecoversAndLogs(t *testing.T) {
	logger := &mockLogger{}
	client := &Client{}
	client.SetLogger(logger)

	client.dispatch(func(string, []byte) error { panic("boom") }, "t", nil)
	client.dispatch(func(string, []byte) error { return errors.New("bad payload") }, "t", nil)
	client.dispatch(func(string, []byte) error { return nil }, "t", nil)

	if len(logger.errors) != 1 || len(logger.warns) != 1 {
		t.Errorf("errors = %v, warns = %v, want one of each", logger.errors, logger.warns)
	}
}

func TestStatusPayload(t *testing.T) {
	var online map[string]string
	if err := json.Unmarshal([]byte(statusPayload("online", "knxlink", "")), &online); err != nil {
		t.Fatalf("online payload is not JSON: %v", err)
	}
	if online["status"] != "online" || online["client_id"] != "knxlink" {
		t.Errorf("online payload = %v", online)
	}
	if _, ok := online["reason"]; ok {
		t.Error("online payload carries a reason")
	}

	var offline map[string]string
	if err := json.Unmarshal([]byte(statusPayload("offline", `odd"id`, "graceful_shutdown")), &offline); err != nil {
		t.Fatalf("offline payload is not JSON: %v", err)
	}
	if offline["reason"] != "graceful_shutdown" || offline["client_id"] != `odd"id` {
		t.Errorf("offline payload = %v", offline)
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig("opts")
	cfg.Broker.TLS = true
	cfg.Auth = config.MQTTAuthConfig{Username: "u", Password: "p"}

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "ssl://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want ssl://127.0.0.1:1883", opts.Servers)
	}
	if opts.Username != "u" || opts.Password != "p" {
		t.Errorf("credentials = %q/%q", opts.Username, opts.Password)
	}
	if opts.TLSConfig == nil {
		t.Error("TLSConfig not set")
	}
	if opts.MaxReconnectInterval != 5*time.Second {
		t.Errorf("MaxReconnectInterval = %v, want 5s", opts.MaxReconnectInterval)
	}

	configureLWT(opts, "hall", "opts")
	if !opts.WillEnabled || opts.WillTopic != "knxlink/hall/status" || !opts.WillRetained {
		t.Errorf("will = %v %q retained=%v", opts.WillEnabled, opts.WillTopic, opts.WillRetained)
	}
}

func TestTopicBuilders(t *testing.T) {
	topics := Topics{}
	tests := []struct {
		got, want string
	}{
		{topics.Status("hall"), "knxlink/hall/status"},
		{topics.Health("hall"), "knxlink/hall/health"},
		{topics.Channel("hall"), "knxlink/hall/channel"},
		{topics.Group("hall", "1/2/3"), "knxlink/hall/group/1/2/3"},
		{topics.Datapoint("hall", 12), "knxlink/hall/datapoint/12"},
		{topics.Service("hall"), "knxlink/hall/service"},
		{topics.Command("hall"), "knxlink/hall/command"},
		{topics.Response("hall", "req-1"), "knxlink/hall/response/req-1"},
		{topics.AllGroups("hall"), "knxlink/hall/group/#"},
		{topics.AllStatus(), "knxlink/+/status"},
		{topics.AllTopics(), "knxlink/#"},
	}

	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("topic = %q, want %q", tt.got, tt.want)
		}
	}
}

// =============================================================================
// Broker Tests (skipped without a local broker)
// =============================================================================

func TestConnectInvalidBroker(t *testing.T) {
	cfg := testConfig("knxlink-test-invalid")
	cfg.Broker.Port = 19999

	_, err := Connect(cfg, "test")
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestPublishSubscribeRoundtrip(t *testing.T) {
	client := connectOrSkip(t, "knxlink-test-roundtrip")

	topic := Topics{}.Group("test", "1/2/3")
	received := make(chan string, 1)
	err := client.Subscribe(Topics{}.AllGroups("test"), 1, func(topic string, payload []byte) error {
		received <- topic + " " + string(payload)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if !client.HasSubscription(Topics{}.AllGroups("test")) {
		t.Error("HasSubscription() = false, want true")
	}

	if err := client.Publish(topic, []byte(`{"value":1}`), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case got := <-received:
		if !strings.HasPrefix(got, topic) {
			t.Errorf("received %q, want topic %q", got, topic)
		}
	case <-time.After(2 * time.Second):
		t.Error("message not received")
	}

	if err := client.Unsubscribe(Topics{}.AllGroups("test")); err != nil {
		t.Errorf("Unsubscribe() error = %v", err)
	}
	if client.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", client.SubscriptionCount())
	}
}

func TestCloseDisconnects(t *testing.T) {
	client := connectOrSkip(t, "knxlink-test-close")

	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v, want nil", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
}
