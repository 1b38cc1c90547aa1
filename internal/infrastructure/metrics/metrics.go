package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config configures the knxlink Prometheus metrics.
type Config struct {
	// Namespace is the metrics namespace (default: "knxlink").
	Namespace string

	// ConstLabels are added to every metric, typically {"link": id}.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for send latency in seconds.
	Buckets []float64

	// Registry receives all collectors. Default: a fresh registry with the
	// Go runtime and process collectors.
	Registry *prometheus.Registry
}

// Option configures Metrics.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the send latency histogram buckets.
func WithBuckets(buckets []float64) Option {
	return func(c *Config) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

// defaultBuckets cover the 1 s acknowledgement and 3 s confirmation windows.
var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2, 3, 5}

func defaultConfig() Config {
	return Config{
		Namespace: "knxlink",
		Buckets:   defaultBuckets,
	}
}

// Snapshot is the channel state exported on each scrape.
type Snapshot struct {
	// Open is false while no channel exists (dialling, backing off).
	Open bool

	State           string
	Protocol        string
	ChannelID       uint8
	SendSequence    uint8
	ReceiveSequence uint8

	// Counters are cumulative per channel session, keyed by snake_case name
	// (frames_tx, duplicates, ...).
	Counters map[string]uint64

	LastActivity time.Time
}

// SnapshotFunc returns the current channel snapshot. It is called on every
// scrape and must be safe for concurrent use.
type SnapshotFunc func() Snapshot

// Metrics holds the knxlink collectors.
//
// Thread Safety:
//   - All Record methods are safe for concurrent use.
type Metrics struct {
	registry *prometheus.Registry

	dials        *prometheus.CounterVec
	closes       *prometheus.CounterVec
	commands     *prometheus.CounterVec
	sendDuration *prometheus.HistogramVec
	published    *prometheus.CounterVec
}

// New registers the channel collector and the link counters.
//
// Metrics exported (namespace knxlink):
//   - channel_up: 1 while a channel is open
//   - channel_info{state,protocol,channel_id}: always 1
//   - channel_frames_total{kind}: channel statistics counters
//   - channel_sequence{direction}: current send/receive sequence
//   - channel_last_activity_timestamp_seconds
//   - dials_total{result}
//   - channel_closes_total{reason}
//   - commands_total{kind,outcome}
//   - send_duration_seconds{mode}
//   - mqtt_published_total{topic_kind}
func New(source SnapshotFunc, opts ...Option) *Metrics {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
		cfg.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	factory := promauto.With(cfg.Registry)
	m := &Metrics{
		registry: cfg.Registry,

		dials: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "dials_total",
			Help:        "Channel connect attempts by result",
			ConstLabels: cfg.ConstLabels,
		}, []string{"result"}),

		closes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "channel_closes_total",
			Help:        "Channel closes by reason",
			ConstLabels: cfg.ConstLabels,
		}, []string{"reason"}),

		commands: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "commands_total",
			Help:        "Send commands handled, by kind and outcome",
			ConstLabels: cfg.ConstLabels,
		}, []string{"kind", "outcome"}),

		sendDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   cfg.Namespace,
			Name:        "send_duration_seconds",
			Help:        "Time from send to acknowledgement or confirmation",
			ConstLabels: cfg.ConstLabels,
			Buckets:     cfg.Buckets,
		}, []string{"mode"}),

		published: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "mqtt_published_total",
			Help:        "Messages published to MQTT by topic kind",
			ConstLabels: cfg.ConstLabels,
		}, []string{"topic_kind"}),
	}

	if source != nil {
		cfg.Registry.MustRegister(newChannelCollector(cfg.Namespace, cfg.ConstLabels, source))
	}

	return m
}

// Registry returns the registry the metrics are registered with.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the /metrics HTTP handler for the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordDial counts a connect attempt.
func (m *Metrics) RecordDial(err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.dials.WithLabelValues(result).Inc()
}

// RecordClose counts a channel close by reason.
func (m *Metrics) RecordClose(reason string) {
	m.closes.WithLabelValues(reason).Inc()
}

// RecordCommand counts a handled command.
func (m *Metrics) RecordCommand(kind, outcome string) {
	m.commands.WithLabelValues(kind, outcome).Inc()
}

// ObserveSend records how long a blocking send took.
func (m *Metrics) ObserveSend(mode string, d time.Duration) {
	m.sendDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// RecordPublish counts an MQTT publish.
func (m *Metrics) RecordPublish(topicKind string) {
	m.published.WithLabelValues(topicKind).Inc()
}

// channelCollector turns a Snapshot into const metrics at scrape time.
type channelCollector struct {
	source SnapshotFunc

	up           *prometheus.Desc
	info         *prometheus.Desc
	frames       *prometheus.Desc
	sequence     *prometheus.Desc
	lastActivity *prometheus.Desc
}

func newChannelCollector(namespace string, labels prometheus.Labels, source SnapshotFunc) *channelCollector {
	name := func(n string) string { return prometheus.BuildFQName(namespace, "channel", n) }
	return &channelCollector{
		source:       source,
		up:           prometheus.NewDesc(name("up"), "Whether a KNXnet/IP channel is open", nil, labels),
		info:         prometheus.NewDesc(name("info"), "Current channel state and identity", []string{"state", "protocol", "channel_id"}, labels),
		frames:       prometheus.NewDesc(name("frames_total"), "Channel statistics counters for the current session", []string{"kind"}, labels),
		sequence:     prometheus.NewDesc(name("sequence"), "Current modulo-256 sequence counter", []string{"direction"}, labels),
		lastActivity: prometheus.NewDesc(name("last_activity_timestamp_seconds"), "Unix time of the last frame sent or received", nil, labels),
	}
}

func (c *channelCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.up
	ch <- c.info
	ch <- c.frames
	ch <- c.sequence
	ch <- c.lastActivity
}

func (c *channelCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.source()

	up := 0.0
	if s.Open {
		up = 1
	}
	ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, up)
	if !s.Open {
		return
	}

	ch <- prometheus.MustNewConstMetric(c.info, prometheus.GaugeValue, 1,
		s.State, s.Protocol, strconv.Itoa(int(s.ChannelID)))
	for kind, v := range s.Counters {
		ch <- prometheus.MustNewConstMetric(c.frames, prometheus.CounterValue, float64(v), kind)
	}
	ch <- prometheus.MustNewConstMetric(c.sequence, prometheus.GaugeValue, float64(s.SendSequence), "send")
	ch <- prometheus.MustNewConstMetric(c.sequence, prometheus.GaugeValue, float64(s.ReceiveSequence), "receive")
	if !s.LastActivity.IsZero() {
		ch <- prometheus.MustNewConstMetric(c.lastActivity, prometheus.GaugeValue,
			float64(s.LastActivity.UnixNano())/1e9)
	}
}
