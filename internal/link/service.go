package link

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gray-logic-knxlink/internal/baos"
	"github.com/nerrad567/gray-logic-knxlink/internal/cemi"
	"github.com/nerrad567/gray-logic-knxlink/internal/channel"
	"github.com/nerrad567/gray-logic-knxlink/internal/dpt"
	"github.com/nerrad567/gray-logic-knxlink/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-knxlink/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-knxlink/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-knxlink/internal/infrastructure/mqtt"
)

// Service operation constants.
const (
	// commandTimeout bounds one command, including ack and confirmation.
	commandTimeout = 5 * time.Second

	// journalTimeout bounds one journal write.
	journalTimeout = 5 * time.Second

	// minReconnectDelay is the floor for every redial delay.
	minReconnectDelay = 100 * time.Millisecond

	// eventQueueSize is the number of MQTT publishes that may queue behind
	// a slow broker before events are dropped.
	eventQueueSize = 256
)

// Topic kinds used as the metrics label for publishes.
const (
	topicGroup     = "group"
	topicDatapoint = "datapoint"
	topicService   = "service"
	topicChannel   = "channel"
	topicResponse  = "response"
	topicHealth    = "health"
)

// Bus is the MQTT surface a link uses. *mqtt.Client satisfies it.
type Bus interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	IsConnected() bool
}

// Broadcaster fans events out to local subscribers. *api.Hub satisfies it.
// Channels are the topic kinds: group, datapoint, service, channel,
// response and health.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// Telemetry receives channel statistics. *influxdb.Client satisfies it.
type Telemetry interface {
	WriteChannelSample(s influxdb.ChannelSample)
	WriteChannelEvent(linkID, session, event, reason string, at time.Time)
}

// Logger is the logging interface used by the service.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Options holds the collaborators of a Service.
type Options struct {
	// Config is the validated link configuration.
	Config config.LinkConfig

	// Dial opens channels. Default: NewDialer(Config, Logger).
	Dial Dialer

	// Bus publishes events and delivers commands. Optional.
	Bus Bus

	// QoS for every publish and the command subscription. Default: 1.
	QoS *byte

	// Events receives every message that is published to MQTT. Optional.
	Events Broadcaster

	// Journal records sessions and commands. Optional.
	Journal *Journal

	// Telemetry receives statistics samples. Optional.
	Telemetry Telemetry

	// Metrics counts dials, closes, commands and publishes. Optional.
	Metrics *metrics.Metrics

	// Logger for service and channel logs. Optional.
	Logger Logger

	// Version is reported in health messages.
	Version string
}

// session is one open channel.
type session struct {
	id       string
	ch       *channel.Channel
	openedAt time.Time
}

// outbound is an MQTT publish queued from the channel reader goroutine.
type outbound struct {
	topic    string
	kind     string
	payload  any
	retained bool
}

// Service keeps one channel open and bridges it to MQTT, the journal and
// telemetry.
//
// Thread Safety: All methods are safe for concurrent use. Run must be
// called once.
type Service struct {
	cfg       config.LinkConfig
	dial      Dialer
	bus       Bus
	qos       byte
	observers Broadcaster
	journal   *Journal
	telemetry Telemetry
	metrics   *metrics.Metrics
	version   string
	topics    mqtt.Topics
	startTime time.Time

	// datapoints maps group addresses and item ids to their types.
	datapoints map[string]dpt.ID

	initialDelay   time.Duration
	maxDelay       time.Duration
	healthInterval time.Duration
	commandTimeout time.Duration

	mu      sync.RWMutex
	current *session
	baseCtx context.Context

	events     chan outbound // publish queue
	reconnects atomic.Uint64
	dropped    atomic.Uint64

	logger   Logger
	loggerMu sync.RWMutex
}

// New creates a link service. Call Run to start it.
//
// Parameters:
//   - opts: Link configuration and collaborators
//
// Returns:
//   - *Service: Ready to run
//   - error: If the link configuration is incomplete
func New(opts Options) (*Service, error) {
	if opts.Config.ID == "" {
		return nil, fmt.Errorf("link id is required")
	}
	if opts.Dial == nil {
		if opts.Config.Gateway == "" {
			return nil, fmt.Errorf("link gateway is required")
		}
		var chLogger channel.Logger
		if opts.Logger != nil {
			chLogger = opts.Logger
		}
		opts.Dial = NewDialer(opts.Config, chLogger)
	}

	qos := byte(1)
	if opts.QoS != nil {
		qos = *opts.QoS
	}

	healthInterval := opts.Config.GetHealthInterval()
	if healthInterval == 0 {
		healthInterval = 30 * time.Second
	}

	datapoints := make(map[string]dpt.ID, len(opts.Config.Datapoints))
	for target, id := range opts.Config.Datapoints {
		datapoints[target] = dpt.ID(id)
	}

	return &Service{
		cfg:            opts.Config,
		datapoints:     datapoints,
		dial:           opts.Dial,
		bus:            opts.Bus,
		qos:            qos,
		observers:      opts.Events,
		journal:        opts.Journal,
		telemetry:      opts.Telemetry,
		metrics:        opts.Metrics,
		version:        opts.Version,
		startTime:      time.Now(),
		initialDelay:   max(opts.Config.Reconnect.GetInitialDelay(), minReconnectDelay),
		maxDelay:       opts.Config.Reconnect.GetMaxDelay(),
		healthInterval: healthInterval,
		commandTimeout: commandTimeout,
		baseCtx:        context.Background(),
		events:         make(chan outbound, eventQueueSize),
		logger:         opts.Logger,
	}, nil
}

// Run dials the gateway and keeps the channel open until ctx is
// cancelled. On cancellation the channel is closed and a final
// "stopping" health message is published.
//
// Returns:
//   - error: nil after cancellation, ErrReconnectExhausted when the
//     configured number of connect attempts failed
func (s *Service) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	commandTopic := s.topics.Command(s.cfg.ID)
	if s.bus != nil {
		if err := s.bus.Subscribe(commandTopic, s.qos, s.handleCommand); err != nil {
			s.logWarn("command subscription failed, commands disabled", "topic", commandTopic, "error", err)
		} else {
			s.logInfo("subscribed to commands", "topic", commandTopic)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.connectLoop(gctx) })
	g.Go(func() error {
		s.publishLoop(gctx)
		return nil
	})
	g.Go(func() error {
		s.reportLoop(gctx)
		return nil
	})
	err := g.Wait()

	if s.bus != nil {
		if uerr := s.bus.Unsubscribe(commandTopic); uerr != nil {
			s.logDebug("command unsubscribe failed", "error", uerr)
		}
	}
	s.publishHealth(HealthStopping, "shutting down")

	return err
}

// connectLoop dials, serves the channel until it closes, and dials again
// with exponential backoff.
func (s *Service) connectLoop(ctx context.Context) error {
	delay := s.initialDelay
	failures := 0

	for {
		ch, err := s.dial(ctx)
		if s.metrics != nil {
			s.metrics.RecordDial(err)
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			failures++
			if limit := s.cfg.Reconnect.MaxAttempts; limit > 0 && failures >= limit {
				return fmt.Errorf("%w: %d attempts: %w", ErrReconnectExhausted, failures, err)
			}
			s.logWarn("connect failed",
				"gateway", s.cfg.Gateway,
				"attempt", failures,
				"retry_in", delay.String(),
				"error", err)
			if !sleepContext(ctx, delay) {
				return nil
			}
			delay = nextDelay(delay, s.maxDelay)
			continue
		}

		failures = 0
		delay = s.initialDelay

		ev := s.serve(ctx, ch)
		if ctx.Err() != nil {
			return nil
		}

		s.reconnects.Add(1)
		s.logInfo("channel lost, reconnecting",
			"reason", ev.Reason,
			"message", ev.Message,
			"retry_in", delay.String())
		if !sleepContext(ctx, delay) {
			return nil
		}
	}
}

// serve attaches ch to the service and blocks until it closes. A cancelled
// ctx closes the channel at the user's request.
func (s *Service) serve(ctx context.Context, ch *channel.Channel) channel.CloseEvent {
	closed := make(chan channel.CloseEvent, 1)
	notify := func(ev channel.CloseEvent) {
		select {
		case closed <- ev:
		default:
		}
	}

	sess := s.attach(ch)
	remove := ch.AddListener(channel.Listener{
		Service: s.onService,
		Closed:  notify,
	})
	defer remove()

	// The channel may have closed before the listener was added.
	if ev, ok := ch.CloseEvent(); ok {
		notify(ev)
	}

	var ev channel.CloseEvent
	select {
	case ev = <-closed:
	case <-ctx.Done():
		//nolint:errcheck // Close is best-effort and always returns nil
		ch.Close()
		ev = <-closed
	}

	s.detach(sess, ev)
	return ev
}

// attach records a newly opened channel.
func (s *Service) attach(ch *channel.Channel) *session {
	sess := &session{id: uuid.NewString(), ch: ch, openedAt: time.Now()}

	s.mu.Lock()
	s.current = sess
	s.mu.Unlock()

	if s.journal != nil {
		ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
		err := s.journal.OpenSession(ctx, Session{
			ID:        sess.id,
			LinkID:    s.cfg.ID,
			Protocol:  ch.Protocol().Name,
			Transport: s.cfg.Transport,
			Gateway:   s.cfg.Gateway,
			ChannelID: ch.ChannelID(),
			OpenedAt:  sess.openedAt,
		})
		cancel()
		if err != nil {
			s.logError("journal open failed", err, "session", sess.id)
		}
	}

	if s.telemetry != nil {
		s.telemetry.WriteChannelEvent(s.cfg.ID, sess.id, EventOpen, "", sess.openedAt)
	}
	s.publish(s.channelMessage(sess, EventOpen, channel.CloseEvent{}))

	s.logInfo("link connected",
		"session", sess.id,
		"gateway", s.cfg.Gateway,
		"protocol", ch.Protocol().Name,
		"channel_id", ch.ChannelID())
	return sess
}

// detach records the close of the current channel.
func (s *Service) detach(sess *session, ev channel.CloseEvent) {
	stats := sess.ch.Stats()

	s.mu.Lock()
	if s.current == sess {
		s.current = nil
	}
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordClose(string(ev.Reason))
	}
	if s.journal != nil {
		ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
		err := s.journal.CloseSession(ctx, sess.id, ev.At, string(ev.Reason), ev.Message, stats.Counters())
		cancel()
		if err != nil {
			s.logError("journal close failed", err, "session", sess.id)
		}
	}
	if s.telemetry != nil {
		s.telemetry.WriteChannelSample(s.sample(sess, stats, ev.At))
		s.telemetry.WriteChannelEvent(s.cfg.ID, sess.id, EventClosed, string(ev.Reason), ev.At)
	}
	s.publish(s.channelMessage(sess, EventClosed, ev))
}

func (s *Service) channelMessage(sess *session, event string, ev channel.CloseEvent) outbound {
	at := sess.openedAt
	if event == EventClosed {
		at = ev.At
	}
	return outbound{
		topic: s.topics.Channel(s.cfg.ID),
		kind:  topicChannel,
		payload: ChannelMessage{
			Link:      s.cfg.ID,
			Timestamp: at.UTC(),
			Event:     event,
			Session:   sess.id,
			Protocol:  sess.ch.Protocol().Name,
			Transport: s.cfg.Transport,
			Gateway:   s.cfg.Gateway,
			ChannelID: sess.ch.ChannelID(),
			Reason:    string(ev.Reason),
			Message:   ev.Message,
		},
		retained: true,
	}
}

// onService runs on the channel reader goroutine, so publishes are only
// queued here.
func (s *Service) onService(ev channel.ServiceEvent) {
	if s.bus == nil && s.observers == nil {
		return
	}

	switch svc := ev.Service.(type) {
	case cemi.LData:
		if svc.Code == cemi.LDataInd && svc.GroupDestination() {
			msg := NewGroupMessage(s.cfg.ID, svc, ev.Sequence, ev.Received)
			if svc.APCI != cemi.APCIGroupRead {
				msg.Value = s.decodeValue(msg.Destination, svc.Data)
			}
			s.enqueue(outbound{
				topic:    s.topics.Group(s.cfg.ID, msg.Destination),
				kind:     topicGroup,
				payload:  msg,
				retained: true,
			})
			return
		}
		s.enqueue(s.serviceMessage(svc.String(), nil, ev.Received))

	case baos.Message:
		if !svc.IsError() && (svc.Subservice == baos.DatapointValueInd || svc.Subservice == baos.GetDatapointValueRes) {
			for i, msg := range NewDatapointMessages(s.cfg.ID, svc, ev.Received) {
				msg.Value = s.decodeValue(strconv.Itoa(int(msg.ID)), svc.Items[i].Data)
				s.enqueue(outbound{
					topic:    s.topics.Datapoint(s.cfg.ID, msg.ID),
					kind:     topicDatapoint,
					payload:  msg,
					retained: true,
				})
			}
			return
		}
		s.enqueue(s.serviceMessage(svc.String(), svc.Err(), ev.Received))

	default:
		s.enqueue(s.serviceMessage(ev.Service.String(), nil, ev.Received))
	}
}

// decodeValue decodes data for a target with a configured datapoint type.
// It returns nil for unmapped targets and undecodable data.
func (s *Service) decodeValue(target string, data []byte) any {
	id, ok := s.datapoints[target]
	if !ok {
		return nil
	}
	v, err := dpt.Decode(id, data)
	if err != nil {
		s.logDebug("datapoint decode failed", "target", target, "dpt", string(id), "error", err)
		return nil
	}
	return v
}

func (s *Service) serviceMessage(desc string, err error, at time.Time) outbound {
	msg := ServiceMessage{Link: s.cfg.ID, Timestamp: at.UTC(), Service: desc}
	if err != nil {
		msg.Error = err.Error()
	}
	return outbound{topic: s.topics.Service(s.cfg.ID), kind: topicService, payload: msg}
}

// enqueue hands a publish to publishLoop, dropping it if the queue is full.
func (s *Service) enqueue(o outbound) {
	select {
	case s.events <- o:
	default:
		if n := s.dropped.Add(1); n == 1 || n%100 == 0 {
			s.logWarn("event queue full, dropping MQTT events", "topic", o.topic, "dropped_total", n)
		}
	}
}

// publishLoop drains the event queue.
func (s *Service) publishLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case o := <-s.events:
			s.publish(o)
		}
	}
}

// publish hands one message to the event observers, then marshals and
// sends it synchronously.
func (s *Service) publish(o outbound) {
	if s.observers != nil {
		s.observers.Broadcast(o.kind, o.payload)
	}
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(o.payload)
	if err != nil {
		s.logError("failed to marshal MQTT payload", err, "topic", o.topic)
		return
	}
	if err := s.bus.Publish(o.topic, payload, s.qos, o.retained); err != nil {
		if errors.Is(err, mqtt.ErrNotConnected) {
			s.logDebug("MQTT publish skipped, not connected", "topic", o.topic)
			return
		}
		s.logError("MQTT publish failed", err, "topic", o.topic)
		return
	}
	if s.metrics != nil {
		s.metrics.RecordPublish(o.kind)
	}
}

// handleCommand is the MQTT handler for the command topic.
func (s *Service) handleCommand(_ string, payload []byte) error {
	cmd, err := ParseCommand(payload)
	if err != nil {
		// No id to answer on.
		return err
	}
	receivedAt := time.Now()

	svc, mode, err := cmd.Build()
	sessionID := ""
	if err == nil {
		sessionID, err = s.send(svc, mode)
	}

	resp := NewResponse(cmd, mode, err)
	kind := string(cmd.Kind)
	modeName := cmd.Mode
	if errors.Is(err, ErrInvalidCommand) {
		kind = "invalid"
	} else {
		modeName = mode.String()
	}

	if s.metrics != nil {
		s.metrics.RecordCommand(kind, resp.outcome())
	}
	if s.journal != nil {
		rec := CommandRecord{
			ID:         cmd.ID,
			SessionID:  sessionID,
			ReceivedAt: receivedAt,
			Kind:       string(cmd.Kind),
			Target:     cmd.Target,
			Mode:       modeName,
			Outcome:    resp.outcome(),
		}
		if err != nil {
			rec.Error = err.Error()
		}
		ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
		if jerr := s.journal.RecordCommand(ctx, rec); jerr != nil {
			s.logError("journal command failed", jerr, "command", cmd.ID)
		}
		cancel()
	}

	if err != nil {
		s.logWarn("command failed", "id", cmd.ID, "kind", cmd.Kind, "target", cmd.Target, "error", err)
	} else {
		s.logDebug("command done", "id", cmd.ID, "kind", cmd.Kind, "target", cmd.Target, "status", resp.Status)
	}

	s.publish(outbound{
		topic:   s.topics.Response(s.cfg.ID, cmd.ID),
		kind:    topicResponse,
		payload: resp,
	})
	return nil
}

// send transmits svc on the current channel and returns its session id.
func (s *Service) send(svc channel.Service, mode channel.Mode) (string, error) {
	s.mu.RLock()
	sess := s.current
	base := s.baseCtx
	s.mu.RUnlock()

	if sess == nil {
		return "", ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(base, s.commandTimeout)
	defer cancel()

	start := time.Now()
	err := sess.ch.Send(ctx, svc, mode)
	if s.metrics != nil {
		s.metrics.ObserveSend(mode.String(), time.Since(start))
	}
	return sess.id, err
}

// Status returns the open channel, or nil while disconnected.
func (s *Service) Status() *ChannelStatus {
	s.mu.RLock()
	sess := s.current
	s.mu.RUnlock()
	if sess == nil {
		return nil
	}

	stats := sess.ch.Stats()
	status := &ChannelStatus{
		Session:         sess.id,
		State:           stats.State.String(),
		Protocol:        stats.Protocol,
		Transport:       s.cfg.Transport,
		Gateway:         s.cfg.Gateway,
		ChannelID:       stats.ChannelID,
		SendSequence:    stats.SendSequence,
		ReceiveSequence: stats.ReceiveSequence,
		OpenedAt:        sess.openedAt.UTC(),
		Counters:        stats.Counters(),
	}
	if !stats.LastActivity.IsZero() {
		last := stats.LastActivity.UTC()
		status.LastActivity = &last
	}
	return status
}

// Snapshot returns the channel state for the Prometheus collector.
func (s *Service) Snapshot() metrics.Snapshot {
	s.mu.RLock()
	sess := s.current
	s.mu.RUnlock()
	if sess == nil {
		return metrics.Snapshot{}
	}

	stats := sess.ch.Stats()
	return metrics.Snapshot{
		Open:            stats.State == channel.StateOpen,
		State:           stats.State.String(),
		Protocol:        stats.Protocol,
		ChannelID:       stats.ChannelID,
		SendSequence:    stats.SendSequence,
		ReceiveSequence: stats.ReceiveSequence,
		Counters:        stats.Counters(),
		LastActivity:    stats.LastActivity,
	}
}

// LinkID returns the configured link id.
func (s *Service) LinkID() string {
	return s.cfg.ID
}

// Reconnects returns how many times the channel was re-established.
func (s *Service) Reconnects() uint64 {
	return s.reconnects.Load()
}

// SetLogger sets the logger for this service.
func (s *Service) SetLogger(logger Logger) {
	s.loggerMu.Lock()
	s.logger = logger
	s.loggerMu.Unlock()
}

func (s *Service) getLogger() Logger {
	s.loggerMu.RLock()
	defer s.loggerMu.RUnlock()
	return s.logger
}

func (s *Service) logDebug(msg string, keysAndValues ...any) {
	if l := s.getLogger(); l != nil {
		l.Debug(msg, keysAndValues...)
	}
}

func (s *Service) logInfo(msg string, keysAndValues ...any) {
	if l := s.getLogger(); l != nil {
		l.Info(msg, keysAndValues...)
	}
}

func (s *Service) logWarn(msg string, keysAndValues ...any) {
	if l := s.getLogger(); l != nil {
		l.Warn(msg, keysAndValues...)
	}
}

func (s *Service) logError(msg string, err error, keysAndValues ...any) {
	if l := s.getLogger(); l != nil {
		l.Error(msg, append([]any{"error", err}, keysAndValues...)...)
	}
}

// nextDelay doubles d, capped at limit when limit is set and never below
// minReconnectDelay.
func nextDelay(d, limit time.Duration) time.Duration {
	d *= 2
	if limit > 0 && d > limit {
		d = limit
	}
	return max(d, minReconnectDelay)
}

// sleepContext waits for d or until ctx is done. It reports whether the
// full delay elapsed.
func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
