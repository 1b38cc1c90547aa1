package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-knxlink/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-knxlink/internal/infrastructure/logging"
)

// Event stream message types.
const (
	StreamEvent        = "event"
	StreamSubscribe    = "subscribe"
	StreamSubscribed   = "subscribed"
	StreamUnsubscribe  = "unsubscribe"
	StreamUnsubscribed = "unsubscribed"
	StreamPing         = "ping"
	StreamPong         = "pong"
	StreamError        = "error"

	// AllChannels matches every event channel.
	AllChannels = "*"
)

// outboxSize is the number of messages queued per subscriber before
// events are dropped for it.
const outboxSize = 256

// StreamMessage is one message on the event stream, in either direction.
//
// Events carry Channel, Time and Payload. Subscription requests and their
// replies carry ID and Channels.
type StreamMessage struct {
	Type     string          `json:"type"`
	ID       string          `json:"id,omitempty"`
	Channel  string          `json:"channel,omitempty"`
	Channels []string        `json:"channels,omitempty"`
	Time     *time.Time      `json:"time,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// Hub fans link events out to event stream subscribers. It satisfies
// link.Broadcaster.
type Hub struct {
	cfg    config.EventsConfig
	logger *logging.Logger

	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

// NewHub creates an event hub.
func NewHub(cfg config.EventsConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:    cfg,
		logger: logger,
		subs:   make(map[*subscriber]struct{}),
	}
}

// Broadcast encodes payload once and queues it for every subscriber of
// channel. Slow subscribers lose events rather than block the caller.
func (h *Hub) Broadcast(channel string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("encoding event failed", "channel", channel, "error", err)
		return
	}
	now := time.Now().UTC()
	data, err := json.Marshal(StreamMessage{Type: StreamEvent, Channel: channel, Time: &now, Payload: body})
	if err != nil {
		h.logger.Error("encoding event failed", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		if sub.wants(channel) {
			sub.deliver(data)
		}
	}
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close disconnects every subscriber. Their writers send a going-away
// close frame and release the connection.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[*subscriber]struct{})
	h.mu.Unlock()

	for sub := range subs {
		sub.close()
	}
}

func (h *Hub) add(sub *subscriber) {
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	n := len(h.subs)
	h.mu.Unlock()
	h.logger.Debug("event subscriber connected", "subscribers", n)
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	delete(h.subs, sub)
	n := len(h.subs)
	h.mu.Unlock()
	sub.close()
	h.logger.Debug("event subscriber disconnected", "subscribers", n)
}

// subscriber is one WebSocket connection and the channels it follows.
type subscriber struct {
	conn *websocket.Conn

	mu       sync.Mutex
	channels map[string]struct{}
	outbox   chan []byte
	closed   bool
}

func newSubscriber(conn *websocket.Conn, channels []string) *subscriber {
	sub := &subscriber{
		conn:     conn,
		channels: make(map[string]struct{}),
		outbox:   make(chan []byte, outboxSize),
	}
	sub.follow(channels, true)
	return sub
}

func (s *subscriber) wants(channel string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, all := s.channels[AllChannels]
	_, one := s.channels[channel]
	return all || one
}

func (s *subscriber) follow(channels []string, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range channels {
		if on {
			s.channels[ch] = struct{}{}
		} else {
			delete(s.channels, ch)
		}
	}
}

// deliver queues data unless the subscriber is closed or its outbox full.
func (s *subscriber) deliver(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.outbox <- data:
	default:
	}
}

func (s *subscriber) reply(msg StreamMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	s.deliver(data)
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.outbox)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The stream is read-only; browsers on other origins may watch it.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleEvents upgrades the request to an event stream. The channels
// query parameter (comma separated) sets the initial subscriptions.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("event stream upgrade failed", "error", err)
		return
	}

	var initial []string
	for _, ch := range strings.Split(r.URL.Query().Get("channels"), ",") {
		if ch = strings.TrimSpace(ch); ch != "" {
			initial = append(initial, ch)
		}
	}

	sub := newSubscriber(conn, initial)
	s.events.add(sub)

	go s.events.write(sub)
	go s.events.read(sub)
}

// read handles subscriber requests until the connection fails, then
// removes the subscriber.
func (h *Hub) read(sub *subscriber) {
	defer func() {
		h.remove(sub)
		sub.conn.Close()
	}()

	idle := time.Duration(h.cfg.PingInterval+h.cfg.PongTimeout) * time.Second
	extend := func(string) error { return sub.conn.SetReadDeadline(time.Now().Add(idle)) }

	sub.conn.SetReadLimit(int64(h.cfg.MaxMessageSize))
	_ = extend("") //nolint:errcheck // a failed deadline surfaces on the next read
	sub.conn.SetPongHandler(extend)

	for {
		_, data, err := sub.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("event stream read failed", "error", err)
			}
			return
		}
		_ = extend("") //nolint:errcheck // as above

		var msg StreamMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			sub.reply(StreamMessage{Type: StreamError, Error: "invalid JSON"})
			continue
		}

		switch msg.Type {
		case StreamSubscribe, StreamUnsubscribe:
			if len(msg.Channels) == 0 {
				sub.reply(StreamMessage{Type: StreamError, ID: msg.ID, Error: "channels required"})
				continue
			}
			sub.follow(msg.Channels, msg.Type == StreamSubscribe)
			done := StreamSubscribed
			if msg.Type == StreamUnsubscribe {
				done = StreamUnsubscribed
			}
			sub.reply(StreamMessage{Type: done, ID: msg.ID, Channels: msg.Channels})
		case StreamPing:
			sub.reply(StreamMessage{Type: StreamPong, ID: msg.ID})
		default:
			sub.reply(StreamMessage{Type: StreamError, ID: msg.ID, Error: "unknown message type " + msg.Type})
		}
	}
}

// write drains the outbox and pings the peer until the outbox is closed or
// a write fails.
func (h *Hub) write(sub *subscriber) {
	ticker := time.NewTicker(time.Duration(h.cfg.PingInterval) * time.Second)
	defer func() {
		ticker.Stop()
		sub.conn.Close()
	}()

	wait := time.Duration(h.cfg.PongTimeout) * time.Second
	for {
		select {
		case data, ok := <-sub.outbox:
			deadline := time.Now().Add(wait)
			if !ok {
				//nolint:errcheck // the connection is closed right after
				sub.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), deadline)
				return
			}
			_ = sub.conn.SetWriteDeadline(deadline) //nolint:errcheck // a failed deadline surfaces on write
			if err := sub.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := sub.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wait)); err != nil {
				return
			}
		}
	}
}
