package link

import (
	"context"
	"time"

	"github.com/nerrad567/gray-logic-knxlink/internal/channel"
	"github.com/nerrad567/gray-logic-knxlink/internal/infrastructure/influxdb"
)

// reportLoop publishes health and writes a statistics sample at the
// health interval.
func (s *Service) reportLoop(ctx context.Context) {
	ticker := time.NewTicker(s.healthInterval)
	defer ticker.Stop()

	s.report()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.report()
		}
	}
}

func (s *Service) report() {
	status, reason := s.determineStatus()
	s.publishHealth(status, reason)

	if s.telemetry == nil {
		return
	}
	s.mu.RLock()
	sess := s.current
	s.mu.RUnlock()
	if sess != nil {
		s.telemetry.WriteChannelSample(s.sample(sess, sess.ch.Stats(), time.Now()))
	}
}

// determineStatus evaluates the current link status.
func (s *Service) determineStatus() (HealthStatus, string) {
	if s.bus != nil && !s.bus.IsConnected() {
		return HealthDegraded, "MQTT disconnected"
	}

	s.mu.RLock()
	sess := s.current
	s.mu.RUnlock()
	if sess == nil || sess.ch.State() != channel.StateOpen {
		return HealthDegraded, "channel not open"
	}

	return HealthHealthy, ""
}

// Health returns the current health message without publishing it.
func (s *Service) Health() HealthMessage {
	status, reason := s.determineStatus()
	return s.healthMessage(status, reason)
}

func (s *Service) healthMessage(status HealthStatus, reason string) HealthMessage {
	return HealthMessage{
		Link:          s.cfg.ID,
		Timestamp:     time.Now().UTC(),
		Status:        status,
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Reconnects:    s.reconnects.Load(),
		Channel:       s.Status(),
		Reason:        reason,
	}
}

// publishHealth publishes a retained health message (best-effort).
func (s *Service) publishHealth(status HealthStatus, reason string) {
	s.publish(outbound{
		topic:    s.topics.Health(s.cfg.ID),
		kind:     topicHealth,
		payload:  s.healthMessage(status, reason),
		retained: true,
	})
}

// sample converts channel statistics into an InfluxDB sample.
func (s *Service) sample(sess *session, stats channel.Stats, at time.Time) influxdb.ChannelSample {
	return influxdb.ChannelSample{
		LinkID:          s.cfg.ID,
		Protocol:        stats.Protocol,
		Transport:       s.cfg.Transport,
		Session:         sess.id,
		State:           stats.State.String(),
		ChannelID:       stats.ChannelID,
		SendSequence:    stats.SendSequence,
		ReceiveSequence: stats.ReceiveSequence,
		Counters:        stats.Counters(),
		At:              at,
	}
}
