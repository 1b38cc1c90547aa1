package channel

import "sync"

// Verdict classifies the sequence number of an inbound request.
type Verdict int

// Sequence verdicts.
const (
	// SeqExpected: the frame is new and must be acknowledged and delivered.
	SeqExpected Verdict = iota

	// SeqDuplicate: the previous frame was repeated because our ack was
	// lost. The ack is repeated; the payload is not delivered again.
	SeqDuplicate

	// SeqOutOfOrder: any other sequence number. The frame is ignored.
	SeqOutOfOrder
)

// String returns the verdict name.
func (v Verdict) String() string {
	switch v {
	case SeqExpected:
		return "expected"
	case SeqDuplicate:
		return "duplicate"
	case SeqOutOfOrder:
		return "out-of-order"
	default:
		return "unknown"
	}
}

// Sequencer holds the modulo-256 send and receive counters of a channel.
// The zero value starts both counters at 0.
//
// All methods are safe for concurrent use.
type Sequencer struct {
	mu   sync.Mutex
	send uint8
	recv uint8
}

// NextSend returns the sequence number for the next outbound request.
func (s *Sequencer) NextSend() uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.send
}

// AckSend advances the send counter if seq acknowledges the current
// outbound request. It reports whether the counter moved.
func (s *Sequencer) AckSend(seq uint8) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.send {
		return false
	}
	s.send++
	return true
}

// Receive returns the sequence number expected for the next inbound request.
func (s *Sequencer) Receive() uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recv
}

// Classify validates the sequence number of an inbound request.
func (s *Sequencer) Classify(seq uint8) Verdict {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch seq {
	case s.recv:
		return SeqExpected
	case s.recv - 1:
		return SeqDuplicate
	default:
		return SeqOutOfOrder
	}
}

// AdvanceReceive moves the receive counter past an accepted request.
func (s *Sequencer) AdvanceReceive() {
	s.mu.Lock()
	s.recv++
	s.mu.Unlock()
}
