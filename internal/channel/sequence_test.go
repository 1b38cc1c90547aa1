package channel

import "testing"

// reset places both counters mid-stream for table setup.
func (s *Sequencer) reset(send, recv uint8) {
	s.mu.Lock()
	s.send, s.recv = send, recv
	s.mu.Unlock()
}

func TestSequencerClassify(t *testing.T) {
	tests := []struct {
		name string
		recv uint8
		seq  uint8
		want Verdict
	}{
		{"expected", 5, 5, SeqExpected},
		{"duplicate", 5, 4, SeqDuplicate},
		{"two behind", 5, 3, SeqOutOfOrder},
		{"ahead", 5, 6, SeqOutOfOrder},
		{"expected at zero", 0, 0, SeqExpected},
		{"duplicate across wrap", 0, 255, SeqDuplicate},
		{"expected at wrap", 255, 255, SeqExpected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s Sequencer
			s.reset(0, tt.recv)
			if got := s.Classify(tt.seq); got != tt.want {
				t.Errorf("Classify(%d) with recv %d = %s, want %s", tt.seq, tt.recv, got, tt.want)
			}
		})
	}
}

func TestSequencerWraps(t *testing.T) {
	var s Sequencer
	for i := 0; i < 600; i++ {
		seq := uint8(i % 256)
		if v := s.Classify(seq); v != SeqExpected {
			t.Fatalf("frame %d: Classify(%d) = %s, want expected", i, seq, v)
		}
		s.AdvanceReceive()

		if !s.AckSend(seq) {
			t.Fatalf("frame %d: AckSend(%d) rejected", i, seq)
		}
	}
	if got := s.Receive(); got != 600%256 {
		t.Errorf("Receive() = %d, want %d", got, 600%256)
	}
	if got := s.NextSend(); got != 600%256 {
		t.Errorf("NextSend() = %d, want %d", got, 600%256)
	}
}

func TestSequencerAckSendIgnoresStale(t *testing.T) {
	var s Sequencer
	s.reset(10, 0)
	if s.AckSend(9) {
		t.Error("AckSend(9) advanced with send sequence 10")
	}
	if s.NextSend() != 10 {
		t.Errorf("NextSend() = %d, want 10", s.NextSend())
	}
}
