package device

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"sleepywoodpecker/ppg-scope/internal/packet"
)

const (
	SimulatedServiceID        = "4fafc201-1fb5-459e-8fcc-c5c9c331914b"
	SimulatedCharacteristicID = "beb5483e-36e1-4688-b7f5-ea07361b26a8"

	// the sensor sends 10 sub-samples at 120 Hz per packet
	simSampleRate  = 120.0
	simPacketEvery = time.Second * packet.SubSamples / 120
)

// Simulator produces a pulse-like optical waveform at the sensor's packet rate. Reads between
// packets come back empty, as they do on the real link.
type Simulator struct {
	mu        sync.Mutex
	connected bool
	hrBPM     float64
	phase     float64
	seq       uint8
	next      time.Time
	now       func() time.Time
}

func NewSimulator(hrBPM float64) *Simulator {
	if hrBPM <= 0 {
		hrBPM = 72
	}
	return &Simulator{
		hrBPM: hrBPM,
		now:   time.Now,
	}
}

func (s *Simulator) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = true
	s.next = s.now()
	return nil
}

func (s *Simulator) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	return nil
}

func (s *Simulator) ListServices() ([]Service, error) {
	return []Service{{
		UUID:            SimulatedServiceID,
		Characteristics: []string{SimulatedCharacteristicID},
	}}, nil
}

func (s *Simulator) ReadCharacteristic(ctx context.Context, serviceID, charID string) ([]byte, error) {
	if serviceID != SimulatedServiceID || charID != SimulatedCharacteristicID {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnknownCharacteristic, serviceID, charID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return nil, ErrNotConnected
	}
	if s.now().Before(s.next) {
		return nil, nil
	}
	s.next = s.next.Add(simPacketEvery)

	return packet.Encode(s.nextSample()), nil
}

func (s *Simulator) nextSample() packet.Sample {
	sample := packet.Sample{
		T1:      s.seq,
		T2:      packet.SubSamples,
		BeatAvg: int32(math.Round(s.hrBPM)),
	}
	s.seq++

	cycleHz := s.hrBPM / 60.0
	for i := 0; i < packet.SubSamples; i++ {
		s.phase += cycleHz / simSampleRate
		if s.phase >= 1.0 {
			s.phase -= 1.0
		}
		pulse := pulseShape(s.phase)
		sample.Red[i] = uint16(2000 + 400*pulse)
		sample.IR[i] = uint16(3000 + 650*pulse)
	}
	return sample
}

// pulseShape is a systolic peak followed by a smaller dicrotic wave, in [0, 1].
func pulseShape(t float64) float64 {
	systolic := gauss(t, 0.20, 0.06)
	dicrotic := 0.35 * gauss(t, 0.45, 0.08)
	return math.Min(1, systolic+dicrotic)
}

func gauss(x, mu, sigma float64) float64 {
	z := (x - mu) / sigma
	return math.Exp(-0.5 * z * z)
}
