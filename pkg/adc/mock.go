package adc

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// MockConfig shapes the simulated rudder sweep.
type MockConfig struct {
	MaxRaw     uint16        // Full scale ADC count
	Amplitude  float64       // Sweep amplitude as a fraction of half scale (0..1)
	Period     time.Duration // Time for one port-starboard-port sweep
	NoiseLevel float64       // Noise amplitude in counts
	SampleRate time.Duration // Conversion interval
}

// DefaultMockConfig is a slow ±80% sweep of a 10-bit ADC.
func DefaultMockConfig() MockConfig {
	return MockConfig{
		MaxRaw:     DefaultMaxRaw,
		Amplitude:  0.8,
		Period:     20 * time.Second,
		NoiseLevel: 2,
		SampleRate: 50 * time.Millisecond,
	}
}

// Mock simulates a potentiometer on a rudder stock swinging between the
// stops.
type Mock struct {
	cfg MockConfig

	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	connected bool
	startTime time.Time
	latest    RawSample
	hasSample bool
	now       func() time.Time
}

// NewMock creates a new mocked device instance.
func NewMock(cfg MockConfig) *Mock {
	def := DefaultMockConfig()
	if cfg.MaxRaw == 0 {
		cfg.MaxRaw = def.MaxRaw
	}
	if cfg.Period <= 0 {
		cfg.Period = def.Period
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = def.SampleRate
	}

	return &Mock{cfg: cfg, now: time.Now}
}

// Connect starts generating samples.
func (m *Mock) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connected {
		return errors.New("already connected")
	}

	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.connected = true
	m.startTime = m.now()
	m.latest = m.sampleAt(m.startTime)
	m.hasSample = true

	go m.generateSamples(m.ctx)

	return nil
}

// Close stops the mocked device.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return nil
	}

	m.cancel()
	m.connected = false
	return nil
}

// Latest returns the most recent simulated sample.
func (m *Mock) Latest() (RawSample, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest, m.hasSample
}

// MaxRaw returns the full scale ADC count.
func (m *Mock) MaxRaw() uint16 { return m.cfg.MaxRaw }

// IsConnected returns whether the device is currently connected.
func (m *Mock) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

func (m *Mock) generateSamples(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.SampleRate)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.Lock()
			m.latest = m.sampleAt(m.now())
			m.mu.Unlock()
		}
	}
}

// sampleAt computes the simulated conversion at t. Callers hold mu.
func (m *Mock) sampleAt(t time.Time) RawSample {
	elapsed := t.Sub(m.startTime).Seconds()
	phase := 2 * math.Pi * elapsed / m.cfg.Period.Seconds()

	half := float64(m.cfg.MaxRaw) / 2
	value := half + half*m.cfg.Amplitude*math.Sin(phase)

	// Deterministic wobble rather than random noise so runs are repeatable.
	value += m.cfg.NoiseLevel * math.Sin(phase*37)

	if value < 0 {
		value = 0
	} else if value > float64(m.cfg.MaxRaw) {
		value = float64(m.cfg.MaxRaw)
	}

	return RawSample{
		Timestamp: t,
		Device:    t,
		Raw:       uint16(math.Round(value)),
	}
}
