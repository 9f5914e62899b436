package sensor

import (
	"time"

	"github.com/pkg/errors"

	"github.com/itohio/sensepipe/pkg/adc"
)

// AnalogInput reads the latest ADC conversion and scales it to
// raw/max_raw*scale, e.g. volts for a 3.3 V reference.
type AnalogInput struct {
	dev    adc.Device
	scale  float32
	maxAge time.Duration
	now    func() time.Time
}

// NewAnalogInput wraps dev. A zero maxAge disables the staleness check.
func NewAnalogInput(dev adc.Device, scale float32, maxAge time.Duration) *AnalogInput {
	return &AnalogInput{dev: dev, scale: scale, maxAge: maxAge, now: time.Now}
}

// Read returns the scaled latest sample.
func (a *AnalogInput) Read() (float32, error) {
	s, ok := a.dev.Latest()
	if !ok {
		return 0, ErrNoReading
	}
	if a.maxAge > 0 {
		if age := a.now().Sub(s.Timestamp); age > a.maxAge {
			return 0, errors.Wrapf(ErrStale, "sample is %s old", age.Round(time.Millisecond))
		}
	}

	full := a.dev.MaxRaw()
	if full == 0 {
		return 0, errors.New("sensor: device full scale is zero")
	}
	return float32(s.Raw) / float32(full) * a.scale, nil
}
