// Package adc provides raw ADC sources: the serial link to the rudder sensor
// MCU and a simulated device for development.
package adc

// Device defines the interface for ADC devices (real or mocked).
type Device interface {
	Connect() error
	Close() error
	Latest() (RawSample, bool)
	MaxRaw() uint16
	IsConnected() bool
}

// Ensure Serial implements Device.
var _ Device = (*Serial)(nil)

// Ensure Mock implements Device.
var _ Device = (*Mock)(nil)
