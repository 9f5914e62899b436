package adc

import (
	"bufio"
	"context"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

const (
	// DefaultBaudRate matches the firmware UART.
	DefaultBaudRate = 115200
	// DefaultMaxRaw is full scale of a 10-bit ADC.
	DefaultMaxRaw = 1023
)

// RawSample is one ADC conversion reported by the MCU. Timestamp is the host
// receive time; Device is the MCU clock, which is not synchronised.
type RawSample struct {
	Timestamp time.Time
	Device    time.Time
	Raw       uint16
}

// Port represents a serial port.
type Port struct {
	Name        string
	Description string
}

// Serial reads ADC samples streamed by the firmware over a serial port and
// keeps the most recent one.
type Serial struct {
	port     string
	baudRate int
	maxRaw   uint16

	conn      serial.Port
	latest    RawSample
	hasSample bool
	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	connected bool
}

// New creates a Serial device for port. Zero values select defaults.
func New(port string, baudRate int, maxRaw uint16) *Serial {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	if maxRaw == 0 {
		maxRaw = DefaultMaxRaw
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Serial{
		port:     port,
		baudRate: baudRate,
		maxRaw:   maxRaw,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Ports returns a list of available serial ports.
func Ports() ([]Port, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, errors.Wrap(err, "failed to list serial ports")
	}

	result := make([]Port, 0, len(ports))
	for _, name := range ports {
		result = append(result, Port{Name: name, Description: name})
	}
	return result, nil
}

// Connect opens the serial port and starts reading samples.
func (d *Serial) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected {
		return errors.New("already connected")
	}

	port, err := serial.Open(d.port, &serial.Mode{BaudRate: d.baudRate})
	if err != nil {
		return errors.Wrapf(err, "failed to open serial port %s", d.port)
	}

	d.conn = port
	d.connected = true

	go d.readSamples(port)

	return nil
}

// Close closes the port and stops reading.
func (d *Serial) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return nil
	}

	d.cancel()

	if d.conn != nil {
		if err := d.conn.Close(); err != nil {
			log.WithField("port", d.port).Errorf("error closing serial port: %v", err)
		}
		d.conn = nil
	}

	d.connected = false
	return nil
}

// Latest returns the most recent sample, if any was received.
func (d *Serial) Latest() (RawSample, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.latest, d.hasSample
}

// MaxRaw returns the full scale ADC count.
func (d *Serial) MaxRaw() uint16 { return d.maxRaw }

// IsConnected returns whether the port is open.
func (d *Serial) IsConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connected
}

func (d *Serial) readSamples(r io.Reader) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Errorf("panic in serial reader: %v", rec)
		}
	}()

	d.consume(r)
}

// consume parses lines from r until EOF, an error or Close.
func (d *Serial) consume(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		select {
		case <-d.ctx.Done():
			return
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		sample, err := parseLine(line, d.maxRaw)
		if err != nil {
			log.WithField("port", d.port).Debugf("failed to parse line %q: %v", line, err)
			continue
		}

		d.mu.Lock()
		d.latest = sample
		d.hasSample = true
		d.mu.Unlock()
	}
	if err := scanner.Err(); err != nil && d.ctx.Err() == nil {
		log.WithField("port", d.port).Errorf("error reading from serial port: %v", err)
	}
}

// parseLine parses a firmware line into a RawSample.
// Format: unix_micros,raw
// Example: 1234567890123,512
func parseLine(line string, maxRaw uint16) (RawSample, error) {
	parts := strings.Split(line, ",")
	if len(parts) != 2 {
		return RawSample{}, errors.Errorf("invalid line format: expected 2 comma-separated values, got %d", len(parts))
	}

	micros, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return RawSample{}, errors.Wrap(err, "invalid timestamp")
	}

	raw, err := strconv.ParseUint(parts[1], 10, 16)
	if err != nil {
		return RawSample{}, errors.Wrap(err, "invalid reading")
	}
	if raw > uint64(maxRaw) {
		return RawSample{}, errors.Errorf("reading out of range: %d (max %d)", raw, maxRaw)
	}

	return RawSample{
		Timestamp: time.Now(),
		Device:    time.Unix(0, micros*1000),
		Raw:       uint16(raw),
	}, nil
}
