package sensor

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// DefaultW1Root is where the Linux w1 bus exposes its slaves.
const DefaultW1Root = "/sys/bus/w1/devices"

// powerOnReset is what a DS18B20 reports before its first conversion.
const powerOnReset = 85000

// OneWire reads a DS18B20 style thermometer through the Linux w1 sysfs
// interface and reports Kelvin.
type OneWire struct {
	path string
}

// NewOneWire reads from path, either a device's "temperature" attribute
// (millidegrees Celsius) or its "w1_slave" dump. A directory means its
// "temperature" file.
func NewOneWire(path string) *OneWire {
	if fi, err := os.Stat(path); err == nil && fi.IsDir() {
		path = filepath.Join(path, "temperature")
	}
	return &OneWire{path: path}
}

// DiscoverOneWire returns the temperature sensor directories under root,
// sorted by ROM id.
func DiscoverOneWire(root string) ([]string, error) {
	if root == "" {
		root = DefaultW1Root
	}
	// Family 28 is the DS18B20.
	matches, err := filepath.Glob(filepath.Join(root, "28-*"))
	if err != nil {
		return nil, errors.Wrap(err, "sensor: discover w1 devices")
	}
	sort.Strings(matches)
	return matches, nil
}

// File returns the sysfs file being read.
func (o *OneWire) File() string { return o.path }

// Read returns the temperature in Kelvin.
func (o *OneWire) Read() (float64, error) {
	data, err := os.ReadFile(o.path)
	if err != nil {
		return 0, errors.Wrapf(ErrNoReading, "%s: %v", o.path, err)
	}
	milli, err := parseW1(string(data))
	if err != nil {
		return 0, errors.Wrap(err, o.path)
	}
	return float64(milli)/1000 + 273.15, nil
}

// parseW1 returns the temperature in millidegrees Celsius.
//
// w1_slave looks like:
//
//	72 01 4b 46 7f ff 0e 10 57 : crc=57 YES
//	72 01 4b 46 7f ff 0e 10 57 t=23125
func parseW1(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrNoReading
	}

	raw := s
	if lines := strings.Split(s, "\n"); len(lines) > 1 || strings.Contains(s, "t=") {
		if len(lines) < 2 {
			return 0, errors.Wrap(ErrNoReading, "truncated w1_slave")
		}
		if !strings.HasSuffix(strings.TrimSpace(lines[0]), "YES") {
			return 0, errors.Wrap(ErrNoReading, "crc check failed")
		}
		i := strings.LastIndex(lines[1], "t=")
		if i < 0 {
			return 0, errors.Wrap(ErrNoReading, "missing t= field")
		}
		raw = strings.TrimSpace(lines[1][i+2:])
	}

	milli, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(ErrNoReading, "invalid temperature %q", raw)
	}
	if milli == powerOnReset {
		return 0, errors.Wrap(ErrNoReading, "power-on reset value")
	}
	return milli, nil
}
