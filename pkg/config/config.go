package config

import (
	"math"
	"os"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/itohio/sensepipe/pkg/sensor"
)

// Config represents the daemon configuration. Tunable pipeline parameters
// (calibration points, read delays) live in the parameter file instead.
type Config struct {
	Hostname   string          `yaml:"hostname"`
	LogLevel   string          `yaml:"log_level"`
	ParamsFile string          `yaml:"params_file"`
	Telemetry  TelemetryConfig `yaml:"telemetry"`
	Rudder     RudderConfig    `yaml:"rudder"`
	Bilge      BilgeConfig     `yaml:"bilge"`
}

// TelemetryConfig selects the publishers.
type TelemetryConfig struct {
	SignalK    SignalKConfig    `yaml:"signalk"`
	Prometheus PrometheusConfig `yaml:"prometheus"`
	Log        bool             `yaml:"log"` // Log every published value at debug level
}

// SignalKConfig contains the Signal K server connection.
type SignalKConfig struct {
	Enabled    bool   `yaml:"enabled"`
	URL        string `yaml:"url"`
	Token      string `yaml:"token"`
	BufferSize int    `yaml:"buffer_size"` // Pending updates kept while disconnected
}

// PrometheusConfig contains the metrics endpoint. An empty listen address
// disables it.
type PrometheusConfig struct {
	Listen string `yaml:"listen"`
}

// SerialConfig contains serial port configuration.
type SerialConfig struct {
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`
}

// RudderConfig describes the rudder angle pipeline.
type RudderConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Mock          bool          `yaml:"mock"`
	Serial        SerialConfig  `yaml:"serial"`
	ADCMax        uint16        `yaml:"adc_max"`
	OutputScale   float64       `yaml:"output_scale"` // Full scale of the analog input, e.g. 3.3 V
	ReadDelay     time.Duration `yaml:"read_delay"`   // Default, overridden by the parameter file
	MaxAge        time.Duration `yaml:"max_age"`      // Samples older than this are a read fault
	FaultPolicy   string        `yaml:"fault_policy"` // skip or repeat
	ConfigPath    string        `yaml:"config_path"`
	TransformPath string        `yaml:"transform_path"`
	OutputPath    string        `yaml:"output_path"`
	SKPath        string        `yaml:"sk_path"`
}

// BilgeConfig describes the bilge temperature pipeline.
type BilgeConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Device      string        `yaml:"device"` // w1 sysfs device or file, empty to discover
	ReadDelay   time.Duration `yaml:"read_delay"`
	FaultPolicy string        `yaml:"fault_policy"`
	ConfigPath  string        `yaml:"config_path"`
	LinearPath  string        `yaml:"linear_path"`
	OutputPath  string        `yaml:"output_path"`
	SKPath      string        `yaml:"sk_path"`
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Hostname:   "rudderAngleSensor",
		LogLevel:   "info",
		ParamsFile: "params.yaml",
		Telemetry: TelemetryConfig{
			SignalK: SignalKConfig{
				Enabled:    true,
				URL:        "ws://192.168.5.1:3000/signalk/v1/stream?subscribe=none",
				BufferSize: 64,
			},
			Prometheus: PrometheusConfig{
				Listen: ":8080",
			},
		},
		Rudder: RudderConfig{
			Enabled: true,
			Serial: SerialConfig{
				Port:     "/dev/ttyUSB0",
				BaudRate: 115200,
			},
			ADCMax:        1023,
			OutputScale:   3.3,
			ReadDelay:     500 * time.Millisecond,
			MaxAge:        2 * time.Second,
			FaultPolicy:   "skip",
			ConfigPath:    "/steering/rudderAngle",
			TransformPath: "/Transforms/Angle Transform",
			OutputPath:    "/steering/rudderAngle/skPath",
			SKPath:        "steering.rudderAngle",
		},
		Bilge: BilgeConfig{
			Enabled:     true,
			ReadDelay:   10 * time.Second,
			FaultPolicy: "skip",
			ConfigPath:  "/aftBilgeTemperature/oneWire",
			LinearPath:  "/aftBilgeTemperature/linear",
			OutputPath:  "/aftBilgeTemperature/skPath",
			SKPath:      "environment.inside.aftBilge.temperature",
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, errors.Wrap(err, "failed to read config file")
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	cfg.ensureDefaults()

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return errors.Wrap(err, "failed to write config file")
	}

	return nil
}

// ensureDefaults fills fields a partial file left empty.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Hostname == "" {
		c.Hostname = def.Hostname
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.ParamsFile == "" {
		c.ParamsFile = def.ParamsFile
	}
	if c.Telemetry.SignalK.BufferSize == 0 {
		c.Telemetry.SignalK.BufferSize = def.Telemetry.SignalK.BufferSize
	}

	r, dr := &c.Rudder, def.Rudder
	if r.Serial.BaudRate == 0 {
		r.Serial.BaudRate = dr.Serial.BaudRate
	}
	if r.ADCMax == 0 {
		r.ADCMax = dr.ADCMax
	}
	if r.OutputScale == 0 {
		r.OutputScale = dr.OutputScale
	}
	if r.ReadDelay == 0 {
		r.ReadDelay = dr.ReadDelay
	}
	if r.FaultPolicy == "" {
		r.FaultPolicy = dr.FaultPolicy
	}
	fill(&r.ConfigPath, dr.ConfigPath)
	fill(&r.TransformPath, dr.TransformPath)
	fill(&r.OutputPath, dr.OutputPath)
	fill(&r.SKPath, dr.SKPath)

	b, db := &c.Bilge, def.Bilge
	if b.ReadDelay == 0 {
		b.ReadDelay = db.ReadDelay
	}
	if b.FaultPolicy == "" {
		b.FaultPolicy = db.FaultPolicy
	}
	fill(&b.ConfigPath, db.ConfigPath)
	fill(&b.LinearPath, db.LinearPath)
	fill(&b.OutputPath, db.OutputPath)
	fill(&b.SKPath, db.SKPath)
}

func fill(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}

// Validate reports the first setting the daemon cannot run with.
func (c *Config) Validate() error {
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrap(err, "log_level")
	}
	if c.Telemetry.SignalK.Enabled && c.Telemetry.SignalK.URL == "" {
		return errors.New("telemetry.signalk.url: required when enabled")
	}

	if c.Rudder.Enabled {
		r := c.Rudder
		if !r.Mock && r.Serial.Port == "" {
			return errors.New("rudder.serial.port: required unless mock is set")
		}
		if r.ReadDelay <= 0 || r.ReadDelay > sensor.MaxReadDelay {
			return errors.Errorf("rudder.read_delay: must be within (0, %s]", sensor.MaxReadDelay)
		}
		if r.MaxAge < 0 {
			return errors.New("rudder.max_age: must not be negative")
		}
		if math.IsNaN(r.OutputScale) || math.IsInf(r.OutputScale, 0) || r.OutputScale <= 0 {
			return errors.New("rudder.output_scale: must be a positive number")
		}
		if _, err := sensor.ParseFaultPolicy(r.FaultPolicy); err != nil {
			return errors.Wrap(err, "rudder.fault_policy")
		}
	}

	if c.Bilge.Enabled {
		if c.Bilge.ReadDelay <= 0 || c.Bilge.ReadDelay > sensor.MaxReadDelay {
			return errors.Errorf("bilge.read_delay: must be within (0, %s]", sensor.MaxReadDelay)
		}
		if _, err := sensor.ParseFaultPolicy(c.Bilge.FaultPolicy); err != nil {
			return errors.Wrap(err, "bilge.fault_policy")
		}
	}

	return c.checkPaths()
}

// checkPaths rejects two nodes sharing a configuration path, which would make
// their persisted parameters collide.
func (c *Config) checkPaths() error {
	seen := make(map[string]string)
	for name, path := range c.nodePaths() {
		if prev, ok := seen[path]; ok {
			a, b := prev, name
			if b < a {
				a, b = b, a
			}
			return errors.Errorf("%s and %s share configuration path %q", a, b, path)
		}
		seen[path] = name
	}
	return nil
}

func (c *Config) nodePaths() map[string]string {
	paths := make(map[string]string)
	if c.Rudder.Enabled {
		paths["rudder.config_path"] = c.Rudder.ConfigPath
		paths["rudder.transform_path"] = c.Rudder.TransformPath
		paths["rudder.output_path"] = c.Rudder.OutputPath
	}
	if c.Bilge.Enabled {
		paths["bilge.config_path"] = c.Bilge.ConfigPath
		paths["bilge.linear_path"] = c.Bilge.LinearPath
		paths["bilge.output_path"] = c.Bilge.OutputPath
	}
	return paths
}
