// Package sink holds the pipeline tail: output nodes that hand values to a
// telemetry publisher, and the publishers themselves.
package sink

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/itohio/sensepipe/pkg/pipeline"
)

// Metadata describes a published value. It is fixed at construction.
type Metadata struct {
	units string
	label string
}

// NewMetadata returns metadata with the given units and display label.
func NewMetadata(units, label string) Metadata {
	return Metadata{units: units, label: label}
}

// Units returns the unit string, e.g. "rad" or "K".
func (m Metadata) Units() string { return m.units }

// Label returns the display label.
func (m Metadata) Label() string { return m.label }

// IsZero reports whether m carries no information.
func (m Metadata) IsZero() bool { return m.units == "" && m.label == "" }

// Publisher delivers values to a telemetry consumer. Publish must not block
// and reports its own failures; the calling pipeline keeps ticking.
type Publisher interface {
	Publish(path string, value float64, meta Metadata)
}

// Output is the terminal node of a pipeline. It publishes every value it
// receives, unchanged, under its telemetry path.
type Output[T pipeline.Number] struct {
	path    string
	skPath  string
	meta    Metadata
	publish Publisher
}

var _ pipeline.Consumer[float32] = (*Output[float32])(nil)

// NewOutput returns an output at configuration path publishing to skPath.
func NewOutput[T pipeline.Number](path, skPath string, meta Metadata, pub Publisher) (*Output[T], error) {
	if skPath == "" {
		return nil, errors.Errorf("sink: %s: empty telemetry path", path)
	}
	if pub == nil {
		return nil, errors.Errorf("sink: %s: nil publisher", path)
	}
	return &Output[T]{path: path, skPath: skPath, meta: meta, publish: pub}, nil
}

// Path returns the configuration path.
func (o *Output[T]) Path() string { return o.path }

// TelemetryPath returns the path values are published under.
func (o *Output[T]) TelemetryPath() string { return o.skPath }

// Metadata returns the metadata attached to every value.
func (o *Output[T]) Metadata() Metadata { return o.meta }

// Accept publishes v.
func (o *Output[T]) Accept(v T) {
	o.publish.Publish(o.skPath, float64(v), o.meta)
}

// Multi publishes to every publisher in order.
type Multi []Publisher

// Publish fans the value out.
func (m Multi) Publish(path string, value float64, meta Metadata) {
	for _, p := range m {
		p.Publish(path, value, meta)
	}
}

// Logger publishes by logging at debug level.
type Logger struct {
	entry *log.Entry
}

// NewLogger logs through entry, or the standard logger if nil.
func NewLogger(entry *log.Entry) *Logger {
	if entry == nil {
		entry = log.NewEntry(log.StandardLogger())
	}
	return &Logger{entry: entry}
}

// Publish logs the value.
func (l *Logger) Publish(path string, value float64, meta Metadata) {
	l.entry.WithFields(log.Fields{
		"sk_path": path,
		"value":   value,
		"units":   meta.Units(),
	}).Debug("publish")
}
