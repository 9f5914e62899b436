// Package sensor holds the pipeline heads: producers that sample a physical
// quantity on a schedule and the readers they sample.
package sensor

import (
	"math"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/itohio/sensepipe/pkg/param"
	"github.com/itohio/sensepipe/pkg/pipeline"
)

var (
	// ErrInterval is returned for a non-positive read delay.
	ErrInterval = errors.New("sensor: read delay must be positive")
	// ErrNoReading is returned when the underlying device has nothing to offer.
	ErrNoReading = errors.New("sensor: no reading available")
	// ErrStale is returned when the latest reading is older than allowed.
	ErrStale = errors.New("sensor: reading is stale")
)

// KeyReadDelay is the producer's sampling period parameter, in milliseconds.
const KeyReadDelay = "read_delay"

// MaxReadDelay bounds the sampling period.
const MaxReadDelay = 24 * time.Hour

// FaultPolicy decides what a producer emits on a failed read.
type FaultPolicy int

const (
	// SkipTick emits nothing for the failed tick.
	SkipTick FaultPolicy = iota
	// RepeatLast re-emits the last good value, if there is one.
	RepeatLast
)

func (p FaultPolicy) String() string {
	switch p {
	case SkipTick:
		return "skip"
	case RepeatLast:
		return "repeat"
	}
	return "unknown"
}

// ParseFaultPolicy accepts "skip" or "repeat". An empty string is SkipTick.
func ParseFaultPolicy(s string) (FaultPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "skip":
		return SkipTick, nil
	case "repeat":
		return RepeatLast, nil
	}
	return SkipTick, errors.Errorf("unknown fault policy %q", s)
}

// Reader samples one value from a device.
type Reader[T pipeline.Number] interface {
	Read() (T, error)
}

// ReadFunc adapts a function to Reader.
type ReadFunc[T pipeline.Number] func() (T, error)

// Read calls f.
func (f ReadFunc[T]) Read() (T, error) { return f() }

// Producer is a pipeline head that reads a value every read delay and emits
// it downstream.
type Producer[T pipeline.Number] struct {
	pipeline.Emitter[T]

	path   string
	delay  *param.Param
	reader Reader[T]
	policy FaultPolicy

	last    T
	hasLast bool
	faults  int
	log     *log.Entry
}

var (
	_ pipeline.Source[float32] = (*Producer[float32])(nil)
	_ pipeline.Ticker          = (*Producer[float32])(nil)
)

// NewProducer registers read_delay under path with delay as its default.
func NewProducer[T pipeline.Number](store *param.Store, path string, delay time.Duration, policy FaultPolicy, r Reader[T]) (*Producer[T], error) {
	if delay <= 0 || delay > MaxReadDelay {
		return nil, errors.Wrapf(ErrInterval, "%s: %s", path, delay)
	}
	if r == nil {
		return nil, errors.Errorf("%s: nil reader", path)
	}

	g, err := store.Node(path)
	if err != nil {
		return nil, err
	}
	ms := float64(delay) / float64(time.Millisecond)
	d, err := g.Register(KeyReadDelay, "Read delay (ms)", ms, param.Finite, param.Positive,
		param.Range(0, float64(MaxReadDelay/time.Millisecond)))
	if err != nil {
		return nil, err
	}

	return &Producer[T]{
		path:   path,
		delay:  d,
		reader: r,
		policy: policy,
		log:    log.WithField("path", path),
	}, nil
}

// Path returns the configuration path.
func (p *Producer[T]) Path() string { return p.path }

// Interval returns the read delay currently in force.
func (p *Producer[T]) Interval() time.Duration {
	return time.Duration(p.delay.Value() * float64(time.Millisecond))
}

// Policy returns the fault policy.
func (p *Producer[T]) Policy() FaultPolicy { return p.policy }

// Faults returns the number of consecutive failed reads.
func (p *Producer[T]) Faults() int { return p.faults }

// Tick reads once and emits the result, or applies the fault policy.
func (p *Producer[T]) Tick() {
	v, err := p.reader.Read()
	if err == nil && (math.IsNaN(float64(v)) || math.IsInf(float64(v), 0)) {
		err = errors.Wrapf(ErrNoReading, "non-finite value %v", v)
	}
	if err != nil {
		p.fault(err)
		return
	}

	if p.faults > 0 {
		p.log.WithField("faults", p.faults).Info("sensor recovered")
	}
	p.faults = 0
	p.last, p.hasLast = v, true
	p.Emit(v)
}

func (p *Producer[T]) fault(err error) {
	p.faults++
	entry := p.log.WithFields(log.Fields{"faults": p.faults, "policy": p.policy})
	// Warn once per run of failures.
	if p.faults == 1 {
		entry.Warnf("read failed: %v", err)
	} else {
		entry.Debugf("read failed: %v", err)
	}

	if p.policy == RepeatLast && p.hasLast {
		p.Emit(p.last)
	}
}
