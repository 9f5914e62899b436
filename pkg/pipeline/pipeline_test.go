package pipeline

import (
	"math"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type source struct {
	Emitter[float64]
	path     string
	interval time.Duration
	next     float64
}

func (s *source) Path() string            { return s.path }
func (s *source) Interval() time.Duration { return s.interval }
func (s *source) Tick()                   { s.Emit(s.next) }

type double struct {
	Emitter[float64]
	path string
}

func (d *double) Path() string     { return d.path }
func (d *double) Accept(v float64) { d.Emit(v * 2) }

type recorder struct {
	path string
	got  []float64
}

func (r *recorder) Path() string     { return r.path }
func (r *recorder) Accept(v float64) { r.got = append(r.got, v) }

type fakeScheduler struct {
	fns       []func()
	intervals []time.Duration
}

func (f *fakeScheduler) Schedule(interval func() time.Duration, fn func()) {
	f.intervals = append(f.intervals, interval())
	f.fns = append(f.fns, fn)
}

func TestConnect_Chain(t *testing.T) {
	p := New("test")
	src := &source{path: "/src", interval: time.Second}
	out := &recorder{path: "/out"}

	assert.Equal(t, Unwired, p.State())
	d := Connect[float64](p, src, &double{path: "/double"})
	got := Connect[float64](p, d, out)
	require.NoError(t, p.Err())
	assert.Same(t, out, got)
	assert.Equal(t, Wired, p.State())

	src.next = 1.5
	src.Tick()
	assert.Equal(t, []float64{3}, out.got)
}

func TestEmit_FanOutIdentical(t *testing.T) {
	p := New("fanout")
	src := &source{path: "/src"}
	a := Connect[float64](p, src, &recorder{path: "/a"})
	b := Connect[float64](p, src, &recorder{path: "/b"})
	require.NoError(t, p.Err())
	assert.Equal(t, 2, src.Outputs())

	values := []float64{0.1 + 0.2, math.Pi, -0.0, math.SmallestNonzeroFloat64, math.MaxFloat64}
	for _, v := range values {
		src.next = v
		src.Tick()
	}

	require.Len(t, a.got, len(values))
	require.Len(t, b.got, len(values))
	for i := range values {
		assert.Equal(t, math.Float64bits(a.got[i]), math.Float64bits(b.got[i]))
		assert.Equal(t, math.Float64bits(values[i]), math.Float64bits(a.got[i]))
	}
}

func TestConnect_Cycle(t *testing.T) {
	t.Run("self", func(t *testing.T) {
		p := New("self")
		d := &double{path: "/d"}
		Connect[float64](p, d, d)
		assert.True(t, errors.Is(p.Err(), ErrCycle), "got %v", p.Err())
		assert.Equal(t, 0, d.Outputs())
	})

	t.Run("indirect", func(t *testing.T) {
		p := New("indirect")
		a := &double{path: "/a"}
		b := &double{path: "/b"}
		c := &double{path: "/c"}
		Connect[float64](p, a, b)
		Connect[float64](p, b, c)
		require.NoError(t, p.Err())

		Connect[float64](p, c, a)
		assert.True(t, errors.Is(p.Err(), ErrCycle), "got %v", p.Err())
		assert.Equal(t, 0, c.Outputs())
	})

	t.Run("diamond is not a cycle", func(t *testing.T) {
		p := New("diamond")
		src := &source{path: "/src"}
		l := &double{path: "/l"}
		r := &double{path: "/r"}
		sink := &recorder{path: "/sink"}
		Connect[float64](p, src, l)
		Connect[float64](p, src, r)
		Connect[float64](p, l, sink)
		Connect[float64](p, r, sink)
		require.NoError(t, p.Err())

		src.next = 1
		src.Tick()
		assert.Equal(t, []float64{2, 2}, sink.got)
	})
}

func TestConnect_DuplicatePath(t *testing.T) {
	p := New("dup")
	src := &source{path: "/steering/rudderAngle"}
	Connect[float64](p, src, &recorder{path: "/steering/rudderAngle"})
	assert.True(t, errors.Is(p.Err(), ErrDuplicatePath), "got %v", p.Err())
}

func TestActivate(t *testing.T) {
	t.Run("schedules tickers", func(t *testing.T) {
		p := New("ok")
		src := &source{path: "/src", interval: 500 * time.Millisecond}
		out := Connect[float64](p, src, &recorder{path: "/out"})

		s := &fakeScheduler{}
		require.NoError(t, p.Activate(s))
		assert.Equal(t, Active, p.State())
		require.Len(t, s.fns, 1)
		assert.Equal(t, []time.Duration{500 * time.Millisecond}, s.intervals)

		src.next = 4
		s.fns[0]()
		assert.Equal(t, []float64{4}, out.got)

		err := p.Activate(s)
		assert.True(t, errors.Is(err, ErrActive))

		Connect[float64](p, src, &recorder{path: "/late"})
		assert.True(t, errors.Is(p.Err(), ErrActive))
	})

	t.Run("unwired", func(t *testing.T) {
		err := New("empty").Activate(&fakeScheduler{})
		assert.True(t, errors.Is(err, ErrUnwired))
	})

	t.Run("configuration error blocks activation", func(t *testing.T) {
		p := New("broken")
		Connect[float64](p, &source{path: "/src"}, &recorder{path: "/out"})
		cfgErr := errors.New("bad calibration")
		p.Fail(cfgErr)
		p.Fail(errors.New("second"))

		s := &fakeScheduler{}
		err := p.Activate(s)
		assert.True(t, errors.Is(err, cfgErr))
		assert.Empty(t, s.fns)
		assert.Equal(t, Wired, p.State())
	})
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "unwired", Unwired.String())
	assert.Equal(t, "wired", Wired.String())
	assert.Equal(t, "active", Active.String())
}
