package transform

import (
	"math"
	"testing"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/sensepipe/pkg/param"
	"github.com/itohio/sensepipe/pkg/pipeline"
)

const anglePath = "/Transforms/Angle Transform"

type recorder[T any] struct {
	path string
	got  []T
}

func (r *recorder[T]) Path() string { return r.path }
func (r *recorder[T]) Accept(v T)   { r.got = append(r.got, v) }

func newStore(t *testing.T, nodes ...param.NodeDoc) *param.Store {
	t.Helper()
	s, err := param.NewStore(&param.MemoryBackend{Doc: param.Document{Nodes: nodes}})
	require.NoError(t, err)
	return s
}

func newCalibration(t *testing.T, s *param.Store) *Calibration {
	t.Helper()
	c, err := NewCalibration(s, anglePath, DefaultCalibration)
	require.NoError(t, err)
	return c
}

func setOffset(t *testing.T, s *param.Store, v float64) {
	t.Helper()
	require.NoError(t, s.Set(anglePath, KeyOffset, v))
}

func TestCalibration_Midpoint(t *testing.T) {
	c := newCalibration(t, newStore(t))

	assert.InDelta(t, 0.0, c.Degrees(1.65), 1e-6)
	assert.InDelta(t, 0.0, c.Apply(1.65), 1e-6)
}

func TestCalibration_MidpointWithOffset(t *testing.T) {
	s := newStore(t)
	c := newCalibration(t, s)
	setOffset(t, s, 10)

	assert.InDelta(t, 10*math.Pi/180, c.Apply(1.65), 1e-6)
	assert.InDelta(t, 0.174533, c.Apply(1.65), 1e-6)
}

func TestCalibration_Boundaries(t *testing.T) {
	for _, offset := range []float32{0, 10, -2.5} {
		s := newStore(t)
		c := newCalibration(t, s)
		setOffset(t, s, float64(offset))

		port, stb, _ := c.Points()
		assert.Equal(t, (port.Angle+offset)*DegToRad, c.Apply(port.Raw), "port, offset %v", offset)
		assert.Equal(t, (stb.Angle+offset)*DegToRad, c.Apply(stb.Raw), "starboard, offset %v", offset)
	}
}

func TestCalibration_Extrapolates(t *testing.T) {
	c := newCalibration(t, newStore(t))

	tests := []struct {
		name string
		x    float32
		deg  float32
	}{
		{"below port", -1.65, -70},
		{"beyond starboard", 4.95, 70},
		{"quarter", 0.825, -17.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.deg, c.Degrees(tt.x), 1e-4)
			assert.InDelta(t, tt.deg*math.Pi/180, c.Apply(tt.x), 1e-5)
		})
	}
}

func TestCalibration_ReversedPoints(t *testing.T) {
	s := newStore(t)
	c, err := NewCalibration(s, anglePath, CalibrationDefaults{
		PortAngle: -35, PortValue: 3.3,
		StarboardAngle: 35, StarboardValue: 0,
	})
	require.NoError(t, err)

	assert.InDelta(t, -35, c.Degrees(3.3), 1e-5)
	assert.InDelta(t, 35, c.Degrees(0), 1e-5)
	assert.InDelta(t, 0, c.Degrees(1.65), 1e-5)
	assert.InDelta(t, 70, c.Degrees(-1.65), 1e-4)
}

// f(x) = k*(x - p_raw) + p_phys + offset is affine. The un-offset linear term
// g(x) = f(x) - f(0) superposes for any offset; f itself only superposes when
// its constant term is zero.
func TestCalibration_Superposition(t *testing.T) {
	const a, b = float32(0.7), float32(1.9)

	for _, offset := range []float64{0, 10} {
		s := newStore(t)
		c := newCalibration(t, s)
		setOffset(t, s, offset)

		port, stb, _ := c.Points()
		want := Interpolate(a+b, port, stb) + float32(offset)
		got := c.Degrees(a) + c.Degrees(b) - c.Degrees(0)
		assert.InDelta(t, want, got, 1e-4, "offset %v", offset)

		g := func(x float32) float32 { return c.Degrees(x) - c.Degrees(0) }
		assert.InDelta(t, g(a+b), g(a)+g(b), 1e-4, "offset %v", offset)

		f0 := c.Degrees(0)
		assert.InDelta(t, c.Degrees(a)+c.Degrees(b)-f0, c.Degrees(a+b), 1e-4)
		assert.NotEqual(t, float32(0), f0)
		assert.Greater(t, math32.Abs(c.Degrees(a)+c.Degrees(b)-c.Degrees(a+b)), float32(1))
	}

	// With a zero constant term plain superposition holds.
	s := newStore(t)
	c, err := NewCalibration(s, anglePath, CalibrationDefaults{
		PortAngle: 0, PortValue: 0,
		StarboardAngle: 70, StarboardValue: 3.3,
	})
	require.NoError(t, err)
	assert.InDelta(t, c.Degrees(a+b), c.Degrees(a)+c.Degrees(b), 1e-4)
}

func TestCalibration_RejectsEqualRaw(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		_, err := NewCalibration(newStore(t), anglePath, CalibrationDefaults{
			PortAngle: -35, PortValue: 1,
			StarboardAngle: 35, StarboardValue: 1,
		})
		assert.True(t, errors.Is(err, ErrDegenerateCalibration), "got %v", err)
	})

	t.Run("persisted", func(t *testing.T) {
		s := newStore(t, param.NodeDoc{Path: anglePath, Params: []param.ParamDoc{
			{Key: KeyPortValue, Value: 2},
			{Key: KeyStarboardValue, Value: 2},
		}})
		_, err := NewCalibration(s, anglePath, DefaultCalibration)
		assert.True(t, errors.Is(err, ErrDegenerateCalibration), "got %v", err)
	})

	t.Run("edit", func(t *testing.T) {
		s := newStore(t)
		c := newCalibration(t, s)

		err := s.Set(anglePath, KeyStarboardValue, 0)
		assert.True(t, errors.Is(err, param.ErrInvalidValue), "got %v", err)
		_, stb, _ := c.Points()
		assert.Equal(t, float32(3.3), stb.Raw)
		assert.False(t, math32.IsInf(c.Apply(1), 0))
	})

	t.Run("nan", func(t *testing.T) {
		s := newStore(t)
		newCalibration(t, s)
		err := s.Set(anglePath, KeyPortAngle, math.NaN())
		assert.True(t, errors.Is(err, param.ErrInvalidValue), "got %v", err)
	})
}

func TestCalibration_RejectsFloat32Overflow(t *testing.T) {
	tests := []struct {
		name string
		vals map[string]float64
	}{
		{"port raw", map[string]float64{KeyPortValue: 1e300}},
		{"offset", map[string]float64{KeyOffset: -1e39}},
		{"raw span", map[string]float64{KeyPortValue: -3e38, KeyStarboardValue: 3e38}},
		{"angle span", map[string]float64{KeyPortAngle: -3e38, KeyStarboardAngle: 3e38}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			c := newCalibration(t, s)

			var params []param.ParamDoc
			for k, v := range tt.vals {
				params = append(params, param.ParamDoc{Key: k, Value: v})
			}
			errs := s.Apply(param.Document{Nodes: []param.NodeDoc{{Path: anglePath, Params: params}}})
			require.Len(t, errs, 1)
			assert.True(t, errors.Is(errs[0], param.ErrInvalidValue), "got %v", errs[0])

			y := c.Apply(1.65)
			assert.False(t, math32.IsNaN(y) || math32.IsInf(y, 0), "got %v", y)
		})
	}

	_, err := NewCalibration(newStore(t), anglePath, CalibrationDefaults{
		PortAngle: -35, PortValue: -3e38,
		StarboardAngle: 35, StarboardValue: 3e38,
	})
	assert.Error(t, err)
}

func TestCalibration_SwapPoints(t *testing.T) {
	s := newStore(t)
	c := newCalibration(t, s)
	before := c.Apply(1)

	// Sensor mounted the other way round: both raw ends change in one edit.
	errs := s.Apply(param.Document{Nodes: []param.NodeDoc{{Path: anglePath, Params: []param.ParamDoc{
		{Key: KeyPortValue, Value: DefaultCalibration.StarboardValue},
		{Key: KeyStarboardValue, Value: DefaultCalibration.PortValue},
	}}}})
	require.Empty(t, errs)

	port, stb, _ := c.Points()
	assert.Equal(t, float32(DefaultCalibration.StarboardValue), port.Raw)
	assert.Equal(t, float32(DefaultCalibration.PortValue), stb.Raw)
	assert.InDelta(t, -before, c.Apply(1), 1e-5)
}

func TestCalibration_PicksUpEdits(t *testing.T) {
	s := newStore(t)
	c := newCalibration(t, s)

	p := pipeline.New("rudder")
	out := pipeline.Connect[float32](p, c, &recorder[float32]{path: "/out"})
	require.NoError(t, p.Err())

	c.Accept(3.3)
	require.NoError(t, s.Set(anglePath, KeyStarboardAngle, 40))
	c.Accept(3.3)

	require.Len(t, out.got, 2)
	assert.InDelta(t, 35*math.Pi/180, out.got[0], 1e-6)
	assert.InDelta(t, 40*math.Pi/180, out.got[1], 1e-6)
}

func TestCalibration_DropsNonFinite(t *testing.T) {
	c := newCalibration(t, newStore(t))
	p := pipeline.New("rudder")
	out := pipeline.Connect[float32](p, c, &recorder[float32]{path: "/out"})

	c.Accept(math32.NaN())
	c.Accept(math32.Inf(1))
	assert.Empty(t, out.got)
}

func TestCalibration_Descriptors(t *testing.T) {
	s := newStore(t)
	newCalibration(t, s)

	assert.Equal(t, []param.Descriptor{
		{Key: "offset", Label: "Offset"},
		{Key: "prt_angle", Label: "Port Angle"},
		{Key: "prt_angle_value", Label: "Port value"},
		{Key: "stb_angle", Label: "Starboard Angle"},
		{Key: "stb_angle_value", Label: "Starboard value"},
	}, s.Descriptors(anglePath))

	_, err := NewCalibration(s, anglePath, DefaultCalibration)
	assert.True(t, errors.Is(err, param.ErrDuplicatePath))
}
