package transform

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/itohio/sensepipe/pkg/param"
	"github.com/itohio/sensepipe/pkg/pipeline"
)

// ErrDegenerateCalibration is returned when both calibration points share the
// same raw value, which would divide by zero.
var ErrDegenerateCalibration = errors.New("transform: calibration raw values must differ")

// DegToRad converts degrees to radians.
const DegToRad = math32.Pi / 180

// Parameter keys of the calibration transform, in display order.
const (
	KeyOffset         = "offset"
	KeyPortAngle      = "prt_angle"
	KeyPortValue      = "prt_angle_value"
	KeyStarboardAngle = "stb_angle"
	KeyStarboardValue = "stb_angle_value"
)

// Point anchors the interpolation: a raw reading and the physical angle (in
// degrees) it corresponds to.
type Point struct {
	Raw   float32
	Angle float32
}

// CalibrationDefaults are the compiled-in values used when nothing is
// persisted. Angles are in degrees.
type CalibrationDefaults struct {
	Offset         float64
	PortAngle      float64
	PortValue      float64
	StarboardAngle float64
	StarboardValue float64
}

// DefaultCalibration matches a 5k potentiometer on a 3.3V divider swinging
// ±35° between hard over port and starboard.
var DefaultCalibration = CalibrationDefaults{
	Offset:         0,
	PortAngle:      -35,
	PortValue:      0,
	StarboardAngle: 35,
	StarboardValue: 3.3,
}

// Calibration maps a raw reading onto an angle in radians by linear
// interpolation (and extrapolation) through the port and starboard points,
// then adds offset degrees.
type Calibration struct {
	pipeline.Emitter[float32]

	path      string
	offset    *param.Param
	portAngle *param.Param
	portValue *param.Param
	stbAngle  *param.Param
	stbValue  *param.Param
}

var _ pipeline.Transform[float32, float32] = (*Calibration)(nil)

// NewCalibration registers the calibration parameters under path. It fails if
// the effective (persisted or default) points share a raw value.
func NewCalibration(store *param.Store, path string, def CalibrationDefaults) (*Calibration, error) {
	g, err := store.Node(path)
	if err != nil {
		return nil, err
	}

	c := &Calibration{path: path}
	regs := []struct {
		dst   **param.Param
		key   string
		label string
		def   float64
	}{
		{&c.offset, KeyOffset, "Offset", def.Offset},
		{&c.portAngle, KeyPortAngle, "Port Angle", def.PortAngle},
		{&c.portValue, KeyPortValue, "Port value", def.PortValue},
		{&c.stbAngle, KeyStarboardAngle, "Starboard Angle", def.StarboardAngle},
		{&c.stbValue, KeyStarboardValue, "Starboard value", def.StarboardValue},
	}
	for _, r := range regs {
		p, err := g.Register(r.key, r.label, r.def, param.Finite32)
		if err != nil {
			return nil, err
		}
		*r.dst = p
	}

	if err := g.Constrain(distinctRaw); err != nil {
		return nil, errors.Wrap(ErrDegenerateCalibration, err.Error())
	}
	return c, nil
}

func distinctRaw(v param.Values) error {
	raw := float32(v[KeyStarboardValue]) - float32(v[KeyPortValue])
	if raw == 0 {
		return ErrDegenerateCalibration
	}
	angle := float32(v[KeyStarboardAngle]) - float32(v[KeyPortAngle])
	if math32.IsInf(raw, 0) || math32.IsInf(angle, 0) {
		return errors.New("calibration span overflows float32")
	}
	return nil
}

// Path returns the configuration path.
func (c *Calibration) Path() string { return c.path }

// Points returns the calibration currently in force.
func (c *Calibration) Points() (port, starboard Point, offset float32) {
	port = Point{Raw: float32(c.portValue.Value()), Angle: float32(c.portAngle.Value())}
	starboard = Point{Raw: float32(c.stbValue.Value()), Angle: float32(c.stbAngle.Value())}
	return port, starboard, float32(c.offset.Value())
}

// Degrees returns the offset physical angle for raw input x.
func (c *Calibration) Degrees(x float32) float32 {
	port, stb, offset := c.Points()
	return Interpolate(x, port, stb) + offset
}

// Apply returns the angle in radians for raw input x.
func (c *Calibration) Apply(x float32) float32 {
	return c.Degrees(x) * DegToRad
}

// Accept converts x and forwards it downstream.
func (c *Calibration) Accept(x float32) {
	y := c.Apply(x)
	if math32.IsNaN(y) || math32.IsInf(y, 0) {
		log.WithFields(log.Fields{"path": c.path, "input": x}).Warn("calibration produced a non-finite angle, dropping")
		return
	}
	c.Emit(y)
}

// Interpolate maps x on the line through p and s. Inputs outside [p.Raw,
// s.Raw] extrapolate. At x == p.Raw and x == s.Raw the result is exactly
// p.Angle and s.Angle respectively when the angle span is exact.
func Interpolate(x float32, p, s Point) float32 {
	t := (x - p.Raw) / (s.Raw - p.Raw)
	return t*(s.Angle-p.Angle) + p.Angle
}
