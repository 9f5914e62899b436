// Package transform holds the numeric pipeline stages. Every stage reads its
// parameters from the store on each evaluation, so an edit applies from the
// next tick.
package transform

import (
	"github.com/pkg/errors"

	"github.com/itohio/sensepipe/pkg/param"
	"github.com/itohio/sensepipe/pkg/pipeline"
)

// ErrZeroScale is returned by Inverse when the multiplier is zero.
var ErrZeroScale = errors.New("transform: linear multiplier is zero")

// Parameter keys of the linear transform.
const (
	KeyMultiplier   = "multiplier"
	KeyLinearOffset = "offset"
)

// Linear computes x*multiplier + offset.
type Linear[T pipeline.Number] struct {
	pipeline.Emitter[T]

	path   string
	scale  *param.Param
	offset *param.Param
}

// NewLinear registers multiplier and offset under path.
func NewLinear[T pipeline.Number](store *param.Store, path string, multiplier, offset float64) (*Linear[T], error) {
	g, err := store.Node(path)
	if err != nil {
		return nil, err
	}
	l := &Linear[T]{path: path}
	if l.scale, err = g.Register(KeyMultiplier, "Multiplier", multiplier, param.Finite); err != nil {
		return nil, err
	}
	if l.offset, err = g.Register(KeyLinearOffset, "Offset", offset, param.Finite); err != nil {
		return nil, err
	}
	return l, nil
}

// Path returns the configuration path.
func (l *Linear[T]) Path() string { return l.path }

// Apply returns x*multiplier + offset.
func (l *Linear[T]) Apply(x T) T {
	return x*T(l.scale.Value()) + T(l.offset.Value())
}

// Inverse returns (y - offset) / multiplier.
func (l *Linear[T]) Inverse(y T) (T, error) {
	scale := T(l.scale.Value())
	if scale == 0 {
		return 0, ErrZeroScale
	}
	return (y - T(l.offset.Value())) / scale, nil
}

// Accept forwards Apply(x) downstream.
func (l *Linear[T]) Accept(x T) {
	l.Emit(l.Apply(x))
}
