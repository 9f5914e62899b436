package param

import (
	"math"

	"github.com/pkg/errors"
)

// Check validates a single parameter value.
type Check func(v float64) error

// Finite rejects NaN and ±Inf.
func Finite(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return errors.New("must be a finite number")
	}
	return nil
}

// Positive requires v > 0.
func Positive(v float64) error {
	if !(v > 0) {
		return errors.New("must be positive")
	}
	return nil
}

// Range requires min <= v <= max.
func Range(min, max float64) Check {
	return func(v float64) error {
		if !(v >= min && v <= max) {
			return errors.Errorf("must be within [%v, %v]", min, max)
		}
		return nil
	}
}

// Finite32 rejects values that are not finite once narrowed to float32.
func Finite32(v float64) error {
	if err := Finite(v); err != nil {
		return err
	}
	if f := float32(v); math.IsInf(float64(f), 0) {
		return errors.Errorf("%v overflows float32", v)
	}
	return nil
}
