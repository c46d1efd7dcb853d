package nn

import (
	"fmt"
	"math"

	"github.com/strata-ml/strata/internal/tensor"
)

// Activation is an element-wise nonlinearity injected into a layer at
// construction time.
//
// Derivative is evaluated at the activation OUTPUT, not the
// pre-activation: layers only keep the post-activation tensor around
// during training, and sigmoid, tanh and relu all admit a derivative
// expressed in terms of their output.
type Activation interface {
	// Apply transforms x in place.
	Apply(x *tensor.RawTensor)

	// Derivative returns f'(z) computed from the output y = f(z), as a
	// newly allocated tensor shaped like y.
	Derivative(y *tensor.RawTensor) *tensor.RawTensor

	String() string
}

// Identity passes values through unchanged.
type Identity struct{}

func (Identity) Apply(*tensor.RawTensor) {}

func (Identity) Derivative(y *tensor.RawTensor) *tensor.RawTensor {
	return onesLike(y)
}

func (Identity) String() string { return "IDENTITY" }

// Sigmoid is the logistic function 1 / (1 + exp(-x)).
type Sigmoid struct{}

func (Sigmoid) Apply(x *tensor.RawTensor) {
	mapInPlace(x,
		func(v float32) float32 { return 1 / (1 + float32(math.Exp(-float64(v)))) },
		func(v float64) float64 { return 1 / (1 + math.Exp(-v)) })
}

// Derivative uses s'(z) = y * (1 - y).
func (Sigmoid) Derivative(y *tensor.RawTensor) *tensor.RawTensor {
	return mapCopy(y,
		func(v float32) float32 { return v * (1 - v) },
		func(v float64) float64 { return v * (1 - v) })
}

func (Sigmoid) String() string { return "SIGMOID" }

// Tanh is the hyperbolic tangent.
type Tanh struct{}

func (Tanh) Apply(x *tensor.RawTensor) {
	mapInPlace(x,
		func(v float32) float32 { return float32(math.Tanh(float64(v))) },
		math.Tanh)
}

// Derivative uses tanh'(z) = 1 - y*y.
func (Tanh) Derivative(y *tensor.RawTensor) *tensor.RawTensor {
	return mapCopy(y,
		func(v float32) float32 { return 1 - v*v },
		func(v float64) float64 { return 1 - v*v })
}

func (Tanh) String() string { return "TANH" }

// ReLU is the rectified linear unit max(0, x).
type ReLU struct{}

func (ReLU) Apply(x *tensor.RawTensor) {
	mapInPlace(x,
		func(v float32) float32 {
			if v > 0 {
				return v
			}
			return 0
		},
		func(v float64) float64 {
			if v > 0 {
				return v
			}
			return 0
		})
}

// Derivative is 1 where the output is positive, 0 elsewhere. The output
// is positive exactly where the pre-activation was.
func (ReLU) Derivative(y *tensor.RawTensor) *tensor.RawTensor {
	return mapCopy(y,
		func(v float32) float32 {
			if v > 0 {
				return 1
			}
			return 0
		},
		func(v float64) float64 {
			if v > 0 {
				return 1
			}
			return 0
		})
}

func (ReLU) String() string { return "RELU" }

// Softmax normalizes the last dimension to a probability distribution.
// It is meant for the last layer under a cross-entropy objective, where
// the combined softmax/cross-entropy gradient reduces to (y - target);
// Derivative therefore returns ones so AdaptErrors leaves the error
// signal untouched.
type Softmax struct{}

func (Softmax) Apply(x *tensor.RawTensor) {
	shape := x.Shape()
	inner := shape[len(shape)-1]
	switch x.DType() {
	case tensor.Float32:
		softmaxRows(x.AsFloat32(), inner)
	case tensor.Float64:
		softmaxRows(x.AsFloat64(), inner)
	default:
		panic(fmt.Sprintf("softmax: unsupported dtype %s", x.DType()))
	}
}

func (Softmax) Derivative(y *tensor.RawTensor) *tensor.RawTensor {
	return onesLike(y)
}

func (Softmax) String() string { return "SOFTMAX" }

func softmaxRows[T interface{ ~float32 | ~float64 }](data []T, inner int) {
	for base := 0; base < len(data); base += inner {
		row := data[base : base+inner]

		max := row[0]
		for _, v := range row[1:] {
			if v > max {
				max = v
			}
		}

		var sum T
		for i, v := range row {
			e := T(math.Exp(float64(v - max)))
			row[i] = e
			sum += e
		}
		for i := range row {
			row[i] /= sum
		}
	}
}

func mapInPlace(x *tensor.RawTensor, f32 func(float32) float32, f64 func(float64) float64) {
	switch x.DType() {
	case tensor.Float32:
		data := x.AsFloat32()
		for i, v := range data {
			data[i] = f32(v)
		}
	case tensor.Float64:
		data := x.AsFloat64()
		for i, v := range data {
			data[i] = f64(v)
		}
	default:
		panic(fmt.Sprintf("activation: unsupported dtype %s", x.DType()))
	}
}

func mapCopy(x *tensor.RawTensor, f32 func(float32) float32, f64 func(float64) float64) *tensor.RawTensor {
	out := x.Clone()
	mapInPlace(out, f32, f64)
	return out
}

func onesLike(x *tensor.RawTensor) *tensor.RawTensor {
	return mapCopy(x,
		func(float32) float32 { return 1 },
		func(float64) float64 { return 1 })
}
