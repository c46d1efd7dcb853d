package nn

import (
	"fmt"

	"github.com/strata-ml/strata/internal/tensor"
)

// InputConverter adapts a heterogeneous upstream representation to a
// layer's canonical input tensor. Layers feeding from mixed upstream
// layer outputs install a converter so callers never deal with the
// concrete input layout.
type InputConverter interface {
	Convert(input any, shape tensor.Shape, dtype tensor.DataType) (*tensor.RawTensor, error)
}

// DefaultConverter handles the common upstream representations: an
// already-shaped raw tensor (reshaped via a view when the element count
// matches) and flat float slices.
type DefaultConverter struct{}

func (DefaultConverter) Convert(input any, shape tensor.Shape, dtype tensor.DataType) (*tensor.RawTensor, error) {
	switch v := input.(type) {
	case *tensor.RawTensor:
		if v.DType() != dtype {
			return nil, fmt.Errorf("%w: input dtype %s, layer expects %s", ErrShapeMismatch, v.DType(), dtype)
		}
		if v.NumElements() != shape.NumElements() {
			return nil, fmt.Errorf("%w: input has %d elements, layer expects %d",
				ErrShapeMismatch, v.NumElements(), shape.NumElements())
		}
		return v.View(shape)

	case []float32:
		if dtype != tensor.Float32 {
			return nil, fmt.Errorf("%w: []float32 input, layer expects %s", ErrShapeMismatch, dtype)
		}
		if len(v) != shape.NumElements() {
			return nil, fmt.Errorf("%w: input has %d elements, layer expects %d",
				ErrShapeMismatch, len(v), shape.NumElements())
		}
		raw, err := tensor.NewRaw(shape.Clone(), dtype, tensor.CPU)
		if err != nil {
			return nil, err
		}
		copy(raw.AsFloat32(), v)
		return raw, nil

	case []float64:
		if dtype != tensor.Float64 {
			return nil, fmt.Errorf("%w: []float64 input, layer expects %s", ErrShapeMismatch, dtype)
		}
		if len(v) != shape.NumElements() {
			return nil, fmt.Errorf("%w: input has %d elements, layer expects %d",
				ErrShapeMismatch, len(v), shape.NumElements())
		}
		raw, err := tensor.NewRaw(shape.Clone(), dtype, tensor.CPU)
		if err != nil {
			return nil, err
		}
		copy(raw.AsFloat64(), v)
		return raw, nil

	default:
		return nil, fmt.Errorf("%w: cannot convert %T to layer input", ErrShapeMismatch, input)
	}
}
