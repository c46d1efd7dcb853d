package cpu

import (
	"fmt"

	"github.com/strata-ml/strata/internal/tensor"
)

// Sum reduces the whole tensor to a single scalar with shape [1].
func (cpu *CPUBackend) Sum(x *tensor.RawTensor) *tensor.RawTensor {
	result, err := tensor.NewRaw(tensor.Shape{1}, x.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("sum: failed to create result tensor: %v", err))
	}

	switch x.DType() {
	case tensor.Float32:
		result.AsFloat32()[0] = sumAll(x.AsFloat32())
	case tensor.Float64:
		result.AsFloat64()[0] = sumAll(x.AsFloat64())
	default:
		panic(fmt.Sprintf("sum: unsupported dtype %s", x.DType()))
	}

	return result
}

// SumDim sums along a single dimension. With keepDim the reduced
// dimension stays in the shape with size 1, otherwise it is removed.
func (cpu *CPUBackend) SumDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	return cpu.reduceDim("sum_dim", x, dim, keepDim, false)
}

// MeanDim averages along a single dimension.
func (cpu *CPUBackend) MeanDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	return cpu.reduceDim("mean_dim", x, dim, keepDim, true)
}

func (cpu *CPUBackend) reduceDim(name string, x *tensor.RawTensor, dim int, keepDim, mean bool) *tensor.RawTensor {
	shape := x.Shape()
	if dim < 0 || dim >= len(shape) {
		panic(fmt.Sprintf("%s: dimension %d out of range for %dD tensor", name, dim, len(shape)))
	}

	outShape := make(tensor.Shape, 0, len(shape))
	for i, s := range shape {
		if i == dim {
			if keepDim {
				outShape = append(outShape, 1)
			}
			continue
		}
		outShape = append(outShape, s)
	}
	if len(outShape) == 0 {
		outShape = tensor.Shape{1}
	}

	result, err := tensor.NewRaw(outShape, x.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("%s: failed to create result tensor: %v", name, err))
	}

	// Collapse the shape into [outer, reduced, inner] so the reduction
	// is three simple loops regardless of rank.
	outer := 1
	for i := 0; i < dim; i++ {
		outer *= shape[i]
	}
	reduced := shape[dim]
	inner := 1
	for i := dim + 1; i < len(shape); i++ {
		inner *= shape[i]
	}

	switch x.DType() {
	case tensor.Float32:
		reduceDim(result.AsFloat32(), x.AsFloat32(), outer, reduced, inner, mean)
	case tensor.Float64:
		reduceDim(result.AsFloat64(), x.AsFloat64(), outer, reduced, inner, mean)
	default:
		panic(fmt.Sprintf("%s: unsupported dtype %s", name, x.DType()))
	}

	return result
}

func sumAll[T floatType](data []T) T {
	var total T
	for _, v := range data {
		total += v
	}
	return total
}

func reduceDim[T floatType](out, in []T, outer, reduced, inner int, mean bool) {
	for o := 0; o < outer; o++ {
		for i := 0; i < inner; i++ {
			var acc T
			base := o*reduced*inner + i
			for r := 0; r < reduced; r++ {
				acc += in[base+r*inner]
			}
			if mean {
				acc /= T(reduced)
			}
			out[o*inner+i] = acc
		}
	}
}
