package cpu

import (
	"github.com/strata-ml/strata/internal/tensor"
)

type floatType interface {
	~float32 | ~float64
}

// binaryElems applies op element-for-element over same-shaped operands.
func binaryElems[T floatType](out, a, b []T, op func(T, T) T) {
	for i := range out {
		out[i] = op(a[i], b[i])
	}
}

// binaryBroadcast applies op with NumPy-style broadcasting. Dimensions of
// size 1 (or missing on the left) are given stride 0, so every output
// coordinate maps to a valid source element.
func binaryBroadcast[T floatType](out, a, b []T, aShape, bShape, outShape tensor.Shape, op func(T, T) T) {
	aStrides := broadcastStrides(aShape, outShape)
	bStrides := broadcastStrides(bShape, outShape)
	outStrides := outShape.ComputeStrides()

	n := outShape.NumElements()
	for i := 0; i < n; i++ {
		out[i] = op(a[flatIndex(i, outStrides, aStrides)], b[flatIndex(i, outStrides, bStrides)])
	}
}

// broadcastStrides computes source strides for broadcasting inShape to
// outShape: broadcast dimensions get stride 0.
func broadcastStrides(inShape, outShape tensor.Shape) []int {
	outDim := len(outShape)
	strides := make([]int, outDim)

	inDim := len(inShape)
	offset := outDim - inDim
	origStrides := inShape.ComputeStrides()

	for i := 0; i < outDim; i++ {
		inIdx := i - offset
		switch {
		case inIdx < 0 || inIdx >= inDim:
			strides[i] = 0 // padded dimension
		case inShape[inIdx] == 1:
			strides[i] = 0 // broadcast dimension
		default:
			strides[i] = origStrides[inIdx]
		}
	}

	return strides
}

// flatIndex maps a flat output index to the flat index in a (possibly
// broadcast) source array.
func flatIndex(outIdx int, outStrides, inStrides []int) int {
	flat := 0
	for i := range outStrides {
		coord := outIdx / outStrides[i]
		outIdx %= outStrides[i]
		flat += coord * inStrides[i]
	}
	return flat
}
