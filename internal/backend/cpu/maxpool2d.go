package cpu

import (
	"fmt"

	"github.com/strata-ml/strata/internal/parallel"
	"github.com/strata-ml/strata/internal/tensor"
)

// MaxPool2D performs 2D max pooling over the spatial dimensions.
//
// Input shape: [N, C, H, W]
// Output shape: [N, C, H/kernelSize, W/kernelSize] for stride == kernelSize
//
// Ties inside a window resolve to the first occurrence in row-major
// order, matching the gradient routing in MaxPool2DGrad.
func (cpu *CPUBackend) MaxPool2D(input *tensor.RawTensor, kernelSize, stride int) *tensor.RawTensor {
	inputShape := input.Shape()
	if len(inputShape) != 4 {
		panic(fmt.Sprintf("maxpool2d: input must be 4D [N,C,H,W], got %dD", len(inputShape)))
	}
	if kernelSize <= 0 {
		panic(fmt.Sprintf("maxpool2d: invalid kernel size %d", kernelSize))
	}
	if stride <= 0 {
		panic(fmt.Sprintf("maxpool2d: invalid stride %d", stride))
	}

	n := inputShape[0]
	c := inputShape[1]
	h := inputShape[2]
	w := inputShape[3]

	hOut := (h-kernelSize)/stride + 1
	wOut := (w-kernelSize)/stride + 1
	if hOut <= 0 || wOut <= 0 {
		panic(fmt.Sprintf("maxpool2d: invalid output dimensions: out_h=%d, out_w=%d", hOut, wOut))
	}

	output, err := tensor.NewRaw(tensor.Shape{n, c, hOut, wOut}, input.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("maxpool2d: failed to create output tensor: %v", err))
	}

	switch input.DType() {
	case tensor.Float32:
		maxPool2D(output.AsFloat32(), input.AsFloat32(), n, c, h, w, hOut, wOut, kernelSize, stride, cpu.par)
	case tensor.Float64:
		maxPool2D(output.AsFloat64(), input.AsFloat64(), n, c, h, w, hOut, wOut, kernelSize, stride, cpu.par)
	default:
		panic(fmt.Sprintf("maxpool2d: unsupported dtype %s", input.DType()))
	}

	return output
}

// Each (batch, channel) plane is independent, so planes pool
// concurrently.
func maxPool2D[T floatType](out, in []T, n, c, h, w, hOut, wOut, kernelSize, stride int, par parallel.Config) {
	parallel.ForBatch(n, c, func(batch, ch int) {
		base := batch*c*h*w + ch*h*w
		outBase := batch*c*hOut*wOut + ch*hOut*wOut

		for oh := 0; oh < hOut; oh++ {
			for ow := 0; ow < wOut; ow++ {
				hStart := oh * stride
				wStart := ow * stride

				max := in[base+hStart*w+wStart]
				for i := 0; i < kernelSize; i++ {
					for j := 0; j < kernelSize; j++ {
						v := in[base+(hStart+i)*w+wStart+j]
						if v > max {
							max = v
						}
					}
				}
				out[outBase+oh*wOut+ow] = max
			}
		}
	}, par)
}

// MaxPool2DGrad routes the output gradient back to the input positions
// that held each window's maximum. The argmax is recomputed from the
// input rather than stored during the forward pass.
func (cpu *CPUBackend) MaxPool2DGrad(input, grad *tensor.RawTensor, kernelSize, stride int) *tensor.RawTensor {
	inputShape := input.Shape()
	gradShape := grad.Shape()

	if len(inputShape) != 4 || len(gradShape) != 4 {
		panic("maxpool2d grad: input and grad must be 4D [N,C,H,W]")
	}
	if input.DType() != grad.DType() {
		panic(fmt.Sprintf("maxpool2d grad: dtype mismatch: %s vs %s", input.DType(), grad.DType()))
	}

	n := inputShape[0]
	c := inputShape[1]
	h := inputShape[2]
	w := inputShape[3]
	hOut := gradShape[2]
	wOut := gradShape[3]

	result, err := tensor.NewRaw(inputShape.Clone(), input.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("maxpool2d grad: failed to create result tensor: %v", err))
	}

	switch input.DType() {
	case tensor.Float32:
		maxPool2DGrad(result.AsFloat32(), input.AsFloat32(), grad.AsFloat32(), n, c, h, w, hOut, wOut, kernelSize, stride, cpu.par)
	case tensor.Float64:
		maxPool2DGrad(result.AsFloat64(), input.AsFloat64(), grad.AsFloat64(), n, c, h, w, hOut, wOut, kernelSize, stride, cpu.par)
	default:
		panic(fmt.Sprintf("maxpool2d grad: unsupported dtype %s", input.DType()))
	}

	return result
}

func maxPool2DGrad[T floatType](dst, in, grad []T, n, c, h, w, hOut, wOut, kernelSize, stride int, par parallel.Config) {
	parallel.ForBatch(n, c, func(batch, ch int) {
		base := batch*c*h*w + ch*h*w
		gradBase := batch*c*hOut*wOut + ch*hOut*wOut

		for oh := 0; oh < hOut; oh++ {
			for ow := 0; ow < wOut; ow++ {
				hStart := oh * stride
				wStart := ow * stride

				maxIdx := base + hStart*w + wStart
				max := in[maxIdx]
				for i := 0; i < kernelSize; i++ {
					for j := 0; j < kernelSize; j++ {
						idx := base + (hStart+i)*w + wStart + j
						if in[idx] > max {
							max = in[idx]
							maxIdx = idx
						}
					}
				}
				dst[maxIdx] += grad[gradBase+oh*wOut+ow]
			}
		}
	}, par)
}
