package cpu

import (
	"fmt"

	"github.com/strata-ml/strata/internal/parallel"
	"github.com/strata-ml/strata/internal/tensor"
)

// Conv2DInputGrad propagates an output gradient back through a valid
// cross-correlation, producing the gradient with respect to the input.
//
// grad shape: [N, C_out, H_out, W_out]
// kernel shape: [C_out, C_in, K_h, K_w]
// result shape: [N, C_in, inH, inW]
//
// For stride 1 and no padding this is the full cross-correlation of the
// output gradient with the kernel flipped along its spatial axes, which
// is the adjoint of Conv2D.
func (cpu *CPUBackend) Conv2DInputGrad(grad, kernel *tensor.RawTensor, inH, inW, stride, padding int) *tensor.RawTensor {
	gradShape := grad.Shape()
	kernelShape := kernel.Shape()

	if len(gradShape) != 4 {
		panic(fmt.Sprintf("conv2d input grad: grad must be 4D [N,K,OH,OW], got %dD", len(gradShape)))
	}
	if len(kernelShape) != 4 {
		panic(fmt.Sprintf("conv2d input grad: kernel must be 4D [K,C,KH,KW], got %dD", len(kernelShape)))
	}
	if gradShape[1] != kernelShape[0] {
		panic(fmt.Sprintf("conv2d input grad: grad channels %d != kernel output channels %d", gradShape[1], kernelShape[0]))
	}
	if grad.DType() != kernel.DType() {
		panic(fmt.Sprintf("conv2d input grad: dtype mismatch: %s vs %s", grad.DType(), kernel.DType()))
	}

	n := gradShape[0]
	cOut := gradShape[1]
	hOut := gradShape[2]
	wOut := gradShape[3]
	cIn := kernelShape[1]
	kh := kernelShape[2]
	kw := kernelShape[3]

	result, err := tensor.NewRaw(tensor.Shape{n, cIn, inH, inW}, grad.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("conv2d input grad: failed to create result tensor: %v", err))
	}

	switch grad.DType() {
	case tensor.Float32:
		conv2dInputGrad(result.AsFloat32(), grad.AsFloat32(), kernel.AsFloat32(),
			n, cOut, hOut, wOut, cIn, inH, inW, kh, kw, stride, padding, cpu.par)
	case tensor.Float64:
		conv2dInputGrad(result.AsFloat64(), grad.AsFloat64(), kernel.AsFloat64(),
			n, cOut, hOut, wOut, cIn, inH, inW, kh, kw, stride, padding, cpu.par)
	default:
		panic(fmt.Sprintf("conv2d input grad: unsupported dtype %s", grad.DType()))
	}

	return result
}

// conv2dInputGrad scatters each output gradient element back onto the
// input positions that produced it. Batches write disjoint slices of
// dst, so they run concurrently.
func conv2dInputGrad[T floatType](dst, grad, kernel []T, n, cOut, hOut, wOut, cIn, inH, inW, kh, kw, stride, padding int, par parallel.Config) {
	parallel.For(n, func(batch int) {
		for co := 0; co < cOut; co++ {
			for oh := 0; oh < hOut; oh++ {
				for ow := 0; ow < wOut; ow++ {
					g := grad[batch*cOut*hOut*wOut+co*hOut*wOut+oh*wOut+ow]
					if g == 0 {
						continue
					}
					hStart := oh*stride - padding
					wStart := ow*stride - padding

					for ci := 0; ci < cIn; ci++ {
						for i := 0; i < kh; i++ {
							hp := hStart + i
							if hp < 0 || hp >= inH {
								continue
							}
							for j := 0; j < kw; j++ {
								wp := wStart + j
								if wp < 0 || wp >= inW {
									continue
								}
								dst[batch*cIn*inH*inW+ci*inH*inW+hp*inW+wp] +=
									g * kernel[co*cIn*kh*kw+ci*kh*kw+i*kw+j]
							}
						}
					}
				}
			}
		}
	}, par)
}

// Conv2DKernelGrad computes the gradient with respect to the kernel of a
// valid cross-correlation.
//
// input shape: [N, C_in, H, W]
// grad shape: [N, C_out, H_out, W_out]
// result shape: [C_out, C_in, kernelH, kernelW]
//
// Gradients are accumulated over the batch dimension. For stride 1 this
// is the valid cross-correlation of the input with the output gradient,
// one spatial slice per (out channel, in channel) pair.
func (cpu *CPUBackend) Conv2DKernelGrad(input, grad *tensor.RawTensor, kernelH, kernelW, stride, padding int) *tensor.RawTensor {
	inputShape := input.Shape()
	gradShape := grad.Shape()

	if len(inputShape) != 4 {
		panic(fmt.Sprintf("conv2d kernel grad: input must be 4D [N,C,H,W], got %dD", len(inputShape)))
	}
	if len(gradShape) != 4 {
		panic(fmt.Sprintf("conv2d kernel grad: grad must be 4D [N,K,OH,OW], got %dD", len(gradShape)))
	}
	if inputShape[0] != gradShape[0] {
		panic(fmt.Sprintf("conv2d kernel grad: batch mismatch: input %d vs grad %d", inputShape[0], gradShape[0]))
	}
	if input.DType() != grad.DType() {
		panic(fmt.Sprintf("conv2d kernel grad: dtype mismatch: %s vs %s", input.DType(), grad.DType()))
	}

	n := inputShape[0]
	cIn := inputShape[1]
	h := inputShape[2]
	w := inputShape[3]
	cOut := gradShape[1]
	hOut := gradShape[2]
	wOut := gradShape[3]

	result, err := tensor.NewRaw(tensor.Shape{cOut, cIn, kernelH, kernelW}, input.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("conv2d kernel grad: failed to create result tensor: %v", err))
	}

	switch input.DType() {
	case tensor.Float32:
		conv2dKernelGrad(result.AsFloat32(), input.AsFloat32(), grad.AsFloat32(),
			n, cIn, h, w, cOut, hOut, wOut, kernelH, kernelW, stride, padding, cpu.par)
	case tensor.Float64:
		conv2dKernelGrad(result.AsFloat64(), input.AsFloat64(), grad.AsFloat64(),
			n, cIn, h, w, cOut, hOut, wOut, kernelH, kernelW, stride, padding, cpu.par)
	default:
		panic(fmt.Sprintf("conv2d kernel grad: unsupported dtype %s", input.DType()))
	}

	return result
}

// Output channels write disjoint slices of dst, so the outer loop runs
// concurrently over them; each worker accumulates its channel over the
// whole batch.
func conv2dKernelGrad[T floatType](dst, input, grad []T, n, cIn, h, w, cOut, hOut, wOut, kh, kw, stride, padding int, par parallel.Config) {
	parallel.For(cOut, func(co int) {
		for batch := 0; batch < n; batch++ {
			for oh := 0; oh < hOut; oh++ {
				for ow := 0; ow < wOut; ow++ {
					g := grad[batch*cOut*hOut*wOut+co*hOut*wOut+oh*wOut+ow]
					if g == 0 {
						continue
					}
					hStart := oh*stride - padding
					wStart := ow*stride - padding

					for ci := 0; ci < cIn; ci++ {
						for i := 0; i < kh; i++ {
							hp := hStart + i
							if hp < 0 || hp >= h {
								continue
							}
							for j := 0; j < kw; j++ {
								wp := wStart + j
								if wp < 0 || wp >= w {
									continue
								}
								dst[co*cIn*kh*kw+ci*kh*kw+i*kw+j] +=
									g * input[batch*cIn*h*w+ci*h*w+hp*w+wp]
							}
						}
					}
				}
			}
		}
	}, par)
}
