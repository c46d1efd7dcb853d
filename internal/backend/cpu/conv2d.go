package cpu

import (
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
	"gonum.org/v1/gonum/blas/blas64"

	"github.com/strata-ml/strata/internal/parallel"
	"github.com/strata-ml/strata/internal/tensor"
)

// Conv2D performs a valid 2D cross-correlation using the im2col algorithm.
//
// Input shape: [batch, in_channels, height, width]
// Kernel shape: [out_channels, in_channels, kernel_h, kernel_w]
// Output shape: [batch, out_channels, out_h, out_w]
//
// Where:
//
//	out_h = (height + 2*padding - kernel_h) / stride + 1
//	out_w = (width + 2*padding - kernel_w) / stride + 1
//
// Algorithm: Im2col
//  1. Transform input patches into columns (im2col)
//  2. Multiply the flattened kernel matrix against the column matrix
//     (one BLAS gemm call)
//  3. Rearrange the product to [N, C_out, H_out, W_out]
//
// Im2col converts convolution to a matrix product, which is cache-friendly
// and lets BLAS do the heavy lifting.
func (cpu *CPUBackend) Conv2D(input, kernel *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	inputShape := input.Shape()
	kernelShape := kernel.Shape()

	if len(inputShape) != 4 {
		panic(fmt.Sprintf("conv2d: input must be 4D [N,C,H,W], got %dD", len(inputShape)))
	}
	if len(kernelShape) != 4 {
		panic(fmt.Sprintf("conv2d: kernel must be 4D [K,C,KH,KW], got %dD", len(kernelShape)))
	}

	N := inputShape[0]
	cIn := inputShape[1]
	h := inputShape[2]
	w := inputShape[3]
	cOut := kernelShape[0]
	kh := kernelShape[2]
	kw := kernelShape[3]

	if cIn != kernelShape[1] {
		panic(fmt.Sprintf("conv2d: input channels %d != kernel channels %d", cIn, kernelShape[1]))
	}
	if stride <= 0 {
		panic(fmt.Sprintf("conv2d: invalid stride %d", stride))
	}
	if padding < 0 {
		panic(fmt.Sprintf("conv2d: invalid padding %d", padding))
	}

	hOut := (h+2*padding-kh)/stride + 1
	wOut := (w+2*padding-kw)/stride + 1
	if hOut <= 0 || wOut <= 0 {
		panic(fmt.Sprintf("conv2d: invalid output dimensions: out_h=%d, out_w=%d (check kernel/stride/padding)", hOut, wOut))
	}

	output, err := tensor.NewRaw(tensor.Shape{N, cOut, hOut, wOut}, input.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("conv2d: failed to create output tensor: %v", err))
	}

	switch input.DType() {
	case tensor.Float32:
		cpu.conv2dFloat32(output, input, kernel, N, cIn, h, w, cOut, kh, kw, hOut, wOut, stride, padding)
	case tensor.Float64:
		cpu.conv2dFloat64(output, input, kernel, N, cIn, h, w, cOut, kh, kw, hOut, wOut, stride, padding)
	default:
		panic(fmt.Sprintf("conv2d: unsupported dtype %s", input.DType()))
	}

	return output
}

func (cpu *CPUBackend) conv2dFloat32(output, input, kernel *tensor.RawTensor, n, cIn, h, w, cOut, kh, kw, hOut, wOut, stride, padding int) {
	colWidth := cIn * kh * kw
	colHeight := n * hOut * wOut
	colBuf := make([]float32, colHeight*colWidth)

	im2col(colBuf, input.AsFloat32(), n, cIn, h, w, kh, kw, hOut, wOut, stride, padding, cpu.par)

	// kernel [C_out, colWidth] @ colBuf^T [colWidth, colHeight]
	// -> product [C_out, colHeight]
	product := make([]float32, cOut*colHeight)
	blas32.Gemm(blas.NoTrans, blas.Trans, 1,
		blas32.General{Rows: cOut, Cols: colWidth, Stride: colWidth, Data: kernel.AsFloat32()},
		blas32.General{Rows: colHeight, Cols: colWidth, Stride: colWidth, Data: colBuf},
		0,
		blas32.General{Rows: cOut, Cols: colHeight, Stride: colHeight, Data: product})

	rearrangeConvOutput(output.AsFloat32(), product, n, cOut, hOut, wOut)
}

func (cpu *CPUBackend) conv2dFloat64(output, input, kernel *tensor.RawTensor, n, cIn, h, w, cOut, kh, kw, hOut, wOut, stride, padding int) {
	colWidth := cIn * kh * kw
	colHeight := n * hOut * wOut
	colBuf := make([]float64, colHeight*colWidth)

	im2col(colBuf, input.AsFloat64(), n, cIn, h, w, kh, kw, hOut, wOut, stride, padding, cpu.par)

	product := make([]float64, cOut*colHeight)
	blas64.Gemm(blas.NoTrans, blas.Trans, 1,
		blas64.General{Rows: cOut, Cols: colWidth, Stride: colWidth, Data: kernel.AsFloat64()},
		blas64.General{Rows: colHeight, Cols: colWidth, Stride: colWidth, Data: colBuf},
		0,
		blas64.General{Rows: cOut, Cols: colHeight, Stride: colHeight, Data: product})

	rearrangeConvOutput(output.AsFloat64(), product, n, cOut, hOut, wOut)
}

// im2col transforms the input tensor into a column matrix.
//
// Input: [N, C, H, W]
// Output: colBuf [N * H_out * W_out, C * K_h * K_w]
//
// Each row of colBuf holds the flattened input patch for one output
// position; out-of-bounds positions (padding) are zero. Batches are
// written to disjoint row ranges, so they expand concurrently.
func im2col[T floatType](colBuf, inputData []T, n, c, h, w, kh, kw, hOut, wOut, stride, padding int, par parallel.Config) {
	colWidth := c * kh * kw

	parallel.For(n, func(batch int) {
		colIdx := batch * hOut * wOut
		for outH := 0; outH < hOut; outH++ {
			for outW := 0; outW < wOut; outW++ {
				hStart := outH*stride - padding
				wStart := outW*stride - padding
				bufIdx := colIdx * colWidth

				for ch := 0; ch < c; ch++ {
					for i := 0; i < kh; i++ {
						for j := 0; j < kw; j++ {
							hp := hStart + i
							wp := wStart + j

							if hp >= 0 && hp < h && wp >= 0 && wp < w {
								colBuf[bufIdx] = inputData[batch*c*h*w+ch*h*w+hp*w+wp]
							} else {
								colBuf[bufIdx] = 0
							}
							bufIdx++
						}
					}
				}

				colIdx++
			}
		}
	}, par)
}

// rearrangeConvOutput converts the gemm product [C_out, N*H_out*W_out]
// into the canonical layout [N, C_out, H_out, W_out].
func rearrangeConvOutput[T floatType](out, product []T, n, cOut, hOut, wOut int) {
	colHeight := n * hOut * wOut
	plane := hOut * wOut

	for batch := 0; batch < n; batch++ {
		for c := 0; c < cOut; c++ {
			src := c*colHeight + batch*plane
			dst := batch*cOut*plane + c*plane
			copy(out[dst:dst+plane], product[src:src+plane])
		}
	}
}
