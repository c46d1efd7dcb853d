package tensor

// Backend defines the interface that compute backends must implement.
// The set of operations is exactly what the layer library consumes: the
// three mutually-adjoint convolution kernels that drive forward
// activation, backward error propagation and filter-gradient
// accumulation, plus the element-wise, matrix and reduction primitives
// the layers build on.
//
// Convolution convention: all three kernels are cross-correlations (no
// filter flip). Because the backward and gradient kernels are the exact
// adjoints of the forward kernel, the chain rule holds regardless of
// which convention is picked, as long as it is consistent.
type Backend interface {
	// Element-wise binary operations (NumPy-style broadcasting)
	Add(a, b *RawTensor) *RawTensor
	Sub(a, b *RawTensor) *RawTensor
	Mul(a, b *RawTensor) *RawTensor
	Div(a, b *RawTensor) *RawTensor

	// Scalar operations (element-wise with scalar)
	AddScalar(x *RawTensor, scalar any) *RawTensor
	MulScalar(x *RawTensor, scalar any) *RawTensor

	// Matrix operations (2D)
	MatMul(a, b *RawTensor) *RawTensor

	// Convolution kernels.
	//
	// Conv2D: valid cross-correlation of input [N, C, H, W] with kernel
	// [K, C, KH, KW] -> [N, K, HOut, WOut].
	//
	// Conv2DInputGrad: the full-convolution adjoint; routes output-space
	// gradients [N, K, HOut, WOut] back to input space [N, C, inH, inW].
	//
	// Conv2DKernelGrad: filter gradient; correlates input [N, C, H, W]
	// with gradients [N, K, HOut, WOut] -> [K, C, kernelH, kernelW].
	Conv2D(input, kernel *RawTensor, stride, padding int) *RawTensor
	Conv2DInputGrad(grad, kernel *RawTensor, inH, inW, stride, padding int) *RawTensor
	Conv2DKernelGrad(input, grad *RawTensor, kernelH, kernelW, stride, padding int) *RawTensor

	// Pooling
	MaxPool2D(input *RawTensor, kernelSize, stride int) *RawTensor
	MaxPool2DGrad(input, grad *RawTensor, kernelSize, stride int) *RawTensor

	// Shape operations
	Reshape(t *RawTensor, newShape Shape) *RawTensor
	Transpose(t *RawTensor, axes ...int) *RawTensor

	// Reduction operations
	Sum(x *RawTensor) *RawTensor                            // total sum (scalar result)
	SumDim(x *RawTensor, dim int, keepDim bool) *RawTensor  // sum along dimension
	MeanDim(x *RawTensor, dim int, keepDim bool) *RawTensor // mean along dimension

	// Metadata
	Name() string
	Device() Device
}
