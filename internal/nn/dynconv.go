package nn

import (
	"fmt"

	"github.com/strata-ml/strata/internal/tensor"
)

// DynConv is a convolutional layer whose dimensions are resolved at
// runtime through InitLayer. It owns its weight and bias tensors,
// performs valid cross-correlation forward activation (single sample
// and batched), propagates errors backward through the full-mode
// adjoint, and accumulates parameter gradients into a borrowed
// SGDContext.
//
// The filter spatial size is derived from the input and output extents:
// filterH = inH - outH + 1 (valid convolution, stride 1), and
// symmetrically for the width.
type DynConv[B tensor.Backend] struct {
	backend B
	dtype   tensor.DataType

	activation Activation
	weightInit Initializer
	biasInit   Initializer
	converter  InputConverter

	// Dimensions, all zero until InitLayer.
	channels int
	inH, inW int
	filters  int
	outH     int
	outW     int
	filterH  int
	filterW  int

	weights *tensor.RawTensor // [filters, channels, filterH, filterW]
	biases  *tensor.RawTensor // [filters]
	wGrad   *tensor.RawTensor
	bGrad   *tensor.RawTensor

	backupW *tensor.RawTensor
	backupB *tensor.RawTensor

	initialized bool
}

// DynConvOption configures a DynConv at construction time.
type DynConvOption[B tensor.Backend] func(*DynConv[B])

// WithActivation selects the nonlinearity applied after the linear
// step. Default is Sigmoid.
func WithActivation[B tensor.Backend](a Activation) DynConvOption[B] {
	return func(l *DynConv[B]) { l.activation = a }
}

// WithWeightInit selects the weight initializer. Default is LeCun.
func WithWeightInit[B tensor.Backend](init Initializer) DynConvOption[B] {
	return func(l *DynConv[B]) { l.weightInit = init }
}

// WithBiasInit selects the bias initializer. Default is Zero.
func WithBiasInit[B tensor.Backend](init Initializer) DynConvOption[B] {
	return func(l *DynConv[B]) { l.biasInit = init }
}

// WithDType selects the element type. Default is Float32.
func WithDType[B tensor.Backend](dt tensor.DataType) DynConvOption[B] {
	return func(l *DynConv[B]) { l.dtype = dt }
}

// WithConverter installs the converter used by ActivateHiddenFrom.
func WithConverter[B tensor.Backend](c InputConverter) DynConvOption[B] {
	return func(l *DynConv[B]) { l.converter = c }
}

// NewDynConv creates an uninitialized dynamic convolutional layer. The
// layer is unusable until InitLayer is called.
func NewDynConv[B tensor.Backend](backend B, opts ...DynConvOption[B]) *DynConv[B] {
	l := &DynConv[B]{
		backend:    backend,
		dtype:      tensor.Float32,
		activation: Sigmoid{},
		weightInit: LeCun{},
		biasInit:   Zero{},
		converter:  DefaultConverter{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// InitLayer sizes the layer for the given dimensions, allocating and
// initializing weights and biases. Calling it again fully replaces the
// previous parameters; nothing carries over across calls.
func (l *DynConv[B]) InitLayer(channels, inH, inW, filters, outH, outW int) error {
	if channels <= 0 || inH <= 0 || inW <= 0 || filters <= 0 || outH <= 0 || outW <= 0 {
		return fmt.Errorf("%w: dimensions must be positive, got (%d, %d, %d, %d, %d, %d)",
			ErrInvalidShape, channels, inH, inW, filters, outH, outW)
	}
	if outH > inH || outW > inW {
		return fmt.Errorf("%w: output %dx%d exceeds input %dx%d", ErrInvalidShape, outH, outW, inH, inW)
	}

	l.channels = channels
	l.inH = inH
	l.inW = inW
	l.filters = filters
	l.outH = outH
	l.outW = outW
	l.filterH = inH - outH + 1
	l.filterW = inW - outW + 1

	var err error
	l.weights, err = tensor.NewRaw(tensor.Shape{filters, channels, l.filterH, l.filterW}, l.dtype, l.backend.Device())
	if err != nil {
		return err
	}
	l.biases, err = tensor.NewRaw(tensor.Shape{filters}, l.dtype, l.backend.Device())
	if err != nil {
		return err
	}
	l.wGrad, err = tensor.NewRaw(tensor.Shape{filters, channels, l.filterH, l.filterW}, l.dtype, l.backend.Device())
	if err != nil {
		return err
	}
	l.bGrad, err = tensor.NewRaw(tensor.Shape{filters}, l.dtype, l.backend.Device())
	if err != nil {
		return err
	}

	l.weightInit.Init(l.weights, l.InputSize(), l.OutputSize())
	l.biasInit.Init(l.biases, l.InputSize(), l.OutputSize())

	l.backupW = nil
	l.backupB = nil
	l.initialized = true
	return nil
}

// InputSize returns channels * inH * inW.
func (l *DynConv[B]) InputSize() int { return l.channels * l.inH * l.inW }

// OutputSize returns filters * outH * outW.
func (l *DynConv[B]) OutputSize() int { return l.filters * l.outH * l.outW }

// ParameterCount returns filters * filterH * filterW. Channel depth and
// bias parameters are excluded from this count.
func (l *DynConv[B]) ParameterCount() int { return l.filters * l.filterH * l.filterW }

// ShortString returns a one-line summary such as
// "Conv(dyn): 1x28x28 -> (6x5x5) -> SIGMOID -> 6x24x24".
func (l *DynConv[B]) ShortString() string {
	return fmt.Sprintf("Conv(dyn): %dx%dx%d -> (%dx%dx%d) -> %s -> %dx%dx%d",
		l.channels, l.inH, l.inW,
		l.filters, l.filterH, l.filterW,
		l.activation,
		l.filters, l.outH, l.outW)
}

func (l *DynConv[B]) Kind() LayerKind { return KindConv }

func (l *DynConv[B]) Caps() Capabilities {
	return Capabilities{
		Neural:       true,
		Conv:         true,
		Standard:     true,
		Dynamic:      true,
		SGDSupported: true,
	}
}

// Weights returns the layer's weight tensor, [filters, channels,
// filterH, filterW]. Mutating it changes the layer.
func (l *DynConv[B]) Weights() *tensor.RawTensor { return l.weights }

// Biases returns the layer's bias vector, [filters].
func (l *DynConv[B]) Biases() *tensor.RawTensor { return l.biases }

// Parameters returns the trainable parameters with their layer-owned
// gradient buffers, for handing to an optimizer.
func (l *DynConv[B]) Parameters() []*Parameter {
	return []*Parameter{
		{Name: "weights", Data: l.weights, Grad: l.wGrad},
		{Name: "biases", Data: l.biases, Grad: l.bGrad},
	}
}

// ActivateHidden computes the forward activation of one sample.
// input is [channels, inH, inW]; the result is written into output,
// which must hold filters * outH * outW elements.
func (l *DynConv[B]) ActivateHidden(output, input *tensor.RawTensor) error {
	if !l.initialized {
		return fmt.Errorf("%w: ActivateHidden", ErrUninitialized)
	}
	want := tensor.Shape{l.channels, l.inH, l.inW}
	if !input.Shape().Equal(want) {
		return fmt.Errorf("%w: input shape %v, want %v", ErrShapeMismatch, input.Shape(), want)
	}
	if output.NumElements() != l.OutputSize() {
		return fmt.Errorf("%w: output has %d elements, want %d", ErrShapeMismatch, output.NumElements(), l.OutputSize())
	}

	batched, err := input.View(tensor.Shape{1, l.channels, l.inH, l.inW})
	if err != nil {
		return err
	}
	result := l.forward(batched)
	return output.CopyFrom(result)
}

// ActivateHiddenFrom accepts an input in a foreign representation,
// converts it to the canonical input shape and dispatches to
// ActivateHidden.
func (l *DynConv[B]) ActivateHiddenFrom(output *tensor.RawTensor, input any) error {
	if !l.initialized {
		return fmt.Errorf("%w: ActivateHiddenFrom", ErrUninitialized)
	}
	canonical, err := l.converter.Convert(input, tensor.Shape{l.channels, l.inH, l.inW}, l.dtype)
	if err != nil {
		return err
	}
	return l.ActivateHidden(output, canonical)
}

// BatchActivateHidden computes the forward activation of a batch.
// input is [N, channels, inH, inW] and output [N, filters, outH, outW].
// For N = 1 the result matches ActivateHidden element for element.
func (l *DynConv[B]) BatchActivateHidden(output, input *tensor.RawTensor) error {
	if !l.initialized {
		return fmt.Errorf("%w: BatchActivateHidden", ErrUninitialized)
	}
	shape := input.Shape()
	if len(shape) != 4 || shape[1] != l.channels || shape[2] != l.inH || shape[3] != l.inW {
		return fmt.Errorf("%w: input shape %v, want [N %d %d %d]",
			ErrShapeMismatch, shape, l.channels, l.inH, l.inW)
	}
	if output.NumElements() != shape[0]*l.OutputSize() {
		return fmt.Errorf("%w: output has %d elements, want %d",
			ErrShapeMismatch, output.NumElements(), shape[0]*l.OutputSize())
	}

	result := l.forward(input)
	return output.CopyFrom(result)
}

// forward runs the three-step pipeline on a batched input: valid
// cross-correlation, bias broadcast over batch and spatial extents,
// then the activation.
func (l *DynConv[B]) forward(input *tensor.RawTensor) *tensor.RawTensor {
	conv := l.backend.Conv2D(input, l.weights, 1, 0)

	// Bias viewed as [filters, 1, 1] broadcasts over [N, filters, outH, outW].
	bias, err := l.biases.View(tensor.Shape{l.filters, 1, 1})
	if err != nil {
		panic(fmt.Sprintf("dynconv: bias view: %v", err))
	}
	result := l.backend.Add(conv, bias)

	l.activation.Apply(result)
	return result
}

// PrepareInput returns a zeroed tensor shaped to one input sample.
func (l *DynConv[B]) PrepareInput() (*tensor.RawTensor, error) {
	if !l.initialized {
		return nil, fmt.Errorf("%w: PrepareInput", ErrUninitialized)
	}
	return tensor.NewRaw(tensor.Shape{l.channels, l.inH, l.inW}, l.dtype, l.backend.Device())
}

// PrepareOneOutput returns a zeroed tensor shaped to one output sample.
func (l *DynConv[B]) PrepareOneOutput() (*tensor.RawTensor, error) {
	if !l.initialized {
		return nil, fmt.Errorf("%w: PrepareOneOutput", ErrUninitialized)
	}
	return tensor.NewRaw(tensor.Shape{l.filters, l.outH, l.outW}, l.dtype, l.backend.Device())
}

// PrepareOutput returns samples independently owned output tensors.
func (l *DynConv[B]) PrepareOutput(samples int) ([]*tensor.RawTensor, error) {
	if !l.initialized {
		return nil, fmt.Errorf("%w: PrepareOutput", ErrUninitialized)
	}
	out := make([]*tensor.RawTensor, samples)
	for i := range out {
		t, err := l.PrepareOneOutput()
		if err != nil {
			return nil, err
		}
		out[i] = t
	}
	return out, nil
}

// NewContext allocates an SGDContext sized to this layer for the given
// batch size.
func (l *DynConv[B]) NewContext(batchSize int) (*SGDContext, error) {
	if !l.initialized {
		return nil, fmt.Errorf("%w: NewContext", ErrUninitialized)
	}
	if batchSize <= 0 {
		return nil, fmt.Errorf("%w: batch size %d", ErrInvalidShape, batchSize)
	}

	ctx := &SGDContext{}
	var err error
	if ctx.Input, err = tensor.NewRaw(tensor.Shape{batchSize, l.channels, l.inH, l.inW}, l.dtype, l.backend.Device()); err != nil {
		return nil, err
	}
	if ctx.Output, err = tensor.NewRaw(tensor.Shape{batchSize, l.filters, l.outH, l.outW}, l.dtype, l.backend.Device()); err != nil {
		return nil, err
	}
	if ctx.Errors, err = tensor.NewRaw(tensor.Shape{batchSize, l.filters, l.outH, l.outW}, l.dtype, l.backend.Device()); err != nil {
		return nil, err
	}
	if ctx.WGrad, err = tensor.NewRaw(tensor.Shape{l.filters, l.channels, l.filterH, l.filterW}, l.dtype, l.backend.Device()); err != nil {
		return nil, err
	}
	if ctx.BGrad, err = tensor.NewRaw(tensor.Shape{l.filters}, l.dtype, l.backend.Device()); err != nil {
		return nil, err
	}
	return ctx, nil
}

// AdaptErrors multiplies the context's error signal in place by the
// activation derivative evaluated at the stored output, applying the
// chain rule through the nonlinearity.
func (l *DynConv[B]) AdaptErrors(ctx *SGDContext) error {
	if !l.initialized {
		return fmt.Errorf("%w: AdaptErrors", ErrUninitialized)
	}
	if !ctx.Errors.Shape().Equal(ctx.Output.Shape()) {
		return fmt.Errorf("%w: errors shape %v, output shape %v",
			ErrShapeMismatch, ctx.Errors.Shape(), ctx.Output.Shape())
	}
	if _, ok := l.activation.(Identity); ok {
		return nil
	}

	deriv := l.activation.Derivative(ctx.Output)
	adjusted := l.backend.Mul(ctx.Errors, deriv)
	return ctx.Errors.CopyFrom(adjusted)
}

// BackwardBatch computes the error to hand to the previous layer: the
// full-mode adjoint of the forward convolution applied to the adjusted
// error signal. output must hold N * channels * inH * inW elements.
func (l *DynConv[B]) BackwardBatch(output *tensor.RawTensor, ctx *SGDContext) error {
	if !l.initialized {
		return fmt.Errorf("%w: BackwardBatch", ErrUninitialized)
	}
	shape := ctx.Errors.Shape()
	if len(shape) != 4 || shape[1] != l.filters || shape[2] != l.outH || shape[3] != l.outW {
		return fmt.Errorf("%w: errors shape %v, want [N %d %d %d]",
			ErrShapeMismatch, shape, l.filters, l.outH, l.outW)
	}
	if output.NumElements() != shape[0]*l.InputSize() {
		return fmt.Errorf("%w: output has %d elements, want %d",
			ErrShapeMismatch, output.NumElements(), shape[0]*l.InputSize())
	}

	result := l.backend.Conv2DInputGrad(ctx.Errors, l.weights, l.inH, l.inW, 1, 0)
	return output.CopyFrom(result)
}

// ComputeGradients accumulates the parameter gradients into the
// context: the weight gradient as the valid filter-convolution of the
// stored input with the adjusted errors, and the bias gradient as the
// per-filter error summed over the batch then averaged over the
// spatial extent.
func (l *DynConv[B]) ComputeGradients(ctx *SGDContext) error {
	if !l.initialized {
		return fmt.Errorf("%w: ComputeGradients", ErrUninitialized)
	}
	inShape := ctx.Input.Shape()
	errShape := ctx.Errors.Shape()
	if len(inShape) != 4 || len(errShape) != 4 || inShape[0] != errShape[0] {
		return fmt.Errorf("%w: input shape %v vs errors shape %v", ErrShapeMismatch, inShape, errShape)
	}

	wg := l.backend.Conv2DKernelGrad(ctx.Input, ctx.Errors, l.filterH, l.filterW, 1, 0)
	if err := ctx.WGrad.CopyFrom(wg); err != nil {
		return err
	}

	// [N, filters, outH, outW] -> sum batch -> mean spatial -> [filters]
	bg := l.backend.SumDim(ctx.Errors, 0, false)
	bg = l.backend.MeanDim(bg, 2, false)
	bg = l.backend.MeanDim(bg, 1, false)
	return ctx.BGrad.CopyFrom(bg)
}

// AccumulateGradients adds the context's gradients into the layer-owned
// parameter gradient buffers read by optimizers.
func (l *DynConv[B]) AccumulateGradients(ctx *SGDContext) error {
	if !l.initialized {
		return fmt.Errorf("%w: AccumulateGradients", ErrUninitialized)
	}
	if err := l.wGrad.CopyFrom(l.backend.Add(l.wGrad, ctx.WGrad)); err != nil {
		return err
	}
	return l.bGrad.CopyFrom(l.backend.Add(l.bGrad, ctx.BGrad))
}

// Backup snapshots the current weights and biases. A later Restore
// returns the parameters to this exact state.
func (l *DynConv[B]) Backup() error {
	if !l.initialized {
		return fmt.Errorf("%w: Backup", ErrUninitialized)
	}
	l.backupW = l.weights.Clone()
	l.backupB = l.biases.Clone()
	return nil
}

// Restore copies the backed-up parameters over the current ones. It
// fails with ErrNoBackup when Backup was never called.
func (l *DynConv[B]) Restore() error {
	if !l.initialized {
		return fmt.Errorf("%w: Restore", ErrUninitialized)
	}
	if l.backupW == nil || l.backupB == nil {
		return ErrNoBackup
	}
	if err := l.weights.CopyFrom(l.backupW); err != nil {
		return err
	}
	return l.biases.CopyFrom(l.backupB)
}
