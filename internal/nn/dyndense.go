package nn

import (
	"fmt"

	"github.com/strata-ml/strata/internal/tensor"
)

// DynDense is a fully connected layer with runtime-resolved sizes. It
// shares the DynConv training protocol: forward activation into caller
// buffers, error adaptation, backward propagation and gradient
// accumulation against a borrowed SGDContext.
type DynDense[B tensor.Backend] struct {
	backend B
	dtype   tensor.DataType

	activation Activation
	weightInit Initializer
	biasInit   Initializer

	visible int
	hidden  int

	weights *tensor.RawTensor // [visible, hidden]
	biases  *tensor.RawTensor // [hidden]
	wGrad   *tensor.RawTensor
	bGrad   *tensor.RawTensor

	backupW *tensor.RawTensor
	backupB *tensor.RawTensor

	initialized bool
}

// DynDenseOption configures a DynDense at construction time.
type DynDenseOption[B tensor.Backend] func(*DynDense[B])

// WithDenseActivation selects the nonlinearity. Default is Sigmoid.
func WithDenseActivation[B tensor.Backend](a Activation) DynDenseOption[B] {
	return func(l *DynDense[B]) { l.activation = a }
}

// WithDenseWeightInit selects the weight initializer. Default is LeCun.
func WithDenseWeightInit[B tensor.Backend](init Initializer) DynDenseOption[B] {
	return func(l *DynDense[B]) { l.weightInit = init }
}

// WithDenseBiasInit selects the bias initializer. Default is Zero.
func WithDenseBiasInit[B tensor.Backend](init Initializer) DynDenseOption[B] {
	return func(l *DynDense[B]) { l.biasInit = init }
}

// WithDenseDType selects the element type. Default is Float32.
func WithDenseDType[B tensor.Backend](dt tensor.DataType) DynDenseOption[B] {
	return func(l *DynDense[B]) { l.dtype = dt }
}

// NewDynDense creates an uninitialized dense layer.
func NewDynDense[B tensor.Backend](backend B, opts ...DynDenseOption[B]) *DynDense[B] {
	l := &DynDense[B]{
		backend:    backend,
		dtype:      tensor.Float32,
		activation: Sigmoid{},
		weightInit: LeCun{},
		biasInit:   Zero{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// InitLayer sizes the layer for visible inputs and hidden outputs.
// Re-invocation fully replaces the previous parameters.
func (l *DynDense[B]) InitLayer(visible, hidden int) error {
	if visible <= 0 || hidden <= 0 {
		return fmt.Errorf("%w: sizes must be positive, got (%d, %d)", ErrInvalidShape, visible, hidden)
	}

	l.visible = visible
	l.hidden = hidden

	var err error
	if l.weights, err = tensor.NewRaw(tensor.Shape{visible, hidden}, l.dtype, l.backend.Device()); err != nil {
		return err
	}
	if l.biases, err = tensor.NewRaw(tensor.Shape{hidden}, l.dtype, l.backend.Device()); err != nil {
		return err
	}
	if l.wGrad, err = tensor.NewRaw(tensor.Shape{visible, hidden}, l.dtype, l.backend.Device()); err != nil {
		return err
	}
	if l.bGrad, err = tensor.NewRaw(tensor.Shape{hidden}, l.dtype, l.backend.Device()); err != nil {
		return err
	}

	l.weightInit.Init(l.weights, visible, hidden)
	l.biasInit.Init(l.biases, visible, hidden)

	l.backupW = nil
	l.backupB = nil
	l.initialized = true
	return nil
}

func (l *DynDense[B]) InputSize() int      { return l.visible }
func (l *DynDense[B]) OutputSize() int     { return l.hidden }
func (l *DynDense[B]) ParameterCount() int { return l.visible * l.hidden }

func (l *DynDense[B]) ShortString() string {
	return fmt.Sprintf("Dense(dyn): %d -> %s -> %d", l.visible, l.activation, l.hidden)
}

func (l *DynDense[B]) Kind() LayerKind { return KindDense }

func (l *DynDense[B]) Caps() Capabilities {
	return Capabilities{
		Neural:       true,
		Dense:        true,
		Standard:     true,
		Dynamic:      true,
		SGDSupported: true,
	}
}

func (l *DynDense[B]) Weights() *tensor.RawTensor { return l.weights }
func (l *DynDense[B]) Biases() *tensor.RawTensor  { return l.biases }

// Parameters returns the trainable parameters with their layer-owned
// gradient buffers.
func (l *DynDense[B]) Parameters() []*Parameter {
	return []*Parameter{
		{Name: "weights", Data: l.weights, Grad: l.wGrad},
		{Name: "biases", Data: l.biases, Grad: l.bGrad},
	}
}

// ActivateHidden computes act(input @ W + b) for one flat sample.
func (l *DynDense[B]) ActivateHidden(output, input *tensor.RawTensor) error {
	if !l.initialized {
		return fmt.Errorf("%w: ActivateHidden", ErrUninitialized)
	}
	if input.NumElements() != l.visible {
		return fmt.Errorf("%w: input has %d elements, want %d", ErrShapeMismatch, input.NumElements(), l.visible)
	}
	if output.NumElements() != l.hidden {
		return fmt.Errorf("%w: output has %d elements, want %d", ErrShapeMismatch, output.NumElements(), l.hidden)
	}

	row, err := input.View(tensor.Shape{1, l.visible})
	if err != nil {
		return err
	}
	return output.CopyFrom(l.forward(row))
}

// BatchActivateHidden computes the forward activation for a batch of
// flat samples, input [N, visible] into output [N, hidden].
func (l *DynDense[B]) BatchActivateHidden(output, input *tensor.RawTensor) error {
	if !l.initialized {
		return fmt.Errorf("%w: BatchActivateHidden", ErrUninitialized)
	}
	shape := input.Shape()
	if len(shape) != 2 || shape[1] != l.visible {
		return fmt.Errorf("%w: input shape %v, want [N %d]", ErrShapeMismatch, shape, l.visible)
	}
	if output.NumElements() != shape[0]*l.hidden {
		return fmt.Errorf("%w: output has %d elements, want %d",
			ErrShapeMismatch, output.NumElements(), shape[0]*l.hidden)
	}
	return output.CopyFrom(l.forward(input))
}

func (l *DynDense[B]) forward(input *tensor.RawTensor) *tensor.RawTensor {
	out := l.backend.MatMul(input, l.weights)
	out = l.backend.Add(out, l.biases)
	l.activation.Apply(out)
	return out
}

// NewContext allocates an SGDContext sized to this layer.
func (l *DynDense[B]) NewContext(batchSize int) (*SGDContext, error) {
	if !l.initialized {
		return nil, fmt.Errorf("%w: NewContext", ErrUninitialized)
	}
	if batchSize <= 0 {
		return nil, fmt.Errorf("%w: batch size %d", ErrInvalidShape, batchSize)
	}

	ctx := &SGDContext{}
	var err error
	if ctx.Input, err = tensor.NewRaw(tensor.Shape{batchSize, l.visible}, l.dtype, l.backend.Device()); err != nil {
		return nil, err
	}
	if ctx.Output, err = tensor.NewRaw(tensor.Shape{batchSize, l.hidden}, l.dtype, l.backend.Device()); err != nil {
		return nil, err
	}
	if ctx.Errors, err = tensor.NewRaw(tensor.Shape{batchSize, l.hidden}, l.dtype, l.backend.Device()); err != nil {
		return nil, err
	}
	if ctx.WGrad, err = tensor.NewRaw(tensor.Shape{l.visible, l.hidden}, l.dtype, l.backend.Device()); err != nil {
		return nil, err
	}
	if ctx.BGrad, err = tensor.NewRaw(tensor.Shape{l.hidden}, l.dtype, l.backend.Device()); err != nil {
		return nil, err
	}
	return ctx, nil
}

// AdaptErrors multiplies the error signal in place by the activation
// derivative at the stored output.
func (l *DynDense[B]) AdaptErrors(ctx *SGDContext) error {
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
	return ctx.Errors.CopyFrom(l.backend.Mul(ctx.Errors, deriv))
}

// BackwardBatch writes errors @ W^T into output, [N, visible].
func (l *DynDense[B]) BackwardBatch(output *tensor.RawTensor, ctx *SGDContext) error {
	if !l.initialized {
		return fmt.Errorf("%w: BackwardBatch", ErrUninitialized)
	}
	shape := ctx.Errors.Shape()
	if len(shape) != 2 || shape[1] != l.hidden {
		return fmt.Errorf("%w: errors shape %v, want [N %d]", ErrShapeMismatch, shape, l.hidden)
	}
	if output.NumElements() != shape[0]*l.visible {
		return fmt.Errorf("%w: output has %d elements, want %d",
			ErrShapeMismatch, output.NumElements(), shape[0]*l.visible)
	}

	wt := l.backend.Transpose(l.weights)
	return output.CopyFrom(l.backend.MatMul(ctx.Errors, wt))
}

// ComputeGradients fills the context with input^T @ errors for the
// weights and the batch mean of the errors for the biases.
func (l *DynDense[B]) ComputeGradients(ctx *SGDContext) error {
	if !l.initialized {
		return fmt.Errorf("%w: ComputeGradients", ErrUninitialized)
	}
	inShape := ctx.Input.Shape()
	errShape := ctx.Errors.Shape()
	if len(inShape) != 2 || len(errShape) != 2 || inShape[0] != errShape[0] {
		return fmt.Errorf("%w: input shape %v vs errors shape %v", ErrShapeMismatch, inShape, errShape)
	}

	it := l.backend.Transpose(ctx.Input)
	if err := ctx.WGrad.CopyFrom(l.backend.MatMul(it, ctx.Errors)); err != nil {
		return err
	}
	return ctx.BGrad.CopyFrom(l.backend.MeanDim(ctx.Errors, 0, false))
}

// AccumulateGradients adds the context's gradients into the layer-owned
// parameter gradient buffers.
func (l *DynDense[B]) AccumulateGradients(ctx *SGDContext) error {
	if !l.initialized {
		return fmt.Errorf("%w: AccumulateGradients", ErrUninitialized)
	}
	if err := l.wGrad.CopyFrom(l.backend.Add(l.wGrad, ctx.WGrad)); err != nil {
		return err
	}
	return l.bGrad.CopyFrom(l.backend.Add(l.bGrad, ctx.BGrad))
}

// Backup snapshots the current parameters.
func (l *DynDense[B]) Backup() error {
	if !l.initialized {
		return fmt.Errorf("%w: Backup", ErrUninitialized)
	}
	l.backupW = l.weights.Clone()
	l.backupB = l.biases.Clone()
	return nil
}

// Restore copies the backed-up parameters over the current ones.
func (l *DynDense[B]) Restore() error {
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
