package nn

import (
	"fmt"

	"github.com/strata-ml/strata/internal/tensor"
)

// DynMaxPool is a parameter-free max pooling layer with
// runtime-resolved dimensions. The pooling window and stride are equal,
// so the spatial extent shrinks by the pool factor.
type DynMaxPool[B tensor.Backend] struct {
	backend B
	dtype   tensor.DataType

	channels int
	inH, inW int
	pool     int
	outH     int
	outW     int

	initialized bool
}

// NewDynMaxPool creates an uninitialized max pooling layer.
func NewDynMaxPool[B tensor.Backend](backend B) *DynMaxPool[B] {
	return &DynMaxPool[B]{backend: backend, dtype: tensor.Float32}
}

// SetDType selects the element type before InitLayer. Default Float32.
func (l *DynMaxPool[B]) SetDType(dt tensor.DataType) { l.dtype = dt }

// InitLayer sizes the layer. The pool factor must divide both spatial
// extents so every input element belongs to exactly one window.
func (l *DynMaxPool[B]) InitLayer(channels, inH, inW, pool int) error {
	if channels <= 0 || inH <= 0 || inW <= 0 || pool <= 0 {
		return fmt.Errorf("%w: dimensions must be positive, got (%d, %d, %d, %d)",
			ErrInvalidShape, channels, inH, inW, pool)
	}
	if inH%pool != 0 || inW%pool != 0 {
		return fmt.Errorf("%w: pool %d does not divide input %dx%d", ErrInvalidShape, pool, inH, inW)
	}

	l.channels = channels
	l.inH = inH
	l.inW = inW
	l.pool = pool
	l.outH = inH / pool
	l.outW = inW / pool
	l.initialized = true
	return nil
}

func (l *DynMaxPool[B]) InputSize() int      { return l.channels * l.inH * l.inW }
func (l *DynMaxPool[B]) OutputSize() int     { return l.channels * l.outH * l.outW }
func (l *DynMaxPool[B]) ParameterCount() int { return 0 }

func (l *DynMaxPool[B]) ShortString() string {
	return fmt.Sprintf("MP(dyn): %dx%dx%d -> (%dx%d) -> %dx%dx%d",
		l.channels, l.inH, l.inW, l.pool, l.pool, l.channels, l.outH, l.outW)
}

func (l *DynMaxPool[B]) Kind() LayerKind { return KindPooling }

func (l *DynMaxPool[B]) Caps() Capabilities {
	return Capabilities{
		Pooling:      true,
		Dynamic:      true,
		SGDSupported: true,
	}
}

// ActivateHidden pools one sample [channels, inH, inW] into output.
func (l *DynMaxPool[B]) ActivateHidden(output, input *tensor.RawTensor) error {
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
	return output.CopyFrom(l.backend.MaxPool2D(batched, l.pool, l.pool))
}

// BatchActivateHidden pools a batch [N, channels, inH, inW].
func (l *DynMaxPool[B]) BatchActivateHidden(output, input *tensor.RawTensor) error {
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
	return output.CopyFrom(l.backend.MaxPool2D(input, l.pool, l.pool))
}

// NewContext allocates scratch for backward passes. The gradient
// fields stay nil: the layer has no parameters.
func (l *DynMaxPool[B]) NewContext(batchSize int) (*SGDContext, error) {
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
	if ctx.Output, err = tensor.NewRaw(tensor.Shape{batchSize, l.channels, l.outH, l.outW}, l.dtype, l.backend.Device()); err != nil {
		return nil, err
	}
	if ctx.Errors, err = tensor.NewRaw(tensor.Shape{batchSize, l.channels, l.outH, l.outW}, l.dtype, l.backend.Device()); err != nil {
		return nil, err
	}
	return ctx, nil
}

// AdaptErrors is a no-op: pooling applies no nonlinearity.
func (l *DynMaxPool[B]) AdaptErrors(*SGDContext) error {
	if !l.initialized {
		return fmt.Errorf("%w: AdaptErrors", ErrUninitialized)
	}
	return nil
}

// BackwardBatch routes each pooled error back to the input position
// that won the window, recomputed from the stored input.
func (l *DynMaxPool[B]) BackwardBatch(output *tensor.RawTensor, ctx *SGDContext) error {
	if !l.initialized {
		return fmt.Errorf("%w: BackwardBatch", ErrUninitialized)
	}
	shape := ctx.Errors.Shape()
	if len(shape) != 4 || shape[1] != l.channels || shape[2] != l.outH || shape[3] != l.outW {
		return fmt.Errorf("%w: errors shape %v, want [N %d %d %d]",
			ErrShapeMismatch, shape, l.channels, l.outH, l.outW)
	}
	if output.NumElements() != shape[0]*l.InputSize() {
		return fmt.Errorf("%w: output has %d elements, want %d",
			ErrShapeMismatch, output.NumElements(), shape[0]*l.InputSize())
	}
	return output.CopyFrom(l.backend.MaxPool2DGrad(ctx.Input, ctx.Errors, l.pool, l.pool))
}
