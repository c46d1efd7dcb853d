package nn

import (
	"fmt"
	"math/rand"

	"github.com/strata-ml/strata/internal/tensor"
)

// DynRBM is a binary-binary restricted Boltzmann machine with
// runtime-resolved sizes, pretrained by one-step contrastive
// divergence. It shares the visible/hidden activation surface of the
// other layers so a container can stack it under standard layers.
type DynRBM[B tensor.Backend] struct {
	backend B
	dtype   tensor.DataType

	weightInit Initializer
	rng        *rand.Rand

	visible int
	hidden  int

	weights *tensor.RawTensor // [visible, hidden]
	vBias   *tensor.RawTensor // [visible]
	hBias   *tensor.RawTensor // [hidden]

	backupW  *tensor.RawTensor
	backupVB *tensor.RawTensor
	backupHB *tensor.RawTensor

	initialized bool
}

// DynRBMOption configures a DynRBM at construction time.
type DynRBMOption[B tensor.Backend] func(*DynRBM[B])

// WithRBMWeightInit selects the weight initializer. Default is
// Gaussian(0, 0.01), the usual RBM choice.
func WithRBMWeightInit[B tensor.Backend](init Initializer) DynRBMOption[B] {
	return func(l *DynRBM[B]) { l.weightInit = init }
}

// WithRBMDType selects the element type. Default is Float32.
func WithRBMDType[B tensor.Backend](dt tensor.DataType) DynRBMOption[B] {
	return func(l *DynRBM[B]) { l.dtype = dt }
}

// WithRBMRand injects the sampling source, for reproducible training.
// Default is the global source.
func WithRBMRand[B tensor.Backend](r *rand.Rand) DynRBMOption[B] {
	return func(l *DynRBM[B]) { l.rng = r }
}

// NewDynRBM creates an uninitialized RBM layer.
func NewDynRBM[B tensor.Backend](backend B, opts ...DynRBMOption[B]) *DynRBM[B] {
	l := &DynRBM[B]{
		backend:    backend,
		dtype:      tensor.Float32,
		weightInit: Gaussian{Stddev: 0.01},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// InitLayer sizes the machine for visible and hidden units. Both bias
// vectors start at zero.
func (l *DynRBM[B]) InitLayer(visible, hidden int) error {
	if visible <= 0 || hidden <= 0 {
		return fmt.Errorf("%w: sizes must be positive, got (%d, %d)", ErrInvalidShape, visible, hidden)
	}

	l.visible = visible
	l.hidden = hidden

	var err error
	if l.weights, err = tensor.NewRaw(tensor.Shape{visible, hidden}, l.dtype, l.backend.Device()); err != nil {
		return err
	}
	if l.vBias, err = tensor.NewRaw(tensor.Shape{visible}, l.dtype, l.backend.Device()); err != nil {
		return err
	}
	if l.hBias, err = tensor.NewRaw(tensor.Shape{hidden}, l.dtype, l.backend.Device()); err != nil {
		return err
	}

	l.weightInit.Init(l.weights, visible, hidden)

	l.backupW = nil
	l.backupVB = nil
	l.backupHB = nil
	l.initialized = true
	return nil
}

func (l *DynRBM[B]) InputSize() int      { return l.visible }
func (l *DynRBM[B]) OutputSize() int     { return l.hidden }
func (l *DynRBM[B]) ParameterCount() int { return l.visible * l.hidden }

func (l *DynRBM[B]) ShortString() string {
	return fmt.Sprintf("RBM(dyn): %d -> SIGMOID -> %d", l.visible, l.hidden)
}

func (l *DynRBM[B]) Kind() LayerKind { return KindRBM }

func (l *DynRBM[B]) Caps() Capabilities {
	return Capabilities{
		Neural:       true,
		Dense:        true,
		RBM:          true,
		Dynamic:      true,
		PretrainLast: true,
		SGDSupported: true,
	}
}

func (l *DynRBM[B]) Weights() *tensor.RawTensor       { return l.weights }
func (l *DynRBM[B]) VisibleBiases() *tensor.RawTensor { return l.vBias }
func (l *DynRBM[B]) HiddenBiases() *tensor.RawTensor  { return l.hBias }

// ActivateHidden writes the hidden unit probabilities
// sigmoid(input @ W + hBias) for one flat sample.
func (l *DynRBM[B]) ActivateHidden(output, input *tensor.RawTensor) error {
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
	return output.CopyFrom(l.hiddenProbs(row))
}

// BatchActivateHidden writes hidden probabilities for a batch,
// input [N, visible] into output [N, hidden].
func (l *DynRBM[B]) BatchActivateHidden(output, input *tensor.RawTensor) error {
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
	return output.CopyFrom(l.hiddenProbs(input))
}

func (l *DynRBM[B]) hiddenProbs(v *tensor.RawTensor) *tensor.RawTensor {
	h := l.backend.MatMul(v, l.weights)
	h = l.backend.Add(h, l.hBias)
	Sigmoid{}.Apply(h)
	return h
}

func (l *DynRBM[B]) visibleProbs(h *tensor.RawTensor) *tensor.RawTensor {
	v := l.backend.MatMul(h, l.backend.Transpose(l.weights))
	v = l.backend.Add(v, l.vBias)
	Sigmoid{}.Apply(v)
	return v
}

// Reconstruct writes the visible reconstruction probabilities for a
// batch [N, visible]: one hidden pass followed by one visible pass,
// both on probabilities.
func (l *DynRBM[B]) Reconstruct(output, input *tensor.RawTensor) error {
	if !l.initialized {
		return fmt.Errorf("%w: Reconstruct", ErrUninitialized)
	}
	shape := input.Shape()
	if len(shape) != 2 || shape[1] != l.visible {
		return fmt.Errorf("%w: input shape %v, want [N %d]", ErrShapeMismatch, shape, l.visible)
	}
	if output.NumElements() != input.NumElements() {
		return fmt.Errorf("%w: output has %d elements, want %d",
			ErrShapeMismatch, output.NumElements(), input.NumElements())
	}
	return output.CopyFrom(l.visibleProbs(l.hiddenProbs(input)))
}

// ContrastiveDivergence runs one CD-1 step on a batch of visible
// samples [N, visible] and returns the mean squared reconstruction
// error.
//
// Positive statistics use the hidden probabilities of the data; the
// negative phase reconstructs from a Bernoulli sample of those
// probabilities and takes one more hidden pass. Updates are averaged
// over the batch.
func (l *DynRBM[B]) ContrastiveDivergence(input *tensor.RawTensor, learningRate float64) (float64, error) {
	if !l.initialized {
		return 0, fmt.Errorf("%w: ContrastiveDivergence", ErrUninitialized)
	}
	shape := input.Shape()
	if len(shape) != 2 || shape[1] != l.visible {
		return 0, fmt.Errorf("%w: input shape %v, want [N %d]", ErrShapeMismatch, shape, l.visible)
	}
	n := shape[0]

	h0 := l.hiddenProbs(input)
	h0sample := h0.Clone()
	l.bernoulli(h0sample)

	v1 := l.visibleProbs(h0sample)
	h1 := l.hiddenProbs(v1)

	// Weight update: lr/N * (v0^T h0 - v1^T h1)
	pos := l.backend.MatMul(l.backend.Transpose(input), h0)
	neg := l.backend.MatMul(l.backend.Transpose(v1), h1)
	delta := l.backend.MulScalar(l.backend.Sub(pos, neg), l.scalar(learningRate/float64(n)))
	if err := l.weights.CopyFrom(l.backend.Add(l.weights, delta)); err != nil {
		return 0, err
	}

	// Bias updates: lr * mean over the batch of the phase difference.
	vDelta := l.backend.MulScalar(l.backend.MeanDim(l.backend.Sub(input, v1), 0, false), l.scalar(learningRate))
	if err := l.vBias.CopyFrom(l.backend.Add(l.vBias, vDelta)); err != nil {
		return 0, err
	}
	hDelta := l.backend.MulScalar(l.backend.MeanDim(l.backend.Sub(h0, h1), 0, false), l.scalar(learningRate))
	if err := l.hBias.CopyFrom(l.backend.Add(l.hBias, hDelta)); err != nil {
		return 0, err
	}

	diff := l.backend.Sub(input, v1)
	sq := l.backend.Mul(diff, diff)
	total := l.backend.Sum(sq)
	return l.scalarValue(total) / float64(input.NumElements()), nil
}

// bernoulli replaces each probability with a 0/1 sample in place.
func (l *DynRBM[B]) bernoulli(probs *tensor.RawTensor) {
	switch probs.DType() {
	case tensor.Float32:
		data := probs.AsFloat32()
		for i, p := range data {
			if float32(l.rand()) < p {
				data[i] = 1
			} else {
				data[i] = 0
			}
		}
	case tensor.Float64:
		data := probs.AsFloat64()
		for i, p := range data {
			if l.rand() < p {
				data[i] = 1
			} else {
				data[i] = 0
			}
		}
	}
}

func (l *DynRBM[B]) rand() float64 {
	if l.rng != nil {
		return l.rng.Float64()
	}
	return rand.Float64()
}

func (l *DynRBM[B]) scalar(v float64) any {
	if l.dtype == tensor.Float32 {
		return float32(v)
	}
	return v
}

func (l *DynRBM[B]) scalarValue(t *tensor.RawTensor) float64 {
	switch t.DType() {
	case tensor.Float32:
		return float64(t.AsFloat32()[0])
	default:
		return t.AsFloat64()[0]
	}
}

// Backup snapshots the weights and both bias vectors.
func (l *DynRBM[B]) Backup() error {
	if !l.initialized {
		return fmt.Errorf("%w: Backup", ErrUninitialized)
	}
	l.backupW = l.weights.Clone()
	l.backupVB = l.vBias.Clone()
	l.backupHB = l.hBias.Clone()
	return nil
}

// Restore returns the parameters to the last Backup state.
func (l *DynRBM[B]) Restore() error {
	if !l.initialized {
		return fmt.Errorf("%w: Restore", ErrUninitialized)
	}
	if l.backupW == nil {
		return ErrNoBackup
	}
	if err := l.weights.CopyFrom(l.backupW); err != nil {
		return err
	}
	if err := l.vBias.CopyFrom(l.backupVB); err != nil {
		return err
	}
	return l.hBias.CopyFrom(l.backupHB)
}
