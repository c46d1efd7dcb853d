package nn

import "github.com/strata-ml/strata/internal/tensor"

// SGDContext is per-training-pass scratch storage sized to one layer's
// dimensions. Layers borrow the context through their backward and
// gradient methods and mutate its fields; the training driver owns its
// lifetime and may reuse it across passes.
type SGDContext struct {
	// Input is the forward input snapshot, [N, ...input dims].
	Input *tensor.RawTensor

	// Output is the post-activation forward output, [N, ...output dims].
	Output *tensor.RawTensor

	// Errors is the propagated error signal, shaped like Output. It is
	// filled by the downstream layer (or the loss), adjusted in place by
	// AdaptErrors, and consumed by BackwardBatch and ComputeGradients.
	Errors *tensor.RawTensor

	// WGrad and BGrad receive the accumulated parameter gradients,
	// shaped like the layer's weights and biases.
	WGrad *tensor.RawTensor
	BGrad *tensor.RawTensor
}
