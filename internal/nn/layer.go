package nn

// LayerKind identifies the broad family a layer belongs to. Containers
// branch on the kind to pick a training strategy for the layer.
type LayerKind int

const (
	KindDense LayerKind = iota
	KindConv
	KindDeconv
	KindRBM
	KindPooling
	KindUnpooling
	KindTransform
	KindPatches
)

func (k LayerKind) String() string {
	switch k {
	case KindDense:
		return "dense"
	case KindConv:
		return "conv"
	case KindDeconv:
		return "deconv"
	case KindRBM:
		return "rbm"
	case KindPooling:
		return "pooling"
	case KindUnpooling:
		return "unpooling"
	case KindTransform:
		return "transform"
	case KindPatches:
		return "patches"
	default:
		return "unknown"
	}
}

// Capabilities is the per-layer capability record a container reads to
// decide how to drive the layer: which training passes apply, whether
// the layer carries trainable parameters, and whether its dimensions
// are resolved at runtime.
type Capabilities struct {
	Neural       bool // has weights transforming input to output
	Dense        bool // fully connected
	Conv         bool // convolutional
	Deconv       bool // deconvolutional
	Standard     bool // plain feed-forward (not an RBM variant)
	RBM          bool // restricted Boltzmann machine variant
	Pooling      bool // spatial downsampling
	Unpooling    bool // spatial upsampling
	Transform    bool // stateless data reshaping
	Patches      bool // patch extraction
	Dynamic      bool // dimensions resolved at runtime
	PretrainLast bool // participates as the last layer of pretraining
	SGDSupported bool // trainable by gradient descent
}

// Layer is the surface every layer variant exposes to a container.
// Forward, backward and gradient entry points are not part of this
// interface: their signatures differ per family and containers reach
// them through the concrete type after branching on Kind.
type Layer interface {
	// InputSize returns the flattened element count of one input sample.
	InputSize() int

	// OutputSize returns the flattened element count of one output
	// sample.
	OutputSize() int

	// ParameterCount returns the number of trainable parameters.
	ParameterCount() int

	// ShortString returns a one-line human-readable summary of the
	// layer's shape and activation.
	ShortString() string

	Kind() LayerKind
	Caps() Capabilities
}
