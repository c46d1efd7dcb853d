package nn

import "errors"

// Layer errors are programmer-error classes, not transient faults.
// They fail fast at the API boundary; nothing retries and nothing
// degrades numerically.
var (
	// ErrInvalidShape reports dimension arguments that cannot describe a
	// valid layer, such as an output extent larger than the input.
	ErrInvalidShape = errors.New("nn: invalid shape")

	// ErrUninitialized reports a forward, backward or gradient call made
	// before InitLayer.
	ErrUninitialized = errors.New("nn: layer not initialized")

	// ErrShapeMismatch reports a tensor whose dimensions disagree with
	// the layer's configured shape.
	ErrShapeMismatch = errors.New("nn: shape mismatch")

	// ErrUnsupportedChannels reports a multi-channel input given to a
	// layer that only handles single-channel images.
	ErrUnsupportedChannels = errors.New("nn: unsupported channel count")

	// ErrNoBackup reports a Restore call with no prior Backup.
	ErrNoBackup = errors.New("nn: no parameter backup taken")
)
