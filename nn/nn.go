// Copyright 2026 Strata ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides the public API for the runtime-shaped layer
// library: layers whose dimensions are resolved at construction time
// through InitLayer, trained by error backpropagation against a
// borrowed SGDContext.
package nn

import (
	"math/rand"

	"github.com/strata-ml/strata/internal/nn"
	"github.com/strata-ml/strata/tensor"
)

// Layer is the surface every layer variant exposes to a container.
type Layer = nn.Layer

// LayerKind identifies the broad family a layer belongs to.
type LayerKind = nn.LayerKind

// Layer kinds.
const (
	KindDense     LayerKind = nn.KindDense
	KindConv      LayerKind = nn.KindConv
	KindDeconv    LayerKind = nn.KindDeconv
	KindRBM       LayerKind = nn.KindRBM
	KindPooling   LayerKind = nn.KindPooling
	KindUnpooling LayerKind = nn.KindUnpooling
	KindTransform LayerKind = nn.KindTransform
	KindPatches   LayerKind = nn.KindPatches
)

// Capabilities is the per-layer capability record a container reads to
// decide how to drive the layer.
type Capabilities = nn.Capabilities

// Parameter pairs a trainable tensor with its accumulated gradient.
type Parameter = nn.Parameter

// SGDContext is per-training-pass scratch storage sized to one layer.
type SGDContext = nn.SGDContext

// InputConverter adapts a foreign upstream representation to a layer's
// canonical input tensor.
type InputConverter = nn.InputConverter

// DefaultConverter handles raw tensors and flat float slices.
type DefaultConverter = nn.DefaultConverter

// Layer errors.
var (
	ErrInvalidShape        = nn.ErrInvalidShape
	ErrUninitialized       = nn.ErrUninitialized
	ErrShapeMismatch       = nn.ErrShapeMismatch
	ErrUnsupportedChannels = nn.ErrUnsupportedChannels
	ErrNoBackup            = nn.ErrNoBackup
)

// Activations

// Activation is an element-wise nonlinearity injected into a layer.
type Activation = nn.Activation

// Built-in activations.
type (
	Identity = nn.Identity
	Sigmoid  = nn.Sigmoid
	Tanh     = nn.Tanh
	ReLU     = nn.ReLU
	Softmax  = nn.Softmax
)

// Initializers

// Initializer fills a parameter tensor at layer initialization time.
type Initializer = nn.Initializer

// Built-in initializers.
type (
	Zero     = nn.Zero
	Gaussian = nn.Gaussian
	LeCun    = nn.LeCun
	Xavier   = nn.Xavier
	He       = nn.He
)

// Layers

// DynConv is a convolutional layer with runtime-resolved dimensions.
type DynConv[B tensor.Backend] = nn.DynConv[B]

// DynConvOption configures a DynConv at construction time.
type DynConvOption[B tensor.Backend] = nn.DynConvOption[B]

// NewDynConv creates an uninitialized dynamic convolutional layer.
//
// Example:
//
//	backend := cpu.New()
//	conv := nn.NewDynConv(backend, nn.WithActivation[*cpu.Backend](nn.ReLU{}))
//	err := conv.InitLayer(1, 28, 28, 6, 24, 24)
func NewDynConv[B tensor.Backend](backend B, opts ...DynConvOption[B]) *DynConv[B] {
	return nn.NewDynConv(backend, opts...)
}

// DynConv options.

// WithActivation selects the nonlinearity. Default is Sigmoid.
func WithActivation[B tensor.Backend](a Activation) DynConvOption[B] {
	return nn.WithActivation[B](a)
}

// WithWeightInit selects the weight initializer. Default is LeCun.
func WithWeightInit[B tensor.Backend](init Initializer) DynConvOption[B] {
	return nn.WithWeightInit[B](init)
}

// WithBiasInit selects the bias initializer. Default is Zero.
func WithBiasInit[B tensor.Backend](init Initializer) DynConvOption[B] {
	return nn.WithBiasInit[B](init)
}

// WithDType selects the element type. Default is Float32.
func WithDType[B tensor.Backend](dt tensor.DataType) DynConvOption[B] {
	return nn.WithDType[B](dt)
}

// WithConverter installs the converter used by ActivateHiddenFrom.
func WithConverter[B tensor.Backend](c InputConverter) DynConvOption[B] {
	return nn.WithConverter[B](c)
}

// DynDense is a fully connected layer with runtime-resolved sizes.
type DynDense[B tensor.Backend] = nn.DynDense[B]

// DynDenseOption configures a DynDense at construction time.
type DynDenseOption[B tensor.Backend] = nn.DynDenseOption[B]

// NewDynDense creates an uninitialized dense layer.
func NewDynDense[B tensor.Backend](backend B, opts ...DynDenseOption[B]) *DynDense[B] {
	return nn.NewDynDense(backend, opts...)
}

// WithDenseActivation selects the nonlinearity. Default is Sigmoid.
func WithDenseActivation[B tensor.Backend](a Activation) DynDenseOption[B] {
	return nn.WithDenseActivation[B](a)
}

// WithDenseWeightInit selects the weight initializer. Default is LeCun.
func WithDenseWeightInit[B tensor.Backend](init Initializer) DynDenseOption[B] {
	return nn.WithDenseWeightInit[B](init)
}

// WithDenseBiasInit selects the bias initializer. Default is Zero.
func WithDenseBiasInit[B tensor.Backend](init Initializer) DynDenseOption[B] {
	return nn.WithDenseBiasInit[B](init)
}

// WithDenseDType selects the element type. Default is Float32.
func WithDenseDType[B tensor.Backend](dt tensor.DataType) DynDenseOption[B] {
	return nn.WithDenseDType[B](dt)
}

// DynRBM is a restricted Boltzmann machine with runtime-resolved
// sizes, pretrained by CD-1 contrastive divergence.
type DynRBM[B tensor.Backend] = nn.DynRBM[B]

// DynRBMOption configures a DynRBM at construction time.
type DynRBMOption[B tensor.Backend] = nn.DynRBMOption[B]

// NewDynRBM creates an uninitialized RBM layer.
func NewDynRBM[B tensor.Backend](backend B, opts ...DynRBMOption[B]) *DynRBM[B] {
	return nn.NewDynRBM(backend, opts...)
}

// WithRBMWeightInit selects the weight initializer. Default is
// Gaussian(0, 0.01).
func WithRBMWeightInit[B tensor.Backend](init Initializer) DynRBMOption[B] {
	return nn.WithRBMWeightInit[B](init)
}

// WithRBMDType selects the element type. Default is Float32.
func WithRBMDType[B tensor.Backend](dt tensor.DataType) DynRBMOption[B] {
	return nn.WithRBMDType[B](dt)
}

// WithRBMRand injects the sampling source, for reproducible training.
func WithRBMRand[B tensor.Backend](r *rand.Rand) DynRBMOption[B] {
	return nn.WithRBMRand[B](r)
}

// DynMaxPool is a parameter-free max pooling layer.
type DynMaxPool[B tensor.Backend] = nn.DynMaxPool[B]

// NewDynMaxPool creates an uninitialized max pooling layer.
func NewDynMaxPool[B tensor.Backend](backend B) *DynMaxPool[B] {
	return nn.NewDynMaxPool[B](backend)
}

// Patches is a stateless transform splitting one single-channel image
// into fixed-size windows.
type Patches[B tensor.Backend] = nn.Patches[B]

// NewPatches creates a patch extraction layer.
//
// Example:
//
//	p, err := nn.NewPatches(backend, 3, 3, 2, 2)
//	patches, err := p.ActivateHidden(image)
func NewPatches[B tensor.Backend](backend B, height, width, vStride, hStride int) (*Patches[B], error) {
	return nn.NewPatches[B](backend, height, width, vStride, hStride)
}
