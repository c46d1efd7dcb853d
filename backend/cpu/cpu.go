// Copyright 2026 Strata ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package cpu

import (
	internalcpu "github.com/strata-ml/strata/internal/backend/cpu"
	"github.com/strata-ml/strata/tensor"
)

// Backend is the CPU backend implementation.
//
// Matrix products go through gonum's BLAS bindings; the convolution
// and pooling kernels are direct Go loops that split their outer
// iterations across goroutines.
type Backend = internalcpu.CPUBackend

// Compile-time check that Backend implements tensor.Backend.
var _ tensor.Backend = (*Backend)(nil)

// New creates a new CPU backend.
//
// Example:
//
//	backend := cpu.New()
//	x := tensor.Zeros[float32](tensor.Shape{2, 3}, backend)
func New() *Backend {
	return internalcpu.New()
}

// NewSequential creates a CPU backend with goroutine splitting
// disabled, for deterministic profiling and debugging.
func NewSequential() *Backend {
	return internalcpu.NewSequential()
}
