// Copyright 2026 Strata ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package optim provides the public API for gradient descent
// optimizers over layer parameters.
package optim

import (
	"github.com/strata-ml/strata/internal/optim"
	"github.com/strata-ml/strata/nn"
)

// Optimizer updates a fixed set of parameters from their accumulated
// gradients.
type Optimizer = optim.Optimizer

// SGD is stochastic gradient descent with optional momentum.
type SGD = optim.SGD

// NewSGD creates an SGD optimizer.
//
// Example:
//
//	conv := nn.NewDynConv(backend)
//	_ = conv.InitLayer(1, 28, 28, 6, 24, 24)
//	opt, err := optim.NewSGD(conv.Parameters(), 0.01, 0.9)
func NewSGD(params []*nn.Parameter, lr, momentum float64) (*SGD, error) {
	return optim.NewSGD(params, lr, momentum)
}
