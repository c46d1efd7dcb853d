// Package optim provides gradient descent optimizers over layer
// parameters.
package optim

import "github.com/strata-ml/strata/internal/nn"

// Optimizer updates a fixed set of parameters from their accumulated
// gradients.
type Optimizer interface {
	// Step applies one update using the current gradients.
	Step() error

	// ZeroGrad clears every parameter gradient.
	ZeroGrad()

	// GetLR returns the current learning rate.
	GetLR() float64
}

// zeroAll clears the gradients of every parameter in the set.
func zeroAll(params []*nn.Parameter) {
	for _, p := range params {
		p.ZeroGrad()
	}
}
