package optim

import (
	"fmt"

	"github.com/strata-ml/strata/internal/nn"
	"github.com/strata-ml/strata/internal/tensor"
)

// SGD is stochastic gradient descent with optional momentum:
//
//	v = momentum*v + grad
//	w = w - lr*v
//
// With zero momentum it degenerates to the plain update w -= lr*grad.
// The velocity buffers are lazily allocated on the first Step.
type SGD struct {
	params   []*nn.Parameter
	lr       float64
	momentum float64
	velocity [][]float64
}

// NewSGD creates an optimizer over the given parameters.
func NewSGD(params []*nn.Parameter, lr, momentum float64) (*SGD, error) {
	if lr <= 0 {
		return nil, fmt.Errorf("optim: learning rate must be positive, got %g", lr)
	}
	if momentum < 0 || momentum >= 1 {
		return nil, fmt.Errorf("optim: momentum must be in [0, 1), got %g", momentum)
	}
	return &SGD{params: params, lr: lr, momentum: momentum}, nil
}

// Step applies one descent update to every parameter.
func (s *SGD) Step() error {
	if s.velocity == nil {
		s.velocity = make([][]float64, len(s.params))
		for i, p := range s.params {
			s.velocity[i] = make([]float64, p.Data.NumElements())
		}
	}

	for i, p := range s.params {
		if p.Data.NumElements() != p.Grad.NumElements() {
			return fmt.Errorf("optim: parameter %q: data has %d elements, grad has %d",
				p.Name, p.Data.NumElements(), p.Grad.NumElements())
		}

		v := s.velocity[i]
		switch p.Data.DType() {
		case tensor.Float32:
			data := p.Data.AsFloat32()
			grad := p.Grad.AsFloat32()
			for j := range data {
				v[j] = s.momentum*v[j] + float64(grad[j])
				data[j] -= float32(s.lr * v[j])
			}
		case tensor.Float64:
			data := p.Data.AsFloat64()
			grad := p.Grad.AsFloat64()
			for j := range data {
				v[j] = s.momentum*v[j] + grad[j]
				data[j] -= s.lr * v[j]
			}
		default:
			return fmt.Errorf("optim: parameter %q: unsupported dtype %s", p.Name, p.Data.DType())
		}
	}
	return nil
}

// ZeroGrad clears every parameter gradient.
func (s *SGD) ZeroGrad() {
	zeroAll(s.params)
}

// GetLR returns the learning rate.
func (s *SGD) GetLR() float64 { return s.lr }

// SetLR replaces the learning rate.
func (s *SGD) SetLR(lr float64) { s.lr = lr }

var _ Optimizer = (*SGD)(nil)
