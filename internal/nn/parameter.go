package nn

import "github.com/strata-ml/strata/internal/tensor"

// Parameter pairs a trainable tensor with its accumulated gradient.
// Layers own both tensors; optimizers read Grad and write Data.
type Parameter struct {
	Name string
	Data *tensor.RawTensor
	Grad *tensor.RawTensor
}

// ZeroGrad clears the accumulated gradient.
func (p *Parameter) ZeroGrad() {
	switch p.Grad.DType() {
	case tensor.Float32:
		data := p.Grad.AsFloat32()
		for i := range data {
			data[i] = 0
		}
	case tensor.Float64:
		data := p.Grad.AsFloat64()
		for i := range data {
			data[i] = 0
		}
	}
}
