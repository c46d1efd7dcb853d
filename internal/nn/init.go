package nn

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/strata-ml/strata/internal/tensor"
)

// Initializer fills a parameter tensor at layer initialization time.
// fanIn and fanOut are the layer's flattened input and output sizes,
// passed as hints for the variance-scaling schemes.
type Initializer interface {
	Init(w *tensor.RawTensor, fanIn, fanOut int)
	String() string
}

// Zero fills with zeros. The usual bias initializer.
type Zero struct{}

func (Zero) Init(w *tensor.RawTensor, _, _ int) {
	fillFromSource(w, func() float64 { return 0 })
}

func (Zero) String() string { return "zero" }

// Gaussian draws from a normal distribution with fixed mean and
// standard deviation, ignoring the fan hints.
type Gaussian struct {
	Mean   float64
	Stddev float64
	Rand   *rand.Rand // nil uses the global source
}

func (g Gaussian) Init(w *tensor.RawTensor, _, _ int) {
	fillFromSource(w, func() float64 { return g.Mean + g.Stddev*normFloat64(g.Rand) })
}

func (g Gaussian) String() string { return fmt.Sprintf("gaussian(%g,%g)", g.Mean, g.Stddev) }

// LeCun draws from N(0, 1/fanIn).
type LeCun struct {
	Rand *rand.Rand
}

func (l LeCun) Init(w *tensor.RawTensor, fanIn, _ int) {
	std := 1 / math.Sqrt(float64(fanIn))
	fillFromSource(w, func() float64 { return std * normFloat64(l.Rand) })
}

func (LeCun) String() string { return "lecun" }

// Xavier draws uniformly from [-limit, limit] with
// limit = sqrt(6 / (fanIn + fanOut)). Suited to sigmoid and tanh.
type Xavier struct {
	Rand *rand.Rand
}

func (x Xavier) Init(w *tensor.RawTensor, fanIn, fanOut int) {
	limit := math.Sqrt(6 / float64(fanIn+fanOut))
	fillFromSource(w, func() float64 { return limit * (2*float64r(x.Rand) - 1) })
}

func (Xavier) String() string { return "xavier" }

// He draws from N(0, 2/fanIn). Suited to relu.
type He struct {
	Rand *rand.Rand
}

func (h He) Init(w *tensor.RawTensor, fanIn, _ int) {
	std := math.Sqrt(2 / float64(fanIn))
	fillFromSource(w, func() float64 { return std * normFloat64(h.Rand) })
}

func (He) String() string { return "he" }

func fillFromSource(w *tensor.RawTensor, next func() float64) {
	switch w.DType() {
	case tensor.Float32:
		data := w.AsFloat32()
		for i := range data {
			data[i] = float32(next())
		}
	case tensor.Float64:
		data := w.AsFloat64()
		for i := range data {
			data[i] = next()
		}
	default:
		panic(fmt.Sprintf("init: unsupported dtype %s", w.DType()))
	}
}

func normFloat64(r *rand.Rand) float64 {
	if r != nil {
		return r.NormFloat64()
	}
	return rand.NormFloat64()
}

func float64r(r *rand.Rand) float64 {
	if r != nil {
		return r.Float64()
	}
	return rand.Float64()
}
