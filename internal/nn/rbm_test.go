package nn

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-ml/strata/internal/backend/cpu"
	"github.com/strata-ml/strata/internal/tensor"
)

func TestDynRBM_InitLayer(t *testing.T) {
	rbm := NewDynRBM(cpu.New())
	require.NoError(t, rbm.InitLayer(6, 4))

	assert.True(t, rbm.Weights().Shape().Equal(tensor.Shape{6, 4}))
	assert.True(t, rbm.VisibleBiases().Shape().Equal(tensor.Shape{6}))
	assert.True(t, rbm.HiddenBiases().Shape().Equal(tensor.Shape{4}))
	assert.Equal(t, 24, rbm.ParameterCount())
	assert.Equal(t, "RBM(dyn): 6 -> SIGMOID -> 4", rbm.ShortString())

	caps := rbm.Caps()
	assert.True(t, caps.RBM)
	assert.True(t, caps.PretrainLast)
	assert.Equal(t, KindRBM, rbm.Kind())
}

func TestDynRBM_HiddenProbabilities(t *testing.T) {
	rng := rand.New(rand.NewSource(23))
	rbm := NewDynRBM(cpu.New(), WithRBMRand[*cpu.CPUBackend](rng))
	require.NoError(t, rbm.InitLayer(5, 3))

	in, err := tensor.NewRaw(tensor.Shape{5}, tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	for i := range in.AsFloat32() {
		in.AsFloat32()[i] = float32(rng.Float64())
	}

	out, err := tensor.NewRaw(tensor.Shape{3}, tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	require.NoError(t, rbm.ActivateHidden(out, in))

	// Sigmoid units stay in the open unit interval.
	for i, p := range out.AsFloat32() {
		assert.Greater(t, p, float32(0), "probability %d", i)
		assert.Less(t, p, float32(1), "probability %d", i)
	}
}

func TestDynRBM_ContrastiveDivergenceLearnsPattern(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	rbm := NewDynRBM(cpu.New(), WithRBMRand[*cpu.CPUBackend](rng))
	require.NoError(t, rbm.InitLayer(6, 4))

	// Two complementary binary patterns repeated across the batch.
	batch, err := tensor.NewRaw(tensor.Shape{4, 6}, tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	data := batch.AsFloat32()
	patterns := [][]float32{
		{1, 1, 1, 0, 0, 0},
		{0, 0, 0, 1, 1, 1},
	}
	for n := 0; n < 4; n++ {
		copy(data[n*6:(n+1)*6], patterns[n%2])
	}

	first, err := rbm.ContrastiveDivergence(batch, 0.1)
	require.NoError(t, err)
	assert.False(t, math.IsNaN(first), "reconstruction error must be finite")

	var last float64
	for epoch := 0; epoch < 300; epoch++ {
		last, err = rbm.ContrastiveDivergence(batch, 0.1)
		require.NoError(t, err)
	}

	assert.Less(t, last, first, "reconstruction error should drop with training")

	// A trained reconstruction stays a probability vector.
	recon, err := tensor.NewRaw(tensor.Shape{4, 6}, tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	require.NoError(t, rbm.Reconstruct(recon, batch))
	for _, p := range recon.AsFloat32() {
		assert.Greater(t, p, float32(0))
		assert.Less(t, p, float32(1))
	}
}

func TestDynRBM_BackupRestore(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	rbm := NewDynRBM(cpu.New(), WithRBMRand[*cpu.CPUBackend](rng))
	require.NoError(t, rbm.InitLayer(4, 3))

	snapshot := append([]float32(nil), rbm.Weights().AsFloat32()...)
	require.NoError(t, rbm.Backup())

	batch, err := tensor.NewRaw(tensor.Shape{2, 4}, tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	for i := range batch.AsFloat32() {
		batch.AsFloat32()[i] = float32(rng.Float64())
	}
	_, err = rbm.ContrastiveDivergence(batch, 0.5)
	require.NoError(t, err)

	require.NoError(t, rbm.Restore())
	assert.Equal(t, snapshot, append([]float32(nil), rbm.Weights().AsFloat32()...))
}
