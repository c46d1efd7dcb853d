package nn

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/strata-ml/strata/internal/backend/cpu"
	"github.com/strata-ml/strata/internal/tensor"
)

func newTestConv(t *testing.T, opts ...DynConvOption[*cpu.CPUBackend]) *DynConv[*cpu.CPUBackend] {
	t.Helper()
	return NewDynConv(cpu.New(), opts...)
}

func TestDynConv_InitLayer_Shapes(t *testing.T) {
	layer := newTestConv(t)

	if err := layer.InitLayer(3, 28, 28, 6, 24, 24); err != nil {
		t.Fatalf("InitLayer failed: %v", err)
	}

	// filter = in - out + 1 = 5
	wantW := tensor.Shape{6, 3, 5, 5}
	if !layer.Weights().Shape().Equal(wantW) {
		t.Errorf("Weights shape: expected %v, got %v", wantW, layer.Weights().Shape())
	}
	wantB := tensor.Shape{6}
	if !layer.Biases().Shape().Equal(wantB) {
		t.Errorf("Biases shape: expected %v, got %v", wantB, layer.Biases().Shape())
	}
}

func TestDynConv_Sizes(t *testing.T) {
	layer := newTestConv(t)
	if err := layer.InitLayer(3, 28, 28, 6, 24, 24); err != nil {
		t.Fatalf("InitLayer failed: %v", err)
	}

	if got := layer.InputSize(); got != 3*28*28 {
		t.Errorf("InputSize: expected %d, got %d", 3*28*28, got)
	}
	if got := layer.OutputSize(); got != 6*24*24 {
		t.Errorf("OutputSize: expected %d, got %d", 6*24*24, got)
	}
	// Filter spatial parameters only.
	if got := layer.ParameterCount(); got != 6*5*5 {
		t.Errorf("ParameterCount: expected %d, got %d", 6*5*5, got)
	}
}

func TestDynConv_ShortString(t *testing.T) {
	layer := newTestConv(t)
	if err := layer.InitLayer(1, 28, 28, 6, 24, 24); err != nil {
		t.Fatalf("InitLayer failed: %v", err)
	}

	want := "Conv(dyn): 1x28x28 -> (6x5x5) -> SIGMOID -> 6x24x24"
	if got := layer.ShortString(); got != want {
		t.Errorf("ShortString:\n  expected %q\n  got      %q", want, got)
	}
}

func TestDynConv_InitLayer_Rejections(t *testing.T) {
	layer := newTestConv(t)

	// Output larger than input.
	if err := layer.InitLayer(1, 4, 4, 1, 5, 5); !errors.Is(err, ErrInvalidShape) {
		t.Errorf("Expected ErrInvalidShape for out > in, got %v", err)
	}
	if err := layer.InitLayer(0, 4, 4, 1, 3, 3); !errors.Is(err, ErrInvalidShape) {
		t.Errorf("Expected ErrInvalidShape for zero channels, got %v", err)
	}
}

func TestDynConv_UninitializedUse(t *testing.T) {
	layer := newTestConv(t)

	out, _ := tensor.NewRaw(tensor.Shape{1, 3, 3}, tensor.Float32, tensor.CPU)
	in, _ := tensor.NewRaw(tensor.Shape{1, 4, 4}, tensor.Float32, tensor.CPU)

	if err := layer.ActivateHidden(out, in); !errors.Is(err, ErrUninitialized) {
		t.Errorf("ActivateHidden: expected ErrUninitialized, got %v", err)
	}
	if err := layer.Backup(); !errors.Is(err, ErrUninitialized) {
		t.Errorf("Backup: expected ErrUninitialized, got %v", err)
	}
	if _, err := layer.NewContext(1); !errors.Is(err, ErrUninitialized) {
		t.Errorf("NewContext: expected ErrUninitialized, got %v", err)
	}
}

func TestDynConv_ShapeMismatch(t *testing.T) {
	layer := newTestConv(t)
	if err := layer.InitLayer(1, 4, 4, 1, 3, 3); err != nil {
		t.Fatalf("InitLayer failed: %v", err)
	}

	out, _ := layer.PrepareOneOutput()
	wrong, _ := tensor.NewRaw(tensor.Shape{1, 5, 5}, tensor.Float32, tensor.CPU)

	if err := layer.ActivateHidden(out, wrong); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("Expected ErrShapeMismatch, got %v", err)
	}
}

func TestDynConv_ForwardKnownValues(t *testing.T) {
	layer := newTestConv(t,
		WithActivation[*cpu.CPUBackend](Identity{}),
		WithWeightInit[*cpu.CPUBackend](Zero{}))
	if err := layer.InitLayer(1, 3, 3, 1, 2, 2); err != nil {
		t.Fatalf("InitLayer failed: %v", err)
	}

	// Kernel 1 2 / 3 4, bias 0.5.
	for i := range layer.Weights().AsFloat32() {
		layer.Weights().AsFloat32()[i] = float32(i + 1)
	}
	layer.Biases().AsFloat32()[0] = 0.5

	in, _ := layer.PrepareInput()
	for i := range in.AsFloat32() {
		in.AsFloat32()[i] = float32(i + 1) // 1..9
	}

	out, _ := layer.PrepareOneOutput()
	if err := layer.ActivateHidden(out, in); err != nil {
		t.Fatalf("ActivateHidden failed: %v", err)
	}

	expected := []float32{37.5, 47.5, 67.5, 77.5}
	for i, want := range expected {
		if got := out.AsFloat32()[i]; got != want {
			t.Errorf("Output[%d]: expected %.1f, got %.1f", i, want, got)
		}
	}
}

func TestDynConv_BatchOfOneMatchesSingle(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	layer := newTestConv(t,
		WithActivation[*cpu.CPUBackend](Tanh{}),
		WithWeightInit[*cpu.CPUBackend](Gaussian{Stddev: 0.5, Rand: rng}))
	if err := layer.InitLayer(2, 6, 6, 3, 4, 4); err != nil {
		t.Fatalf("InitLayer failed: %v", err)
	}

	single, _ := layer.PrepareInput()
	for i := range single.AsFloat32() {
		single.AsFloat32()[i] = float32(rng.NormFloat64())
	}

	batch, _ := tensor.NewRaw(tensor.Shape{1, 2, 6, 6}, tensor.Float32, tensor.CPU)
	copy(batch.AsFloat32(), single.AsFloat32())

	singleOut, _ := layer.PrepareOneOutput()
	if err := layer.ActivateHidden(singleOut, single); err != nil {
		t.Fatalf("ActivateHidden failed: %v", err)
	}

	batchOut, _ := tensor.NewRaw(tensor.Shape{1, 3, 4, 4}, tensor.Float32, tensor.CPU)
	if err := layer.BatchActivateHidden(batchOut, batch); err != nil {
		t.Fatalf("BatchActivateHidden failed: %v", err)
	}

	for i := range singleOut.AsFloat32() {
		s := singleOut.AsFloat32()[i]
		b := batchOut.AsFloat32()[i]
		if diff := float64(s - b); diff > 1e-6 || diff < -1e-6 {
			t.Fatalf("Element %d: single %.8f vs batch %.8f", i, s, b)
		}
	}
}

func TestDynConv_ActivateHiddenFrom(t *testing.T) {
	layer := newTestConv(t,
		WithActivation[*cpu.CPUBackend](Identity{}),
		WithWeightInit[*cpu.CPUBackend](Zero{}))
	if err := layer.InitLayer(1, 3, 3, 1, 2, 2); err != nil {
		t.Fatalf("InitLayer failed: %v", err)
	}
	layer.Weights().AsFloat32()[0] = 1 // pick top-left of each patch

	flat := []float32{1, 2, 3, 4, 5, 6, 7, 8, 9}
	out, _ := layer.PrepareOneOutput()
	if err := layer.ActivateHiddenFrom(out, flat); err != nil {
		t.Fatalf("ActivateHiddenFrom failed: %v", err)
	}

	expected := []float32{1, 2, 4, 5}
	for i, want := range expected {
		if got := out.AsFloat32()[i]; got != want {
			t.Errorf("Output[%d]: expected %.1f, got %.1f", i, want, got)
		}
	}

	// Wrong element count is rejected.
	if err := layer.ActivateHiddenFrom(out, []float32{1, 2}); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("Expected ErrShapeMismatch, got %v", err)
	}
}

// TestDynConv_GradientCheck compares ComputeGradients against finite
// differences of a scalar loss on a small float64 layer.
func TestDynConv_GradientCheck(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	layer := newTestConv(t,
		WithDType[*cpu.CPUBackend](tensor.Float64),
		WithActivation[*cpu.CPUBackend](Sigmoid{}),
		WithWeightInit[*cpu.CPUBackend](Gaussian{Stddev: 0.5, Rand: rng}))
	if err := layer.InitLayer(1, 4, 4, 1, 3, 3); err != nil {
		t.Fatalf("InitLayer failed: %v", err)
	}

	ctx, err := layer.NewContext(1)
	if err != nil {
		t.Fatalf("NewContext failed: %v", err)
	}
	for i := range ctx.Input.AsFloat64() {
		ctx.Input.AsFloat64()[i] = rng.NormFloat64()
	}

	// Loss = sum of outputs, so dL/doutput is all ones.
	loss := func() float64 {
		if err := layer.BatchActivateHidden(ctx.Output, ctx.Input); err != nil {
			t.Fatalf("forward failed: %v", err)
		}
		var total float64
		for _, v := range ctx.Output.AsFloat64() {
			total += v
		}
		return total
	}

	loss()
	for i := range ctx.Errors.AsFloat64() {
		ctx.Errors.AsFloat64()[i] = 1
	}
	if err := layer.AdaptErrors(ctx); err != nil {
		t.Fatalf("AdaptErrors failed: %v", err)
	}
	if err := layer.ComputeGradients(ctx); err != nil {
		t.Fatalf("ComputeGradients failed: %v", err)
	}

	const eps = 1e-6
	const tol = 1e-4
	w := layer.Weights().AsFloat64()
	analytic := ctx.WGrad.AsFloat64()

	for i := range w {
		orig := w[i]
		w[i] = orig + eps
		plus := loss()
		w[i] = orig - eps
		minus := loss()
		w[i] = orig

		numeric := (plus - minus) / (2 * eps)
		if diff := math.Abs(numeric - analytic[i]); diff > tol {
			t.Errorf("Weight %d: numeric %.8f vs analytic %.8f (diff %.2e)", i, numeric, analytic[i], diff)
		}
	}
}

// TestDynConv_BiasGradient checks the documented reduction: sum over
// the batch, then mean over the spatial extent.
func TestDynConv_BiasGradient(t *testing.T) {
	layer := newTestConv(t, WithActivation[*cpu.CPUBackend](Identity{}))
	if err := layer.InitLayer(1, 4, 4, 2, 3, 3); err != nil {
		t.Fatalf("InitLayer failed: %v", err)
	}

	ctx, _ := layer.NewContext(2)
	errData := ctx.Errors.AsFloat32()
	// Filter 0 errors all 1, filter 1 errors all 2, both samples.
	for n := 0; n < 2; n++ {
		for i := 0; i < 9; i++ {
			errData[n*18+i] = 1
			errData[n*18+9+i] = 2
		}
	}

	if err := layer.ComputeGradients(ctx); err != nil {
		t.Fatalf("ComputeGradients failed: %v", err)
	}

	// Sum over 2 samples, mean over 9 positions: filter 0 -> 2, filter 1 -> 4.
	bg := ctx.BGrad.AsFloat32()
	if bg[0] != 2 || bg[1] != 4 {
		t.Errorf("BGrad: expected [2, 4], got %v", bg)
	}
}

// TestDynConv_BackwardBatch checks the propagated error against the
// full-mode adjoint computed by hand.
func TestDynConv_BackwardBatch(t *testing.T) {
	layer := newTestConv(t,
		WithActivation[*cpu.CPUBackend](Identity{}),
		WithWeightInit[*cpu.CPUBackend](Zero{}))
	if err := layer.InitLayer(1, 3, 3, 1, 2, 2); err != nil {
		t.Fatalf("InitLayer failed: %v", err)
	}
	for i := range layer.Weights().AsFloat32() {
		layer.Weights().AsFloat32()[i] = float32(i + 1) // 1 2 / 3 4
	}

	ctx, _ := layer.NewContext(1)
	for i := range ctx.Errors.AsFloat32() {
		ctx.Errors.AsFloat32()[i] = 1
	}

	prev, _ := tensor.NewRaw(tensor.Shape{1, 1, 3, 3}, tensor.Float32, tensor.CPU)
	if err := layer.BackwardBatch(prev, ctx); err != nil {
		t.Fatalf("BackwardBatch failed: %v", err)
	}

	expected := []float32{1, 3, 2, 4, 10, 6, 3, 7, 4}
	for i, want := range expected {
		if got := prev.AsFloat32()[i]; got != want {
			t.Errorf("Propagated[%d]: expected %.1f, got %.1f", i, want, got)
		}
	}
}

func TestDynConv_ReinitReplaces(t *testing.T) {
	layer := newTestConv(t)
	if err := layer.InitLayer(3, 28, 28, 6, 24, 24); err != nil {
		t.Fatalf("InitLayer failed: %v", err)
	}

	if err := layer.InitLayer(1, 8, 8, 2, 6, 6); err != nil {
		t.Fatalf("Re-init failed: %v", err)
	}

	wantW := tensor.Shape{2, 1, 3, 3}
	if !layer.Weights().Shape().Equal(wantW) {
		t.Errorf("Weights shape after re-init: expected %v, got %v", wantW, layer.Weights().Shape())
	}
	if layer.Weights().NumElements() != 18 {
		t.Errorf("Expected 18 weight elements, got %d", layer.Weights().NumElements())
	}
	if got := layer.OutputSize(); got != 2*6*6 {
		t.Errorf("OutputSize after re-init: expected %d, got %d", 2*6*6, got)
	}
}

func TestDynConv_BackupRestore(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	layer := newTestConv(t, WithWeightInit[*cpu.CPUBackend](Gaussian{Stddev: 1, Rand: rng}))
	if err := layer.InitLayer(1, 5, 5, 2, 4, 4); err != nil {
		t.Fatalf("InitLayer failed: %v", err)
	}

	// Restore without a backup fails.
	if err := layer.Restore(); !errors.Is(err, ErrNoBackup) {
		t.Errorf("Expected ErrNoBackup, got %v", err)
	}

	snapshotW := append([]float32(nil), layer.Weights().AsFloat32()...)
	snapshotB := append([]float32(nil), layer.Biases().AsFloat32()...)

	if err := layer.Backup(); err != nil {
		t.Fatalf("Backup failed: %v", err)
	}

	// Scramble everything.
	for i := range layer.Weights().AsFloat32() {
		layer.Weights().AsFloat32()[i] = float32(rng.NormFloat64())
	}
	for i := range layer.Biases().AsFloat32() {
		layer.Biases().AsFloat32()[i] = float32(rng.NormFloat64())
	}

	if err := layer.Restore(); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}

	for i, want := range snapshotW {
		if got := layer.Weights().AsFloat32()[i]; got != want {
			t.Fatalf("Weight %d: expected exact %v, got %v", i, want, got)
		}
	}
	for i, want := range snapshotB {
		if got := layer.Biases().AsFloat32()[i]; got != want {
			t.Fatalf("Bias %d: expected exact %v, got %v", i, want, got)
		}
	}
}

func TestDynConv_PrepareOutput(t *testing.T) {
	layer := newTestConv(t)
	if err := layer.InitLayer(1, 4, 4, 2, 3, 3); err != nil {
		t.Fatalf("InitLayer failed: %v", err)
	}

	outputs, err := layer.PrepareOutput(3)
	if err != nil {
		t.Fatalf("PrepareOutput failed: %v", err)
	}
	if len(outputs) != 3 {
		t.Fatalf("Expected 3 outputs, got %d", len(outputs))
	}

	want := tensor.Shape{2, 3, 3}
	for i, out := range outputs {
		if !out.Shape().Equal(want) {
			t.Errorf("Output %d shape: expected %v, got %v", i, want, out.Shape())
		}
	}

	// Independently owned.
	outputs[0].AsFloat32()[0] = 5
	if outputs[1].AsFloat32()[0] != 0 {
		t.Error("Prepared outputs should not share buffers")
	}
}

func TestDynConv_KindAndCaps(t *testing.T) {
	layer := newTestConv(t)

	if layer.Kind() != KindConv {
		t.Errorf("Expected KindConv, got %v", layer.Kind())
	}
	caps := layer.Caps()
	if !caps.Neural || !caps.Conv || !caps.Standard || !caps.Dynamic || !caps.SGDSupported {
		t.Errorf("Missing expected capability flags: %+v", caps)
	}
	if caps.Dense || caps.RBM || caps.Pooling || caps.Transform || caps.Patches {
		t.Errorf("Unexpected capability flags set: %+v", caps)
	}
}
