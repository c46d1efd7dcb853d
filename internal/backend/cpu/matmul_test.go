package cpu

import (
	"testing"

	"github.com/strata-ml/strata/internal/tensor"
)

func TestMatMul_Basic(t *testing.T) {
	backend := New()

	// [2,3] @ [3,2]
	a, _ := tensor.NewRaw(tensor.Shape{2, 3}, tensor.Float32, tensor.CPU)
	for i := range a.AsFloat32() {
		a.AsFloat32()[i] = float32(i + 1) // 1..6
	}
	b, _ := tensor.NewRaw(tensor.Shape{3, 2}, tensor.Float32, tensor.CPU)
	for i := range b.AsFloat32() {
		b.AsFloat32()[i] = float32(i + 1) // 1..6
	}

	c := backend.MatMul(a, b)

	if !c.Shape().Equal(tensor.Shape{2, 2}) {
		t.Fatalf("Expected shape [2,2], got %v", c.Shape())
	}

	// [1 2 3]   [1 2]   [22 28]
	// [4 5 6] @ [3 4] = [49 64]
	//           [5 6]
	expected := []float32{22, 28, 49, 64}
	for i, want := range expected {
		if got := c.AsFloat32()[i]; got != want {
			t.Errorf("C[%d]: expected %.1f, got %.1f", i, want, got)
		}
	}
}

func TestMatMul_Float64(t *testing.T) {
	backend := New()

	a, _ := tensor.NewRaw(tensor.Shape{1, 2}, tensor.Float64, tensor.CPU)
	a.AsFloat64()[0] = 1.5
	a.AsFloat64()[1] = -2

	b, _ := tensor.NewRaw(tensor.Shape{2, 1}, tensor.Float64, tensor.CPU)
	b.AsFloat64()[0] = 4
	b.AsFloat64()[1] = 0.5

	c := backend.MatMul(a, b)
	if got := c.AsFloat64()[0]; got != 5 {
		t.Errorf("Expected 5, got %f", got)
	}
}

func TestMatMul_DimensionMismatchPanics(t *testing.T) {
	backend := New()

	a, _ := tensor.NewRaw(tensor.Shape{2, 3}, tensor.Float32, tensor.CPU)
	b, _ := tensor.NewRaw(tensor.Shape{2, 2}, tensor.Float32, tensor.CPU)

	defer func() {
		if recover() == nil {
			t.Error("Expected panic for inner dimension mismatch")
		}
	}()
	backend.MatMul(a, b)
}

func TestTranspose_2D(t *testing.T) {
	backend := New()

	a, _ := tensor.NewRaw(tensor.Shape{2, 3}, tensor.Float32, tensor.CPU)
	for i := range a.AsFloat32() {
		a.AsFloat32()[i] = float32(i) // row-major 0..5
	}

	at := backend.Transpose(a)

	if !at.Shape().Equal(tensor.Shape{3, 2}) {
		t.Fatalf("Expected shape [3,2], got %v", at.Shape())
	}
	expected := []float32{0, 3, 1, 4, 2, 5}
	for i, want := range expected {
		if got := at.AsFloat32()[i]; got != want {
			t.Errorf("T[%d]: expected %.1f, got %.1f", i, want, got)
		}
	}
}

func TestTranspose_Axes(t *testing.T) {
	backend := New()

	a, _ := tensor.NewRaw(tensor.Shape{2, 3, 4}, tensor.Float32, tensor.CPU)
	for i := range a.AsFloat32() {
		a.AsFloat32()[i] = float32(i)
	}

	// Swap the last two axes only.
	at := backend.Transpose(a, 0, 2, 1)

	if !at.Shape().Equal(tensor.Shape{2, 4, 3}) {
		t.Fatalf("Expected shape [2,4,3], got %v", at.Shape())
	}

	// Element at (0, 1, 2) of the original is at (0, 2, 1) now.
	orig := a.AsFloat32()[0*12+1*4+2]
	moved := at.AsFloat32()[0*12+2*3+1]
	if orig != moved {
		t.Errorf("Expected %f at transposed position, got %f", orig, moved)
	}
}
