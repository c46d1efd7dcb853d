package cpu

import (
	"testing"

	"github.com/strata-ml/strata/internal/tensor"
)

func TestMaxPool2D_Basic(t *testing.T) {
	backend := New()

	// 4x4:
	//  1  2  3  4
	//  5  6  7  8
	//  9 10 11 12
	// 13 14 15 16
	input, _ := tensor.NewRaw(tensor.Shape{1, 1, 4, 4}, tensor.Float32, tensor.CPU)
	for i := range input.AsFloat32() {
		input.AsFloat32()[i] = float32(i + 1)
	}

	output := backend.MaxPool2D(input, 2, 2)

	if !output.Shape().Equal(tensor.Shape{1, 1, 2, 2}) {
		t.Fatalf("Expected shape [1,1,2,2], got %v", output.Shape())
	}
	expected := []float32{6, 8, 14, 16}
	for i, want := range expected {
		if got := output.AsFloat32()[i]; got != want {
			t.Errorf("Output[%d]: expected %.1f, got %.1f", i, want, got)
		}
	}
}

func TestMaxPool2DGrad_Routing(t *testing.T) {
	backend := New()

	input, _ := tensor.NewRaw(tensor.Shape{1, 1, 4, 4}, tensor.Float32, tensor.CPU)
	for i := range input.AsFloat32() {
		input.AsFloat32()[i] = float32(i + 1)
	}

	grad, _ := tensor.NewRaw(tensor.Shape{1, 1, 2, 2}, tensor.Float32, tensor.CPU)
	gradData := grad.AsFloat32()
	gradData[0] = 10
	gradData[1] = 20
	gradData[2] = 30
	gradData[3] = 40

	result := backend.MaxPool2DGrad(input, grad, 2, 2)

	// Window maxima are at positions 5, 7, 13, 15 of the input.
	data := result.AsFloat32()
	expected := map[int]float32{5: 10, 7: 20, 13: 30, 15: 40}
	for i, v := range data {
		if want, ok := expected[i]; ok {
			if v != want {
				t.Errorf("Position %d: expected %.1f, got %.1f", i, want, v)
			}
		} else if v != 0 {
			t.Errorf("Position %d: expected 0, got %.1f", i, v)
		}
	}
}

func TestMaxPool2D_MultiChannelBatch(t *testing.T) {
	backend := New()

	input, _ := tensor.NewRaw(tensor.Shape{2, 2, 2, 2}, tensor.Float32, tensor.CPU)
	for i := range input.AsFloat32() {
		input.AsFloat32()[i] = float32(i)
	}

	output := backend.MaxPool2D(input, 2, 2)

	if !output.Shape().Equal(tensor.Shape{2, 2, 1, 1}) {
		t.Fatalf("Expected shape [2,2,1,1], got %v", output.Shape())
	}
	// Each 2x2 plane's maximum is its last element.
	expected := []float32{3, 7, 11, 15}
	for i, want := range expected {
		if got := output.AsFloat32()[i]; got != want {
			t.Errorf("Output[%d]: expected %.1f, got %.1f", i, want, got)
		}
	}
}
