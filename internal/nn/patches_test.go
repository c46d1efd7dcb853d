package nn

import (
	"errors"
	"testing"

	"github.com/strata-ml/strata/internal/backend/cpu"
	"github.com/strata-ml/strata/internal/tensor"
)

func TestPatches_Extraction(t *testing.T) {
	layer, err := NewPatches(cpu.New(), 3, 3, 2, 2)
	if err != nil {
		t.Fatalf("NewPatches failed: %v", err)
	}

	// 6x6 image holding 0..35 row-major.
	img, _ := tensor.NewRaw(tensor.Shape{1, 6, 6}, tensor.Float32, tensor.CPU)
	for i := range img.AsFloat32() {
		img.AsFloat32()[i] = float32(i)
	}

	patches, err := layer.ActivateHidden(img)
	if err != nil {
		t.Fatalf("ActivateHidden failed: %v", err)
	}

	// Top rows 0 and 2, left columns 0 and 2; row 4 and column 4 would
	// overrun a 3x3 window, so exactly four patches survive.
	if len(patches) != 4 {
		t.Fatalf("Expected 4 patches, got %d", len(patches))
	}

	expected := [][]float32{
		{0, 1, 2, 6, 7, 8, 12, 13, 14},
		{2, 3, 4, 8, 9, 10, 14, 15, 16},
		{12, 13, 14, 18, 19, 20, 24, 25, 26},
		{14, 15, 16, 20, 21, 22, 26, 27, 28},
	}
	for p, want := range expected {
		got := patches[p].AsFloat32()
		if !patches[p].Shape().Equal(tensor.Shape{3, 3}) {
			t.Errorf("Patch %d shape: expected [3 3], got %v", p, patches[p].Shape())
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("Patch %d element %d: expected %.0f, got %.0f", p, i, want[i], got[i])
			}
		}
	}
}

func TestPatches_TwoDimensionalInput(t *testing.T) {
	layer, err := NewPatches(cpu.New(), 2, 2, 1, 1)
	if err != nil {
		t.Fatalf("NewPatches failed: %v", err)
	}

	img, _ := tensor.NewRaw(tensor.Shape{3, 3}, tensor.Float32, tensor.CPU)
	for i := range img.AsFloat32() {
		img.AsFloat32()[i] = float32(i)
	}

	patches, err := layer.ActivateHidden(img)
	if err != nil {
		t.Fatalf("ActivateHidden failed: %v", err)
	}
	if len(patches) != 4 {
		t.Fatalf("Expected 4 patches, got %d", len(patches))
	}
	first := patches[0].AsFloat32()
	if first[0] != 0 || first[1] != 1 || first[2] != 3 || first[3] != 4 {
		t.Errorf("First patch: expected [0 1 3 4], got %v", first)
	}
}

func TestPatches_RejectsMultiChannel(t *testing.T) {
	layer, err := NewPatches(cpu.New(), 3, 3, 1, 1)
	if err != nil {
		t.Fatalf("NewPatches failed: %v", err)
	}

	img, _ := tensor.NewRaw(tensor.Shape{3, 6, 6}, tensor.Float32, tensor.CPU)
	if _, err := layer.ActivateHidden(img); !errors.Is(err, ErrUnsupportedChannels) {
		t.Errorf("Expected ErrUnsupportedChannels, got %v", err)
	}
}

func TestPatches_Validation(t *testing.T) {
	if _, err := NewPatches(cpu.New(), 0, 3, 1, 1); !errors.Is(err, ErrInvalidShape) {
		t.Errorf("Expected ErrInvalidShape for zero height, got %v", err)
	}
	if _, err := NewPatches(cpu.New(), 3, 3, 0, 1); !errors.Is(err, ErrInvalidShape) {
		t.Errorf("Expected ErrInvalidShape for zero stride, got %v", err)
	}
}

func TestPatches_Metadata(t *testing.T) {
	layer, err := NewPatches(cpu.New(), 3, 3, 2, 2)
	if err != nil {
		t.Fatalf("NewPatches failed: %v", err)
	}

	if layer.Kind() != KindPatches {
		t.Errorf("Expected KindPatches, got %v", layer.Kind())
	}
	if !layer.Caps().Patches || layer.Caps().Neural {
		t.Errorf("Unexpected capability flags: %+v", layer.Caps())
	}
	if got := layer.OutputSize(); got != 9 {
		t.Errorf("OutputSize: expected 9, got %d", got)
	}
	if got := layer.PatchCount(6, 6); got != 4 {
		t.Errorf("PatchCount(6,6): expected 4, got %d", got)
	}
}
