package tensor

import "testing"

func TestNewRaw_ZeroInitialized(t *testing.T) {
	raw, err := NewRaw(Shape{2, 3}, Float32, CPU)
	if err != nil {
		t.Fatalf("NewRaw failed: %v", err)
	}

	if raw.NumElements() != 6 {
		t.Errorf("Expected 6 elements, got %d", raw.NumElements())
	}
	for i, v := range raw.AsFloat32() {
		if v != 0 {
			t.Errorf("Element %d: expected 0, got %f", i, v)
		}
	}
}

func TestNewRaw_InvalidShape(t *testing.T) {
	if _, err := NewRaw(Shape{2, 0}, Float32, CPU); err == nil {
		t.Error("Expected error for zero dimension")
	}
}

func TestRawTensor_Clone(t *testing.T) {
	raw, _ := NewRaw(Shape{4}, Float32, CPU)
	data := raw.AsFloat32()
	for i := range data {
		data[i] = float32(i + 1)
	}

	clone := raw.Clone()
	clone.AsFloat32()[0] = 99

	if data[0] != 1 {
		t.Errorf("Clone should own its buffer: original mutated to %f", data[0])
	}
	if !clone.Shape().Equal(raw.Shape()) {
		t.Errorf("Clone shape %v != original %v", clone.Shape(), raw.Shape())
	}
}

func TestRawTensor_CopyFrom(t *testing.T) {
	src, _ := NewRaw(Shape{2, 2}, Float32, CPU)
	for i := range src.AsFloat32() {
		src.AsFloat32()[i] = float32(i)
	}

	// Same element count, different shape: allowed.
	dst, _ := NewRaw(Shape{4}, Float32, CPU)
	if err := dst.CopyFrom(src); err != nil {
		t.Fatalf("CopyFrom failed: %v", err)
	}
	for i, v := range dst.AsFloat32() {
		if v != float32(i) {
			t.Errorf("Element %d: expected %d, got %f", i, i, v)
		}
	}
}

func TestRawTensor_CopyFrom_Mismatch(t *testing.T) {
	src, _ := NewRaw(Shape{3}, Float32, CPU)
	dst, _ := NewRaw(Shape{4}, Float32, CPU)
	if err := dst.CopyFrom(src); err == nil {
		t.Error("Expected error for element count mismatch")
	}

	src64, _ := NewRaw(Shape{4}, Float64, CPU)
	if err := dst.CopyFrom(src64); err == nil {
		t.Error("Expected error for dtype mismatch")
	}
}

func TestRawTensor_View(t *testing.T) {
	raw, _ := NewRaw(Shape{2, 3}, Float32, CPU)
	view, err := raw.View(Shape{3, 2})
	if err != nil {
		t.Fatalf("View failed: %v", err)
	}

	// Views share the underlying buffer.
	view.AsFloat32()[0] = 7
	if raw.AsFloat32()[0] != 7 {
		t.Error("View should share the buffer with the original")
	}

	if _, err := raw.View(Shape{5}); err == nil {
		t.Error("Expected error for element count mismatch")
	}
}

func TestRawTensor_Float64(t *testing.T) {
	raw, err := NewRaw(Shape{3}, Float64, CPU)
	if err != nil {
		t.Fatalf("NewRaw failed: %v", err)
	}
	data := raw.AsFloat64()
	data[1] = 2.5

	if raw.Clone().AsFloat64()[1] != 2.5 {
		t.Error("Float64 round-trip through Clone failed")
	}
	if raw.ByteSize() != 24 {
		t.Errorf("Expected 24 bytes, got %d", raw.ByteSize())
	}
}
