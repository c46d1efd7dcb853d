package nn

import (
	"fmt"

	"github.com/strata-ml/strata/internal/tensor"
)

// Patches is a stateless transform layer splitting one single-channel
// image into fixed-size windows at a fixed stride, emitted in row-major
// scan order. Windows that would exceed the image bounds are skipped;
// there is no padding.
type Patches[B tensor.Backend] struct {
	backend B

	height  int
	width   int
	vStride int
	hStride int
}

// NewPatches creates a patch extraction layer with the given window
// size and strides.
func NewPatches[B tensor.Backend](backend B, height, width, vStride, hStride int) (*Patches[B], error) {
	if height <= 0 || width <= 0 || vStride <= 0 || hStride <= 0 {
		return nil, fmt.Errorf("%w: window %dx%d stride %dx%d", ErrInvalidShape, height, width, vStride, hStride)
	}
	return &Patches[B]{
		backend: backend,
		height:  height,
		width:   width,
		vStride: vStride,
		hStride: hStride,
	}, nil
}

// InputSize is zero: the accepted image size is not fixed by the layer.
func (l *Patches[B]) InputSize() int { return 0 }

// OutputSize returns the element count of one emitted patch.
func (l *Patches[B]) OutputSize() int { return l.height * l.width }

func (l *Patches[B]) ParameterCount() int { return 0 }

func (l *Patches[B]) ShortString() string {
	return fmt.Sprintf("Patches(dyn): %dx%d (stride %dx%d)", l.height, l.width, l.vStride, l.hStride)
}

func (l *Patches[B]) Kind() LayerKind { return KindPatches }

func (l *Patches[B]) Caps() Capabilities {
	return Capabilities{
		Transform: true,
		Patches:   true,
		Dynamic:   true,
	}
}

// PatchCount returns how many patches one imageH x imageW image yields.
func (l *Patches[B]) PatchCount(imageH, imageW int) int {
	if imageH < l.height || imageW < l.width {
		return 0
	}
	rows := (imageH-l.height)/l.vStride + 1
	cols := (imageW-l.width)/l.hStride + 1
	return rows * cols
}

// ActivateHidden extracts all patches of one image. The input may be
// [H, W] or [1, H, W]; multi-channel images are rejected with
// ErrUnsupportedChannels. Each returned patch is an independently
// owned [height, width] tensor.
func (l *Patches[B]) ActivateHidden(input *tensor.RawTensor) ([]*tensor.RawTensor, error) {
	shape := input.Shape()

	var h, w int
	switch len(shape) {
	case 2:
		h, w = shape[0], shape[1]
	case 3:
		if shape[0] != 1 {
			return nil, fmt.Errorf("%w: patches require single-channel input, got %d channels",
				ErrUnsupportedChannels, shape[0])
		}
		h, w = shape[1], shape[2]
	default:
		return nil, fmt.Errorf("%w: input must be [H,W] or [1,H,W], got %v", ErrShapeMismatch, shape)
	}

	patches := make([]*tensor.RawTensor, 0, l.PatchCount(h, w))
	for y := 0; y+l.height <= h; y += l.vStride {
		for x := 0; x+l.width <= w; x += l.hStride {
			patch, err := tensor.NewRaw(tensor.Shape{l.height, l.width}, input.DType(), input.Device())
			if err != nil {
				return nil, err
			}
			copyPatch(patch, input, y, x, w)
			patches = append(patches, patch)
		}
	}
	return patches, nil
}

func copyPatch(dst, src *tensor.RawTensor, top, left, imageW int) {
	shape := dst.Shape()
	h, w := shape[0], shape[1]

	switch src.DType() {
	case tensor.Float32:
		in := src.AsFloat32()
		out := dst.AsFloat32()
		for i := 0; i < h; i++ {
			copy(out[i*w:(i+1)*w], in[(top+i)*imageW+left:(top+i)*imageW+left+w])
		}
	case tensor.Float64:
		in := src.AsFloat64()
		out := dst.AsFloat64()
		for i := 0; i < h; i++ {
			copy(out[i*w:(i+1)*w], in[(top+i)*imageW+left:(top+i)*imageW+left+w])
		}
	default:
		panic(fmt.Sprintf("patches: unsupported dtype %s", src.DType()))
	}
}
