// Package segmentation prepares sensor imagery for the external
// segmentation model and reconciles orientation conventions on its output.
package segmentation

import (
	"image"

	"gocv.io/x/gocv"

	"github.com/russelldj/semantic-slam/iface"
)

// Adapter wraps a Segmenter backend with the fixed image preparation the
// model expects: an anti-aliased resize to the canonical input resolution,
// float32 conversion without intensity normalization, an optional channel
// order swap, and an optional 180 degree rotation compensating a physically
// inverted camera mount. The rotation is reversed on the output so the
// probability map matches the original input orientation.
type Adapter struct {
	backend      iface.Segmenter
	inputWidth   int
	inputHeight  int
	flipChannels bool
	rotate180    bool
}

func NewAdapter(backend iface.Segmenter, inputWidth, inputHeight int, flipChannels, rotate180 bool) *Adapter {
	return &Adapter{
		backend:      backend,
		inputWidth:   inputWidth,
		inputHeight:  inputHeight,
		flipChannels: flipChannels,
		rotate180:    rotate180,
	}
}

// Predict runs one inference. Backend errors are not handled here; the
// frame is the caller's to abandon.
func (a *Adapter) Predict(img gocv.Mat) (*iface.ProbMap, error) {
	resized := gocv.NewMat()
	// Label identity does not matter at this stage, only feature fidelity,
	// so the smoothing interpolation is intentional.
	gocv.Resize(img, &resized, image.Pt(a.inputWidth, a.inputHeight), 0, 0, gocv.InterpolationArea)

	prepared := gocv.NewMat()
	resized.ConvertTo(&prepared, gocv.MatTypeCV32FC3)
	_ = resized.Close()

	if a.flipChannels {
		flipped := gocv.NewMat()
		gocv.CvtColor(prepared, &flipped, gocv.ColorBGRToRGB)
		_ = prepared.Close()
		prepared = flipped
	}
	if a.rotate180 {
		rotated := gocv.NewMat()
		gocv.Rotate(prepared, &rotated, gocv.Rotate180Clockwise)
		_ = prepared.Close()
		prepared = rotated
	}

	probs, err := a.backend.Predict(prepared)
	_ = prepared.Close()
	if err != nil {
		return nil, err
	}
	if a.rotate180 {
		probs.Rotate180()
	}
	return probs, nil
}
