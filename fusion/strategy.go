// Package fusion turns the segmentation model's probability output into
// the color and confidence products the cloud generator consumes.
package fusion

import (
	"fmt"

	"gocv.io/x/gocv"

	"github.com/russelldj/semantic-slam/colormap"
	"github.com/russelldj/semantic-slam/iface"
)

// Mode selects which fusion products are produced. It is fixed at
// construction time, never per frame.
type Mode int

const (
	Color Mode = iota
	MaxConfidence
	BayesianTopK
)

func (m Mode) String() string {
	switch m {
	case Color:
		return "color"
	case MaxConfidence:
		return "max"
	case BayesianTopK:
		return "bayesian"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode maps the configured mode name to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "color":
		return Color, nil
	case "max":
		return MaxConfidence, nil
	case "bayesian":
		return BayesianTopK, nil
	}
	return 0, fmt.Errorf("invalid fusion mode %q", s)
}

// Product holds one frame's fusion output at sensor resolution. The Mats
// are owned by the strategy and overwritten on the next Fuse call, so the
// caller must finish its handoff before feeding the next frame.
type Product struct {
	// MaxConfidence products.
	SemanticColor gocv.Mat
	Confidence    gocv.Mat
	// BayesianTopK products, one slot per hypothesis rank.
	SemanticColors [3]gocv.Mat
	Confidences    [3]gocv.Mat
}

// Strategy is one of the three fusion variants.
type Strategy interface {
	Mode() Mode
	// NeedsModel reports whether Fuse requires a probability map.
	NeedsModel() bool
	Fuse(probs *iface.ProbMap) (*Product, error)
	Close()
}

// NewStrategy builds the strategy for the configured mode. The remap table
// and background id only apply to max fusion; the decoder is shared by both
// semantic modes.
func NewStrategy(mode Mode, sensorWidth, sensorHeight int, decoder *colormap.Decoder, remap []int, background uint8) (Strategy, error) {
	switch mode {
	case Color:
		return &colorStrategy{}, nil
	case MaxConfidence:
		return newMaxStrategy(sensorWidth, sensorHeight, decoder, remap, background), nil
	case BayesianTopK:
		return newBayesianStrategy(sensorWidth, sensorHeight, decoder), nil
	}
	return nil, fmt.Errorf("invalid fusion mode %v", mode)
}

// colorStrategy passes the camera image through untouched; no model call,
// no semantic products.
type colorStrategy struct{}

func (s *colorStrategy) Mode() Mode       { return Color }
func (s *colorStrategy) NeedsModel() bool { return false }
func (s *colorStrategy) Close()           {}

func (s *colorStrategy) Fuse(*iface.ProbMap) (*Product, error) {
	return &Product{}, nil
}

func matFromLabels(width, height int, labels []uint8) (gocv.Mat, error) {
	return gocv.NewMatFromBytes(height, width, gocv.MatTypeCV8UC1, labels)
}

func matFromFloats(width, height int, vals []float32) (gocv.Mat, error) {
	m := gocv.NewMatWithSize(height, width, gocv.MatTypeCV32FC1)
	dst, err := m.DataPtrFloat32()
	if err != nil {
		_ = m.Close()
		return gocv.Mat{}, err
	}
	copy(dst, vals)
	return m, nil
}
