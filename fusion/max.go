package fusion

import (
	"errors"
	"image"

	"gocv.io/x/gocv"

	"github.com/russelldj/semantic-slam/colormap"
	"github.com/russelldj/semantic-slam/iface"
)

// maxStrategy takes the single best class per pixel with its probability
// as the confidence, remaps raw ids to semantic ids, and resizes both to
// sensor resolution. Labels resize nearest-neighbor so no fractional class
// ids appear; confidence resizes with smoothing since it is continuous.
type maxStrategy struct {
	width, height int
	decoder       *colormap.Decoder
	remap         []int
	background    uint8

	labels       []uint8
	conf         []float32
	labelResized gocv.Mat
	semColor     gocv.Mat
	confResized  gocv.Mat
}

func newMaxStrategy(width, height int, decoder *colormap.Decoder, remap []int, background uint8) *maxStrategy {
	return &maxStrategy{
		width:        width,
		height:       height,
		decoder:      decoder,
		remap:        remap,
		background:   background,
		labelResized: gocv.NewMat(),
		semColor:     gocv.NewMat(),
		confResized:  gocv.NewMat(),
	}
}

func (s *maxStrategy) Mode() Mode       { return MaxConfidence }
func (s *maxStrategy) NeedsModel() bool { return true }

func (s *maxStrategy) Fuse(probs *iface.ProbMap) (*Product, error) {
	if probs == nil {
		return nil, errors.New("max fusion requires a probability map")
	}
	n := probs.Width * probs.Height
	if cap(s.labels) < n {
		s.labels = make([]uint8, n)
		s.conf = make([]float32, n)
	}
	labels := s.labels[:n]
	conf := s.conf[:n]

	c := probs.Classes
	for i := 0; i < n; i++ {
		best, bestV := 0, probs.Data[i*c]
		for k := 1; k < c; k++ {
			if v := probs.Data[i*c+k]; v > bestV {
				best, bestV = k, v
			}
		}
		labels[i] = uint8(best)
		conf[i] = bestV
	}
	Remap(labels, s.remap, s.background)

	labelMat, err := matFromLabels(probs.Width, probs.Height, labels)
	if err != nil {
		return nil, err
	}
	gocv.Resize(labelMat, &s.labelResized, image.Pt(s.width, s.height), 0, 0, gocv.InterpolationNearestNeighbor)
	_ = labelMat.Close()
	s.decoder.DecodeInto(s.labelResized, &s.semColor)

	confMat, err := matFromFloats(probs.Width, probs.Height, conf)
	if err != nil {
		return nil, err
	}
	gocv.Resize(confMat, &s.confResized, image.Pt(s.width, s.height), 0, 0, gocv.InterpolationLinear)
	_ = confMat.Close()

	return &Product{SemanticColor: s.semColor, Confidence: s.confResized}, nil
}

func (s *maxStrategy) Close() {
	_ = s.labelResized.Close()
	_ = s.semColor.Close()
	_ = s.confResized.Close()
}
