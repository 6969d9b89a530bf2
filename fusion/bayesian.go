package fusion

import (
	"errors"
	"image"

	"gocv.io/x/gocv"

	"github.com/russelldj/semantic-slam/colormap"
	"github.com/russelldj/semantic-slam/iface"
)

// bayesianStrategy keeps the top three class hypotheses per pixel for
// downstream probabilistic accumulation. Ranks are ordered by descending
// probability; equal probabilities rank the lower raw class index first.
// The three color and confidence buffers are overwritten each frame.
type bayesianStrategy struct {
	width, height int
	decoder       *colormap.Decoder

	labels [3][]uint8
	confs  [3][]float32

	labelResized gocv.Mat
	colors       [3]gocv.Mat
	confMats     [3]gocv.Mat
}

func newBayesianStrategy(width, height int, decoder *colormap.Decoder) *bayesianStrategy {
	s := &bayesianStrategy{
		width:        width,
		height:       height,
		decoder:      decoder,
		labelResized: gocv.NewMat(),
	}
	for r := 0; r < 3; r++ {
		s.colors[r] = gocv.NewMat()
		s.confMats[r] = gocv.NewMat()
	}
	return s
}

func (s *bayesianStrategy) Mode() Mode       { return BayesianTopK }
func (s *bayesianStrategy) NeedsModel() bool { return true }

func (s *bayesianStrategy) Fuse(probs *iface.ProbMap) (*Product, error) {
	if probs == nil {
		return nil, errors.New("bayesian fusion requires a probability map")
	}
	n := probs.Width * probs.Height
	for r := 0; r < 3; r++ {
		if cap(s.labels[r]) < n {
			s.labels[r] = make([]uint8, n)
			s.confs[r] = make([]float32, n)
		}
		s.labels[r] = s.labels[r][:n]
		s.confs[r] = s.confs[r][:n]
	}

	c := probs.Classes
	for i := 0; i < n; i++ {
		topV := [3]float32{-1, -1, -1}
		var topI [3]int
		for k := 0; k < c; k++ {
			// Strict comparisons keep the earlier, lower class index ahead
			// on ties.
			switch v := probs.Data[i*c+k]; {
			case v > topV[0]:
				topV[2], topI[2] = topV[1], topI[1]
				topV[1], topI[1] = topV[0], topI[0]
				topV[0], topI[0] = v, k
			case v > topV[1]:
				topV[2], topI[2] = topV[1], topI[1]
				topV[1], topI[1] = v, k
			case v > topV[2]:
				topV[2], topI[2] = v, k
			}
		}
		for r := 0; r < 3; r++ {
			if topV[r] < 0 {
				topV[r] = 0
			}
			s.labels[r][i] = uint8(topI[r])
			s.confs[r][i] = topV[r]
		}
	}

	for r := 0; r < 3; r++ {
		labelMat, err := matFromLabels(probs.Width, probs.Height, s.labels[r])
		if err != nil {
			return nil, err
		}
		gocv.Resize(labelMat, &s.labelResized, image.Pt(s.width, s.height), 0, 0, gocv.InterpolationNearestNeighbor)
		_ = labelMat.Close()
		s.decoder.DecodeInto(s.labelResized, &s.colors[r])

		confMat, err := matFromFloats(probs.Width, probs.Height, s.confs[r])
		if err != nil {
			return nil, err
		}
		gocv.Resize(confMat, &s.confMats[r], image.Pt(s.width, s.height), 0, 0, gocv.InterpolationLinear)
		_ = confMat.Close()
	}

	return &Product{SemanticColors: s.colors, Confidences: s.confMats}, nil
}

func (s *bayesianStrategy) Close() {
	_ = s.labelResized.Close()
	for r := 0; r < 3; r++ {
		_ = s.colors[r].Close()
		_ = s.confMats[r].Close()
	}
}
