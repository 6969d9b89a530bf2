package iface

import (
	"time"

	"gocv.io/x/gocv"
)

// PointXYZ is one lidar return in the sensor frame.
type PointXYZ struct {
	X, Y, Z float32
}

// ImageEvent is a decoded color image with its capture time.
type ImageEvent struct {
	Image gocv.Mat
	Stamp time.Time
}

// ScanEvent is an ordered point scan with its capture time.
type ScanEvent struct {
	Points []PointXYZ
	Stamp  time.Time
}

// ProbMap is a dense per-pixel probability distribution over raw classes,
// row-major with the class axis last: Data[(y*Width+x)*Classes+c].
type ProbMap struct {
	Width   int
	Height  int
	Classes int
	Data    []float32
}

func NewProbMap(width, height, classes int) *ProbMap {
	return &ProbMap{
		Width:   width,
		Height:  height,
		Classes: classes,
		Data:    make([]float32, width*height*classes),
	}
}

func (p *ProbMap) At(x, y, c int) float32 {
	return p.Data[(y*p.Width+x)*p.Classes+c]
}

func (p *ProbMap) Set(x, y, c int, v float32) {
	p.Data[(y*p.Width+x)*p.Classes+c] = v
}

// Rotate180 flips both spatial axes in place. The class axis is untouched,
// so a map rotated on the way into the model can be un-rotated on the way out.
func (p *ProbMap) Rotate180() {
	c := p.Classes
	for i, j := 0, p.Width*p.Height-1; i < j; i, j = i+1, j-1 {
		for k := 0; k < c; k++ {
			p.Data[i*c+k], p.Data[j*c+k] = p.Data[j*c+k], p.Data[i*c+k]
		}
	}
}
