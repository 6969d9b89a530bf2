// Package colormap derives the deterministic class color table and decodes
// integer label images into color images with it.
package colormap

import (
	"fmt"

	"gocv.io/x/gocv"
)

// RGB is one color table entry.
type RGB struct {
	R, G, B uint8
}

// Build returns the N-entry color table in PASCAL VOC order. Each class
// index contributes its low bit triplets across 8 bit-planes, interleaved
// into the three channels, so the table is a pure function of N.
func Build(n int) []RGB {
	cmap := make([]RGB, n)
	for i := 0; i < n; i++ {
		var r, g, b uint8
		c := i
		for j := 0; j < 8; j++ {
			r |= uint8(c&1) << (7 - j)
			g |= uint8((c>>1)&1) << (7 - j)
			b |= uint8((c>>2)&1) << (7 - j)
			c >>= 3
		}
		cmap[i] = RGB{R: r, G: g, B: b}
	}
	return cmap
}

// Decoder turns an 8-bit class label image into a BGR color image using a
// lookup table built once per process.
type Decoder struct {
	lut gocv.Mat // 1x256 CV8UC3, BGR order
}

// NewDecoder builds a decoder for n classes. Labels at or above n decode
// to gray (v,v,v), so an out-of-range id stays visible instead of stealing
// another class's color.
func NewDecoder(n int) (*Decoder, error) {
	if n <= 0 || n > 256 {
		return nil, fmt.Errorf("class count must be in [1,256], got %d", n)
	}
	table := Build(n)
	buf := make([]byte, 256*3)
	for i := 0; i < 256; i++ {
		if i < n {
			buf[i*3+0] = table[i].B
			buf[i*3+1] = table[i].G
			buf[i*3+2] = table[i].R
		} else {
			v := uint8(i)
			buf[i*3+0], buf[i*3+1], buf[i*3+2] = v, v, v
		}
	}
	lut, err := gocv.NewMatFromBytes(1, 256, gocv.MatTypeCV8UC3, buf)
	if err != nil {
		return nil, err
	}
	return &Decoder{lut: lut}, nil
}

// Decode maps a CV8UC1 label image to a CV8UC3 BGR image. The caller owns
// the returned Mat.
func (d *Decoder) Decode(labels gocv.Mat) gocv.Mat {
	out := gocv.NewMat()
	gocv.LUT(labels, d.lut, &out)
	return out
}

// DecodeInto decodes into a caller-owned destination, for callers that
// reuse their output buffers across frames.
func (d *Decoder) DecodeInto(labels gocv.Mat, dst *gocv.Mat) {
	gocv.LUT(labels, d.lut, dst)
}

// Close releases the lookup table.
func (d *Decoder) Close() {
	_ = d.lut.Close()
}
