package iface

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProbMapIndexing(t *testing.T) {
	p := NewProbMap(3, 2, 4)
	assert.Len(t, p.Data, 24)

	p.Set(2, 1, 3, 0.5)
	assert.Equal(t, float32(0.5), p.At(2, 1, 3))
	// Channel-last layout: the last element of the buffer.
	assert.Equal(t, float32(0.5), p.Data[23])
}

func TestProbMapRotate180(t *testing.T) {
	p := NewProbMap(3, 2, 2)
	for y := 0; y < 2; y++ {
		for x := 0; x < 3; x++ {
			p.Set(x, y, 0, float32(y*3+x))
			p.Set(x, y, 1, float32(y*3+x)+100)
		}
	}

	p.Rotate180()

	// Pixel (0,0) now holds what was at (2,1); the class axis is untouched.
	assert.Equal(t, float32(5), p.At(0, 0, 0))
	assert.Equal(t, float32(105), p.At(0, 0, 1))
	assert.Equal(t, float32(0), p.At(2, 1, 0))

	// Rotating twice restores the original.
	p.Rotate180()
	assert.Equal(t, float32(0), p.At(0, 0, 0))
	assert.Equal(t, float32(103), p.At(0, 1, 1))
}
