package colormap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gocv.io/x/gocv"
)

func TestBuild_Deterministic(t *testing.T) {
	a := Build(256)
	b := Build(256)
	assert.Equal(t, a, b)

	// Prefix of a larger table matches a smaller one; the map is a pure
	// function of the class index.
	small := Build(16)
	assert.Equal(t, a[:16], small)
}

func TestBuild_KnownColors(t *testing.T) {
	cmap := Build(8)
	assert.Equal(t, RGB{0, 0, 0}, cmap[0])
	assert.Equal(t, RGB{128, 0, 0}, cmap[1])
	assert.Equal(t, RGB{0, 128, 0}, cmap[2])
	assert.Equal(t, RGB{128, 128, 0}, cmap[3])
	assert.Equal(t, RGB{0, 0, 128}, cmap[4])
}

func TestBuild_NoCollisions(t *testing.T) {
	cmap := Build(256)
	seen := map[RGB]int{}
	for i, c := range cmap {
		if prev, ok := seen[c]; ok {
			t.Fatalf("classes %d and %d share color %v", prev, i, c)
		}
		seen[c] = i
	}
}

func TestDecoder_Decode(t *testing.T) {
	d, err := NewDecoder(8)
	assert.NoError(t, err)
	defer d.Close()

	labels := gocv.NewMatWithSize(2, 2, gocv.MatTypeCV8UC1)
	defer labels.Close()
	labels.SetUCharAt(0, 0, 0)
	labels.SetUCharAt(0, 1, 1)
	labels.SetUCharAt(1, 0, 2)
	labels.SetUCharAt(1, 1, 4)

	decoded := d.Decode(labels)
	defer decoded.Close()
	assert.Equal(t, 3, decoded.Channels())

	// BGR layout: class 1 is pure red, class 2 pure green, class 4 blue.
	assert.Equal(t, []uint8{0, 0, 0}, []uint8(decoded.GetVecbAt(0, 0)))
	assert.Equal(t, []uint8{0, 0, 128}, []uint8(decoded.GetVecbAt(0, 1)))
	assert.Equal(t, []uint8{0, 128, 0}, []uint8(decoded.GetVecbAt(1, 0)))
	assert.Equal(t, []uint8{128, 0, 0}, []uint8(decoded.GetVecbAt(1, 1)))
}

func TestDecoder_OutOfRangeDecodesGray(t *testing.T) {
	d, err := NewDecoder(8)
	assert.NoError(t, err)
	defer d.Close()

	labels := gocv.NewMatWithSize(1, 2, gocv.MatTypeCV8UC1)
	defer labels.Close()
	labels.SetUCharAt(0, 0, 7)
	labels.SetUCharAt(0, 1, 200)

	decoded := d.Decode(labels)
	defer decoded.Close()

	// In-range ids keep their class color; ids at or above the class count
	// decode to gray.
	cmap := Build(8)
	assert.Equal(t, []uint8{cmap[7].B, cmap[7].G, cmap[7].R}, []uint8(decoded.GetVecbAt(0, 0)))
	assert.Equal(t, []uint8{200, 200, 200}, []uint8(decoded.GetVecbAt(0, 1)))
}

func TestNewDecoder_BadCount(t *testing.T) {
	_, err := NewDecoder(0)
	assert.Error(t, err)
	_, err = NewDecoder(257)
	assert.Error(t, err)
}
