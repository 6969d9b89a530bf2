package calib

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func identity4() []float64 {
	return []float64{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

func TestNewStore(t *testing.T) {
	t.Run("Identity Passes", func(t *testing.T) {
		s, err := NewStore(identity4(), 525, 525, 319.5, 239.5)
		assert.NoError(t, err)
		assert.NotNil(t, s)
	})

	t.Run("Proper Rotation Passes", func(t *testing.T) {
		c, sn := math.Cos(math.Pi/6), math.Sin(math.Pi/6)
		ext := []float64{
			c, -sn, 0, 0.5,
			sn, c, 0, -0.2,
			0, 0, 1, 1.3,
			0, 0, 0, 1,
		}
		_, err := NewStore(ext, 500, 500, 320, 240)
		assert.NoError(t, err)
	})

	t.Run("Scaled Transform Rejected", func(t *testing.T) {
		ext := identity4()
		ext[0], ext[5], ext[10] = 2, 2, 2 // det = 8
		_, err := NewStore(ext, 500, 500, 320, 240)
		assert.ErrorIs(t, err, ErrInvalidCalibration)
	})

	t.Run("Reflection Rejected", func(t *testing.T) {
		ext := identity4()
		ext[10] = -1 // det = -1
		_, err := NewStore(ext, 500, 500, 320, 240)
		assert.ErrorIs(t, err, ErrInvalidCalibration)
	})

	t.Run("Wrong Shape Rejected", func(t *testing.T) {
		_, err := NewStore(make([]float64, 9), 500, 500, 320, 240)
		assert.ErrorIs(t, err, ErrInvalidCalibration)
	})
}

func TestIntrinsicsUpdates(t *testing.T) {
	s, err := NewStore(identity4(), 525, 525, 319.5, 239.5)
	assert.NoError(t, err)

	k := s.Intrinsics()
	assert.Equal(t, 525.0, k.At(0, 0))
	assert.Equal(t, 319.5, k.At(0, 2))
	assert.Equal(t, 1.0, k.At(2, 2))

	s.UpdateIntrinsics(600, 610, 321, 241)
	k = s.Intrinsics()
	assert.Equal(t, 600.0, k.At(0, 0))
	assert.Equal(t, 610.0, k.At(1, 1))
	assert.Equal(t, 321.0, k.At(0, 2))
	assert.Equal(t, 241.0, k.At(1, 2))

	t.Run("Matrix Feed", func(t *testing.T) {
		err := s.SetIntrinsicsMatrix([]float64{700, 0, 322, 0, 710, 242, 0, 0, 1})
		assert.NoError(t, err)
		k := s.Intrinsics()
		assert.Equal(t, 700.0, k.At(0, 0))
		assert.Equal(t, 242.0, k.At(1, 2))
	})

	t.Run("Wrong Length Rejected", func(t *testing.T) {
		err := s.SetIntrinsicsMatrix([]float64{1, 2, 3})
		assert.ErrorIs(t, err, ErrInvalidCalibration)
	})
}

func TestConcurrentIntrinsicsUpdate(t *testing.T) {
	s, err := NewStore(identity4(), 500, 500, 320, 240)
	assert.NoError(t, err)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			s.UpdateIntrinsics(float64(500+i), 500, 320, 240)
		}
		close(done)
	}()
	for i := 0; i < 1000; i++ {
		k := s.Intrinsics()
		assert.Equal(t, 1.0, k.At(2, 2))
	}
	<-done
}
