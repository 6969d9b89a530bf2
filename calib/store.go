// Package calib holds the validated camera calibration shared by the
// fusion pipeline and the runtime calibration feed.
package calib

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/mat"
)

// ErrInvalidCalibration rejects extrinsics that are the wrong shape or do
// not embed a proper rotation.
var ErrInvalidCalibration = errors.New("invalid calibration")

// detTolerance bounds how far the rotation-submatrix determinant may drift
// from 1 before the transform is rejected as a reflection or scale.
const detTolerance = 1e-6

// Store keeps the extrinsic pose and intrinsic projection matrices.
// Extrinsics are validated once at construction and never change.
// Intrinsics may be replaced wholesale at any time by the calibration
// feed, which runs concurrently with frame processing.
type Store struct {
	mu         sync.RWMutex
	extrinsics *mat.Dense // 4x4, immutable after construction
	intrinsics *mat.Dense // 3x3, replaced atomically
}

// NewStore validates the 4x4 extrinsics and builds the pinhole intrinsics
// from fx, fy, cx, cy.
func NewStore(extrinsics []float64, fx, fy, cx, cy float64) (*Store, error) {
	if len(extrinsics) != 16 {
		return nil, fmt.Errorf("%w: extrinsics have %d elements, want 16", ErrInvalidCalibration, len(extrinsics))
	}
	ext := mat.NewDense(4, 4, extrinsics)
	rot := mat.DenseCopyOf(ext.Slice(0, 3, 0, 3))
	if det := mat.Det(rot); math.Abs(det-1) > detTolerance {
		return nil, fmt.Errorf("%w: rotation determinant %v, want 1", ErrInvalidCalibration, det)
	}
	return &Store{
		extrinsics: ext,
		intrinsics: pinhole(fx, fy, cx, cy),
	}, nil
}

func pinhole(fx, fy, cx, cy float64) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		fx, 0, cx,
		0, fy, cy,
		0, 0, 1,
	})
}

// UpdateIntrinsics replaces the full projection matrix from fx, fy, cx, cy.
func (s *Store) UpdateIntrinsics(fx, fy, cx, cy float64) {
	k := pinhole(fx, fy, cx, cy)
	s.mu.Lock()
	s.intrinsics = k
	s.mu.Unlock()
}

// SetIntrinsicsMatrix replaces the projection matrix from a flat row-major
// 3x3, as delivered by the calibration feed. Only the shape is checked.
func (s *Store) SetIntrinsicsMatrix(k []float64) error {
	if len(k) != 9 {
		return fmt.Errorf("%w: intrinsics have %d elements, want 9", ErrInvalidCalibration, len(k))
	}
	m := mat.NewDense(3, 3, append([]float64(nil), k...))
	s.mu.Lock()
	s.intrinsics = m
	s.mu.Unlock()
	return nil
}

// Extrinsics returns the validated pose matrix. It is immutable, so the
// caller may hold it across the whole fusion call.
func (s *Store) Extrinsics() *mat.Dense {
	return s.extrinsics
}

// Intrinsics returns the current projection matrix.
func (s *Store) Intrinsics() *mat.Dense {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.intrinsics
}
