package iface

import (
	"time"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/mat"
)

// Segmenter is the external segmentation model. It receives a prepared
// float32 pixel array at its canonical input resolution and returns a
// per-pixel probability distribution over raw classes at that resolution.
type Segmenter interface {
	Predict(img gocv.Mat) (*ProbMap, error)
	Destroy()
}

// CloudGenerator is the external projection engine that turns pixel
// semantics plus lidar points plus calibration into an output point cloud.
// Its projection math is not this node's responsibility.
type CloudGenerator interface {
	GenerateColor(img gocv.Mat, points []PointXYZ, stamp time.Time) error
	GenerateSemanticMax(img gocv.Mat, points []PointXYZ, semanticColor, confidence gocv.Mat,
		stamp time.Time, extrinsics *mat.Dense) error
	GenerateSemanticBayesian(img gocv.Mat, points []PointXYZ, semanticColors, confidences [3]gocv.Mat,
		stamp time.Time, extrinsics *mat.Dense) error
}

// Publisher delivers the decoded semantic image to attached consumers.
type Publisher interface {
	HasSubscribers() bool
	Publish(img gocv.Mat)
}
