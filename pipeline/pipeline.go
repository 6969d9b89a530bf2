// Package pipeline owns the per-frame fusion run: synchronized pair in,
// cloud-generator handoff and semantic image publish out.
package pipeline

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/russelldj/semantic-slam/calib"
	"github.com/russelldj/semantic-slam/framesync"
	"github.com/russelldj/semantic-slam/fusion"
	"github.com/russelldj/semantic-slam/iface"
	"github.com/russelldj/semantic-slam/logger"
	"github.com/russelldj/semantic-slam/monitor"
	"github.com/russelldj/semantic-slam/segmentation"
)

// Controller dispatches each synchronized pair through the configured
// fusion strategy. Processing is single threaded and synchronous: a slow
// model call delays later frames but never overlaps them.
type Controller struct {
	strategy  fusion.Strategy
	adapter   *segmentation.Adapter // nil in color mode
	store     *calib.Store
	generator iface.CloudGenerator
	publisher iface.Publisher // optional
}

func New(strategy fusion.Strategy, adapter *segmentation.Adapter, store *calib.Store,
	generator iface.CloudGenerator, publisher iface.Publisher,
) *Controller {
	return &Controller{
		strategy:  strategy,
		adapter:   adapter,
		store:     store,
		generator: generator,
		publisher: publisher,
	}
}

// Run consumes pairs until the synchronizer closes. Per-frame errors drop
// that frame only.
func (c *Controller) Run(pairs <-chan framesync.Pair) {
	for pair := range pairs {
		if err := c.Process(pair); err != nil {
			logger.Log().Error("frame dropped", zap.Error(err))
		}
	}
}

// Process runs one complete fusion call. The pair's image Mat is released
// here regardless of outcome.
func (c *Controller) Process(pair framesync.Pair) error {
	defer pair.Image.Image.Close()
	img := pair.Image.Image
	stamp := pair.Image.Stamp

	if !c.strategy.NeedsModel() {
		if err := c.generator.GenerateColor(img, pair.Scan.Points, stamp); err != nil {
			monitor.FramesDropped.Inc()
			return fmt.Errorf("color cloud handoff: %w", err)
		}
		monitor.FramesFused.Inc()
		return nil
	}

	probs, err := c.adapter.Predict(img)
	if err != nil {
		// Inference failure is not recoverable for this frame: abandon it,
		// publish nothing partial.
		monitor.InferenceFailures.Inc()
		return fmt.Errorf("inference: %w", err)
	}
	product, err := c.strategy.Fuse(probs)
	if err != nil {
		monitor.FramesDropped.Inc()
		return fmt.Errorf("fusion: %w", err)
	}

	switch c.strategy.Mode() {
	case fusion.MaxConfidence:
		err = c.generator.GenerateSemanticMax(img, pair.Scan.Points,
			product.SemanticColor, product.Confidence, stamp, c.store.Extrinsics())
	case fusion.BayesianTopK:
		err = c.generator.GenerateSemanticBayesian(img, pair.Scan.Points,
			product.SemanticColors, product.Confidences, stamp, c.store.Extrinsics())
	}
	if err != nil {
		monitor.FramesDropped.Inc()
		return fmt.Errorf("semantic cloud handoff: %w", err)
	}

	if c.publisher != nil && c.publisher.HasSubscribers() {
		if c.strategy.Mode() == fusion.MaxConfidence {
			c.publisher.Publish(product.SemanticColor)
		} else {
			c.publisher.Publish(product.SemanticColors[0])
		}
	}
	monitor.FramesFused.Inc()
	return nil
}
