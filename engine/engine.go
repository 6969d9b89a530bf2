// Package engine hosts segmentation model backends. The model itself is an
// external collaborator; the backends here only move pixels in and
// probabilities out.
package engine

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/russelldj/semantic-slam/iface"
	"github.com/russelldj/semantic-slam/logger"
)

const UNREGISTERED = 0x0001
const REGISTERED = 0x0002
const IDLE = 0x0003
const BUSY = 0x0004

type loadRequest struct {
	ConfigPath string `json:"configPath"`
	ModelPath  string `json:"modelPath"`
	Device     string `json:"device"`
}

// Remote talks to a segmentation model served over HTTP. Requests carry the
// prepared float32 pixel buffer; responses carry the dense probability
// tensor for the same resolution.
type Remote struct {
	client  *resty.Client
	baseURL string
	classes int
	State   int
}

// NewRemote points a backend at a model server. classes is the raw class
// count of the served model, which sizes the returned probability maps.
func NewRemote(baseURL string, classes int, timeout time.Duration) *Remote {
	return &Remote{
		client:  resty.New().SetTimeout(timeout),
		baseURL: baseURL,
		classes: classes,
		State:   REGISTERED,
	}
}

// LoadModel asks the server to load weights on the configured device.
func (r *Remote) LoadModel(configPath, modelPath, device string) error {
	resp, err := r.client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(loadRequest{ConfigPath: configPath, ModelPath: modelPath, Device: device}).
		Post(r.baseURL + "/api/model/load")
	if err != nil {
		return fmt.Errorf("load model: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("load model: server returned %s", resp.Status())
	}
	r.State = IDLE
	logger.Log().Info("Segmentation model loaded",
		zap.String("modelPath", modelPath), zap.String("device", device))
	return nil
}

// Predict ships one prepared CV32FC3 frame and decodes the probability
// tensor in the response body.
func (r *Remote) Predict(img gocv.Mat) (*iface.ProbMap, error) {
	switch r.State {
	case UNREGISTERED:
		return nil, fmt.Errorf("backend not registered")
	case REGISTERED:
		return nil, fmt.Errorf("model not loaded")
	case BUSY:
		return nil, fmt.Errorf("backend is busy")
	}
	r.State = BUSY
	defer func() { r.State = IDLE }()

	width := img.Cols()
	height := img.Rows()
	resp, err := r.client.R().
		SetHeader("Content-Type", "application/octet-stream").
		SetQueryParam("width", fmt.Sprintf("%d", width)).
		SetQueryParam("height", fmt.Sprintf("%d", height)).
		SetQueryParam("channels", fmt.Sprintf("%d", img.Channels())).
		SetBody(img.ToBytes()).
		Post(r.baseURL + "/api/segment")
	if err != nil {
		return nil, fmt.Errorf("inference request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("inference: server returned %s", resp.Status())
	}

	body := resp.Body()
	want := width * height * r.classes * 4
	if len(body) != want {
		return nil, fmt.Errorf("inference: got %d probability bytes, want %d", len(body), want)
	}
	probs := iface.NewProbMap(width, height, r.classes)
	for i := range probs.Data {
		probs.Data[i] = math.Float32frombits(binary.LittleEndian.Uint32(body[i*4:]))
	}
	return probs, nil
}

// Destroy unloads the remote model. Unload failures are logged, not
// returned; the backend is unusable either way.
func (r *Remote) Destroy() {
	if r.State == UNREGISTERED {
		return
	}
	resp, err := r.client.R().Post(r.baseURL + "/api/model/unload")
	if err != nil {
		logger.Log().Error(fmt.Sprintf("model unload failed: %v", err))
	} else if resp.IsError() {
		logger.Log().Error(fmt.Sprintf("model unload: server returned %s", resp.Status()))
	}
	r.State = UNREGISTERED
}
