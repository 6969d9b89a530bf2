// Package cloudgen is the client side of the external point-cloud
// projection engine. The node hands fusion products over; the projection
// math lives on the other side of the wire.
package cloudgen

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/go-resty/resty/v2"
	"gocv.io/x/gocv"
	gmat "gonum.org/v1/gonum/mat"

	"github.com/russelldj/semantic-slam/calib"
	"github.com/russelldj/semantic-slam/iface"
)

// HTTPGenerator forwards each handoff to the generator service. One call
// per frame, blocking, no retries. Every handoff carries the current
// intrinsics from the calibration store, so a runtime calibration update
// reaches the projection engine on the next frame.
type HTTPGenerator struct {
	client            *resty.Client
	baseURL           string
	store             *calib.Store
	includeBackground bool
}

func NewHTTP(baseURL string, store *calib.Store, includeBackground bool, timeout time.Duration) *HTTPGenerator {
	return &HTTPGenerator{
		client:            resty.New().SetTimeout(timeout),
		baseURL:           baseURL,
		store:             store,
		includeBackground: includeBackground,
	}
}

func (g *HTTPGenerator) GenerateColor(img gocv.Mat, points []iface.PointXYZ, stamp time.Time) error {
	imgPNG, err := matPNG(img)
	if err != nil {
		return err
	}
	return g.post("/api/cloud/color", stamp, nil, map[string][]byte{
		"image":  imgPNG,
		"points": pointsToBytes(points),
	})
}

func (g *HTTPGenerator) GenerateSemanticMax(img gocv.Mat, points []iface.PointXYZ, semanticColor, confidence gocv.Mat,
	stamp time.Time, extrinsics *gmat.Dense,
) error {
	imgPNG, err := matPNG(img)
	if err != nil {
		return err
	}
	semPNG, err := matPNG(semanticColor)
	if err != nil {
		return err
	}
	return g.post("/api/cloud/semantic_max", stamp, extrinsics, map[string][]byte{
		"image":      imgPNG,
		"points":     pointsToBytes(points),
		"semantic":   semPNG,
		"confidence": confidence.ToBytes(),
	})
}

func (g *HTTPGenerator) GenerateSemanticBayesian(img gocv.Mat, points []iface.PointXYZ, semanticColors, confidences [3]gocv.Mat,
	stamp time.Time, extrinsics *gmat.Dense,
) error {
	imgPNG, err := matPNG(img)
	if err != nil {
		return err
	}
	parts := map[string][]byte{
		"image":  imgPNG,
		"points": pointsToBytes(points),
	}
	for r := 0; r < 3; r++ {
		semPNG, err := matPNG(semanticColors[r])
		if err != nil {
			return err
		}
		parts[fmt.Sprintf("semantic_%d", r)] = semPNG
		parts[fmt.Sprintf("confidence_%d", r)] = confidences[r].ToBytes()
	}
	return g.post("/api/cloud/semantic_bayesian", stamp, extrinsics, parts)
}

func (g *HTTPGenerator) post(path string, stamp time.Time, extrinsics *gmat.Dense, parts map[string][]byte) error {
	k, err := intrinsicsJSON(g.store.Intrinsics())
	if err != nil {
		return err
	}
	form := map[string]string{
		"stamp":             fmt.Sprintf("%d", stamp.UnixNano()),
		"includeBackground": fmt.Sprintf("%t", g.includeBackground),
		"intrinsics":        k,
	}
	if extrinsics != nil {
		enc, err := extrinsicsJSON(extrinsics)
		if err != nil {
			return err
		}
		form["extrinsics"] = enc
	}
	req := g.client.R().SetFormData(form)
	for name, data := range parts {
		req.SetFileReader(name, name+".bin", bytes.NewReader(data))
	}
	resp, err := req.Post(g.baseURL + path)
	if err != nil {
		return fmt.Errorf("cloud generator: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("cloud generator: server returned %s", resp.Status())
	}
	return nil
}

func matPNG(img gocv.Mat) ([]byte, error) {
	buf, err := gocv.IMEncode(gocv.PNGFileExt, img)
	if err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	defer buf.Close()
	return append([]byte(nil), buf.GetBytes()...), nil
}

func pointsToBytes(points []iface.PointXYZ) []byte {
	buf := make([]byte, len(points)*12)
	for i, p := range points {
		binary.LittleEndian.PutUint32(buf[i*12:], math.Float32bits(p.X))
		binary.LittleEndian.PutUint32(buf[i*12+4:], math.Float32bits(p.Y))
		binary.LittleEndian.PutUint32(buf[i*12+8:], math.Float32bits(p.Z))
	}
	return buf
}

// intrinsicsJSON encodes the 3x3 projection matrix as a flat row-major
// JSON array, the same shape the calibration feed delivers.
func intrinsicsJSON(k *gmat.Dense) (string, error) {
	flat := make([]float64, 0, 9)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			flat = append(flat, k.At(i, j))
		}
	}
	enc, err := json.Marshal(flat)
	if err != nil {
		return "", err
	}
	return string(enc), nil
}

func extrinsicsJSON(m *gmat.Dense) (string, error) {
	rows := make([][]float64, 4)
	for i := 0; i < 4; i++ {
		rows[i] = make([]float64, 4)
		for j := 0; j < 4; j++ {
			rows[i][j] = m.At(i, j)
		}
	}
	enc, err := json.Marshal(rows)
	if err != nil {
		return "", err
	}
	return string(enc), nil
}
