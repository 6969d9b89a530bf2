package cloudgen

import (
	"encoding/binary"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gocv.io/x/gocv"
	gmat "gonum.org/v1/gonum/mat"

	"github.com/russelldj/semantic-slam/calib"
	"github.com/russelldj/semantic-slam/iface"
)

func testStore(t *testing.T) *calib.Store {
	t.Helper()
	s, err := calib.NewStore([]float64{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}, 525, 525, 319.5, 239.5)
	assert.NoError(t, err)
	return s
}

type capturedRequest struct {
	path  string
	form  map[string]string
	files map[string][]byte
}

func captureServer(t *testing.T, out *capturedRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseMultipartForm(32<<20))
		out.path = r.URL.Path
		out.form = map[string]string{}
		for k, v := range r.MultipartForm.Value {
			out.form[k] = v[0]
		}
		out.files = map[string][]byte{}
		for k, fhs := range r.MultipartForm.File {
			f, err := fhs[0].Open()
			assert.NoError(t, err)
			data, err := io.ReadAll(f)
			assert.NoError(t, err)
			_ = f.Close()
			out.files[k] = data
		}
		w.WriteHeader(http.StatusOK)
	}))
}

func TestGenerateColor(t *testing.T) {
	var got capturedRequest
	srv := captureServer(t, &got)
	defer srv.Close()

	g := NewHTTP(srv.URL, testStore(t), true, time.Second)
	img := gocv.NewMatWithSize(2, 2, gocv.MatTypeCV8UC3)
	defer img.Close()
	points := []iface.PointXYZ{{X: 1, Y: 2, Z: 3}, {X: -4, Y: 0.5, Z: 6}}
	stamp := time.Unix(7, 500)

	assert.NoError(t, g.GenerateColor(img, points, stamp))
	assert.Equal(t, "/api/cloud/color", got.path)
	assert.Equal(t, "7000000500", got.form["stamp"])
	assert.Equal(t, "true", got.form["includeBackground"])
	assert.Equal(t, "[525,0,319.5,0,525,239.5,0,0,1]", got.form["intrinsics"])
	assert.NotContains(t, got.form, "extrinsics")

	// PNG magic on the image part, 12 bytes per point on the scan part.
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, got.files["image"][:4])
	assert.Len(t, got.files["points"], 24)
	x0 := math.Float32frombits(binary.LittleEndian.Uint32(got.files["points"]))
	assert.Equal(t, float32(1), x0)
	z1 := math.Float32frombits(binary.LittleEndian.Uint32(got.files["points"][20:]))
	assert.Equal(t, float32(6), z1)
}

func TestGenerateSemanticMax(t *testing.T) {
	var got capturedRequest
	srv := captureServer(t, &got)
	defer srv.Close()

	g := NewHTTP(srv.URL, testStore(t), false, time.Second)
	img := gocv.NewMatWithSize(2, 2, gocv.MatTypeCV8UC3)
	defer img.Close()
	sem := gocv.NewMatWithSize(2, 2, gocv.MatTypeCV8UC3)
	defer sem.Close()
	conf := gocv.NewMatWithSize(2, 2, gocv.MatTypeCV32FC1)
	defer conf.Close()
	ext := gmat.NewDense(4, 4, []float64{
		1, 0, 0, 0.5,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	})

	err := g.GenerateSemanticMax(img, []iface.PointXYZ{{X: 1}}, sem, conf, time.Unix(9, 0), ext)
	assert.NoError(t, err)
	assert.Equal(t, "/api/cloud/semantic_max", got.path)
	assert.Equal(t, "false", got.form["includeBackground"])
	assert.Equal(t, "[[1,0,0,0.5],[0,1,0,0],[0,0,1,0],[0,0,0,1]]", got.form["extrinsics"])
	assert.Contains(t, got.files, "semantic")
	// Raw float32 buffer, 4 bytes per pixel.
	assert.Len(t, got.files["confidence"], 16)
}

func TestGenerateSemanticBayesian(t *testing.T) {
	var got capturedRequest
	srv := captureServer(t, &got)
	defer srv.Close()

	g := NewHTTP(srv.URL, testStore(t), true, time.Second)
	img := gocv.NewMatWithSize(1, 1, gocv.MatTypeCV8UC3)
	defer img.Close()
	var sems, confs [3]gocv.Mat
	for r := 0; r < 3; r++ {
		sems[r] = gocv.NewMatWithSize(1, 1, gocv.MatTypeCV8UC3)
		confs[r] = gocv.NewMatWithSize(1, 1, gocv.MatTypeCV32FC1)
	}
	defer func() {
		for r := 0; r < 3; r++ {
			_ = sems[r].Close()
			_ = confs[r].Close()
		}
	}()
	ext := gmat.NewDense(4, 4, []float64{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	})

	err := g.GenerateSemanticBayesian(img, nil, sems, confs, time.Unix(3, 0), ext)
	assert.NoError(t, err)
	assert.Equal(t, "/api/cloud/semantic_bayesian", got.path)
	for _, name := range []string{"semantic_0", "semantic_1", "semantic_2",
		"confidence_0", "confidence_1", "confidence_2"} {
		assert.Contains(t, got.files, name)
	}
}

func TestIntrinsicsFollowCalibrationUpdates(t *testing.T) {
	var got capturedRequest
	srv := captureServer(t, &got)
	defer srv.Close()

	store := testStore(t)
	g := NewHTTP(srv.URL, store, true, time.Second)
	img := gocv.NewMatWithSize(1, 1, gocv.MatTypeCV8UC3)
	defer img.Close()

	assert.NoError(t, g.GenerateColor(img, nil, time.Unix(1, 0)))
	assert.Equal(t, "[525,0,319.5,0,525,239.5,0,0,1]", got.form["intrinsics"])

	// A runtime calibration update reaches the generator on the next frame.
	assert.NoError(t, store.SetIntrinsicsMatrix([]float64{600, 0, 321, 0, 610, 241, 0, 0, 1}))
	assert.NoError(t, g.GenerateColor(img, nil, time.Unix(2, 0)))
	assert.Equal(t, "[600,0,321,0,610,241,0,0,1]", got.form["intrinsics"])
}

func TestGeneratorServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "projection failed", http.StatusBadGateway)
	}))
	defer srv.Close()

	g := NewHTTP(srv.URL, testStore(t), true, time.Second)
	img := gocv.NewMatWithSize(1, 1, gocv.MatTypeCV8UC3)
	defer img.Close()

	assert.Error(t, g.GenerateColor(img, nil, time.Unix(0, 0)))
}
