package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	assert.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const validYAML = `
fusionMode: max
sensorWidth: 640
sensorHeight: 480
modelInputWidth: 480
modelInputHeight: 360
numClasses: 150
backgroundClass: 7
extrinsics: "[[1,0,0,0],[0,1,0,0],[0,0,1,0],[0,0,0,1]]"
fx: 525.0
fy: 525.0
cx: 319.5
cy: 239.5
segmenterURL: http://127.0.0.1:9090
cloudGeneratorURL: http://127.0.0.1:9091
apiPort: 8080
metricsPort: 50052
`

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	assert.NoError(t, err)
	assert.Equal(t, ModeMax, cfg.FusionMode)
	assert.Equal(t, 640, cfg.SensorWidth)
	assert.Equal(t, 150, cfg.NumClasses)
	assert.Equal(t, uint8(7), cfg.BackgroundClass)

	t.Run("Defaults Applied", func(t *testing.T) {
		assert.Equal(t, 0.3, cfg.SlopSeconds)
		assert.Equal(t, "cpu", cfg.Device)
	})

	t.Run("Missing File", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			FusionMode:   ModeColor,
			SensorWidth:  640,
			SensorHeight: 480,
			NumClasses:   21,
			Extrinsics:   "[[1,0,0,0],[0,1,0,0],[0,0,1,0],[0,0,0,1]]",
		}
	}

	t.Run("Valid", func(t *testing.T) {
		assert.NoError(t, base().Validate())
	})

	t.Run("Invalid Mode", func(t *testing.T) {
		c := base()
		c.FusionMode = "fancy"
		assert.Error(t, c.Validate())
	})

	t.Run("Bad Sensor Size", func(t *testing.T) {
		c := base()
		c.SensorHeight = 0
		assert.Error(t, c.Validate())
	})

	t.Run("Model Input Falls Back To Sensor Size", func(t *testing.T) {
		c := base()
		assert.NoError(t, c.Validate())
		assert.Equal(t, 640, c.ModelInputWidth)
		assert.Equal(t, 480, c.ModelInputHeight)
	})

	t.Run("Class Count Bounds", func(t *testing.T) {
		c := base()
		c.NumClasses = 0
		assert.Error(t, c.Validate())
		c.NumClasses = 257
		assert.Error(t, c.Validate())
	})

	t.Run("Remap Entry Out Of Range", func(t *testing.T) {
		c := base()
		c.ClassRemap = []int{4, 300}
		assert.Error(t, c.Validate())
	})

	t.Run("Bad Extrinsics JSON", func(t *testing.T) {
		c := base()
		c.Extrinsics = "not json"
		assert.Error(t, c.Validate())
	})

	t.Run("Wrong Extrinsics Shape", func(t *testing.T) {
		c := base()
		c.Extrinsics = "[[1,0],[0,1]]"
		assert.Error(t, c.Validate())
	})
}

func TestExtrinsicsMatrix(t *testing.T) {
	c := &Config{Extrinsics: "[[1,2,3,4],[5,6,7,8],[9,10,11,12],[13,14,15,16]]"}
	flat, err := c.ExtrinsicsMatrix()
	assert.NoError(t, err)
	assert.Len(t, flat, 16)
	assert.Equal(t, 1.0, flat[0])
	assert.Equal(t, 16.0, flat[15])
}
