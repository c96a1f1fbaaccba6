package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		wantErr bool
		check   func(*testing.T, *Config)
	}{
		{
			name:    "uses defaults when nothing is set",
			envVars: map[string]string{},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, 4, c.Workers)
				assert.Equal(t, 1, c.EyeBuffer)
				assert.Equal(t, "default", c.PupilPreset)
				assert.Equal(t, 960.0, c.Focal)
				assert.Equal(t, 600.0, c.Distance)
				assert.Equal(t, 60, c.NormWidth)
				assert.Equal(t, 36, c.NormHeight)
				assert.Equal(t, 20.0, c.MaxPoseError)
				assert.Equal(t, "lib/libonnxruntime.so", c.ORTLibPath)
				assert.Equal(t, "info", c.LogLevel)
				assert.False(t, c.UsesS3())
				assert.False(t, c.UsesSuperResolution())
			},
		},
		{
			name: "reads overrides",
			envVars: map[string]string{
				"WORKERS":         "8",
				"EYE_BUFFER":      "3",
				"PUPIL_PRESET":    "superres",
				"SR_MODEL_PATH":   "models/realesrgan_x4.onnx",
				"AWS_BUCKET_NAME": "eye-gaze-data",
				"S3_PREFIX":       "data/user1",
				"BLUR_THRESHOLD":  "80.5",
			},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, 8, c.Workers)
				assert.Equal(t, 3, c.EyeBuffer)
				assert.Equal(t, "superres", c.PupilPreset)
				assert.Equal(t, 80.5, c.BlurThreshold)
				assert.True(t, c.UsesS3())
				assert.True(t, c.UsesSuperResolution())
			},
		},
		{
			name:    "fails on unknown preset",
			envVars: map[string]string{"PUPIL_PRESET": "fancy"},
			wantErr: true,
		},
		{
			name:    "fails on zero workers",
			envVars: map[string]string{"WORKERS": "0"},
			wantErr: true,
		},
		{
			name:    "fails on malformed number",
			envVars: map[string]string{"NORM_FOCAL": "wide"},
			wantErr: true,
		},
		{
			name:    "fails on negative buffer",
			envVars: map[string]string{"EYE_BUFFER": "-1"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg, err := Load()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}
