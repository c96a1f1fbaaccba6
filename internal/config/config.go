package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"

	"github.com/dudu/gazeprep/internal/pupil"
)

type Config struct {
	// Processing
	Workers       int     `envconfig:"WORKERS" default:"4"`
	EyeBuffer     int     `envconfig:"EYE_BUFFER" default:"1"`
	PupilPreset   string  `envconfig:"PUPIL_PRESET" default:"default"`
	BlurThreshold float64 `envconfig:"BLUR_THRESHOLD" default:"0"`
	MaxPoseError  float64 `envconfig:"POSE_MAX_RMS" default:"20"`

	// Normalization
	Focal      float64 `envconfig:"NORM_FOCAL" default:"960"`
	Distance   float64 `envconfig:"NORM_DISTANCE" default:"600"`
	NormWidth  int     `envconfig:"NORM_WIDTH" default:"60"`
	NormHeight int     `envconfig:"NORM_HEIGHT" default:"36"`

	// Super-resolution
	SRModelPath string `envconfig:"SR_MODEL_PATH"`
	SRThreads   int    `envconfig:"SR_THREADS" default:"0"`
	ORTLibPath  string `envconfig:"ORT_LIB_PATH" default:"lib/libonnxruntime.so"`

	// Storage
	S3Bucket          string `envconfig:"AWS_BUCKET_NAME"`
	S3Prefix          string `envconfig:"S3_PREFIX"`
	S3Region          string `envconfig:"AWS_REGION" default:"us-east-1"`
	S3AccessKeyID     string `envconfig:"AWS_ACCESS_KEY_ID"`
	S3SecretAccessKey string `envconfig:"AWS_SECRET_ACCESS_KEY"`

	// Logging
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	LogDir   string `envconfig:"LOG_DIR" default:"./storage/logs"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &cfg, nil
}

// Validate checks values envconfig cannot
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("WORKERS must be at least 1, got %d", c.Workers)
	}
	if c.EyeBuffer < 0 {
		return fmt.Errorf("EYE_BUFFER must not be negative, got %d", c.EyeBuffer)
	}
	if _, err := pupil.PresetByName(c.PupilPreset); err != nil {
		return err
	}
	if c.Focal <= 0 || c.Distance <= 0 {
		return fmt.Errorf("NORM_FOCAL and NORM_DISTANCE must be positive")
	}
	if c.NormWidth <= 0 || c.NormHeight <= 0 {
		return fmt.Errorf("NORM_WIDTH and NORM_HEIGHT must be positive")
	}
	if c.BlurThreshold < 0 {
		return fmt.Errorf("BLUR_THRESHOLD must not be negative")
	}
	if c.MaxPoseError <= 0 {
		return fmt.Errorf("POSE_MAX_RMS must be positive")
	}
	return nil
}

// UsesS3 reports whether frames come from a bucket
func (c *Config) UsesS3() bool {
	return c.S3Bucket != ""
}

// UsesSuperResolution reports whether pupil crops are upsampled
func (c *Config) UsesSuperResolution() bool {
	return c.SRModelPath != ""
}
