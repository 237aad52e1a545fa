// Package config loads tuning parameters of the keypoint filtering pipeline
// from JSON documents. Fields left out of a document fall back to defaults.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/milosgajdos/go-posefilter/camera"
	"github.com/milosgajdos/go-posefilter/depth"
	"github.com/milosgajdos/go-posefilter/pipeline"
	"github.com/milosgajdos/go-posefilter/tracker"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// maxFileSize is the largest accepted config file
const maxFileSize = 1 * 1024 * 1024

// TuningConfig holds tuning parameters of the pipeline.
// Unset fields read as their defaults through the Get* methods.
type TuningConfig struct {
	// Filter params
	Freq             *float64 `json:"freq,omitempty"`
	ProcessNoise     *float64 `json:"process_noise,omitempty"`
	MeasurementNoise *float64 `json:"measurement_noise,omitempty"`
	InitVelocityStd  *float64 `json:"init_velocity_std,omitempty"`
	History          *bool    `json:"history,omitempty"`

	// Depth preprocessing params
	GaussianBlur  *bool `json:"gaussian_blur,omitempty"`
	BlurKernel    *int  `json:"blur_kernel,omitempty"`
	MinimalFilter *bool `json:"minimal_filter,omitempty"`
	MinKernel     *int  `json:"min_kernel,omitempty"`

	// Projection params
	Rotation   *string `json:"rotation,omitempty"`   // "none", "cw90", "180" or "ccw90"
	Convention *string `json:"convention,omitempty"` // "reference" or "pinhole"

	// Registry params
	MaxMissing *int `json:"max_missing,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field set to its default.
func DefaultTuningConfig() *TuningConfig {
	return &TuningConfig{
		Freq:             ptrFloat64(tracker.DefaultFreq),
		ProcessNoise:     ptrFloat64(tracker.DefaultProcessNoise),
		MeasurementNoise: ptrFloat64(tracker.DefaultMeasurementNoise),
		InitVelocityStd:  ptrFloat64(tracker.DefaultInitVelocityStd),
		History:          ptrBool(false),
		GaussianBlur:     ptrBool(true),
		BlurKernel:       ptrInt(depth.DefaultBlurKernel),
		MinimalFilter:    ptrBool(true),
		MinKernel:        ptrInt(depth.DefaultMinKernel),
		Rotation:         ptrString(camera.Rotate90Clockwise.String()),
		Convention:       ptrString(camera.ConventionReference.String()),
		MaxMissing:       ptrInt(0),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file must have a .json extension and be at most 1MB large.
// Fields omitted from the file keep their defaults, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, errors.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to stat config file")
	}
	if fileInfo.Size() > maxFileSize {
		return nil, errors.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config JSON")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	return cfg, nil
}

// Validate checks that every set field holds a valid value.
func (c *TuningConfig) Validate() error {
	if err := c.TrackerConfig().Validate(); err != nil {
		return err
	}

	if err := c.Preprocessor().Validate(); err != nil {
		return err
	}

	if _, err := camera.ParseRotation(c.GetRotation()); err != nil {
		return err
	}

	if _, err := camera.ParseConvention(c.GetConvention()); err != nil {
		return err
	}

	if c.GetMaxMissing() < 0 {
		return errors.Errorf("max_missing must be non-negative, got %d", c.GetMaxMissing())
	}

	return nil
}

// GetFreq returns filter frequency in Hz.
func (c *TuningConfig) GetFreq() float64 {
	if c.Freq == nil {
		return tracker.DefaultFreq
	}
	return *c.Freq
}

// GetProcessNoise returns the white acceleration standard deviation.
func (c *TuningConfig) GetProcessNoise() float64 {
	if c.ProcessNoise == nil {
		return tracker.DefaultProcessNoise
	}
	return *c.ProcessNoise
}

// GetMeasurementNoise returns the measurement standard deviation.
func (c *TuningConfig) GetMeasurementNoise() float64 {
	if c.MeasurementNoise == nil {
		return tracker.DefaultMeasurementNoise
	}
	return *c.MeasurementNoise
}

// GetInitVelocityStd returns the initial velocity standard deviation.
func (c *TuningConfig) GetInitVelocityStd() float64 {
	if c.InitVelocityStd == nil {
		return tracker.DefaultInitVelocityStd
	}
	return *c.InitVelocityStd
}

// GetHistory returns true if filter history is recorded.
func (c *TuningConfig) GetHistory() bool {
	if c.History == nil {
		return false
	}
	return *c.History
}

// GetGaussianBlur returns true if depth frames are smoothed.
func (c *TuningConfig) GetGaussianBlur() bool {
	if c.GaussianBlur == nil {
		return true
	}
	return *c.GaussianBlur
}

// GetBlurKernel returns Gaussian kernel size.
func (c *TuningConfig) GetBlurKernel() int {
	if c.BlurKernel == nil {
		return depth.DefaultBlurKernel
	}
	return *c.BlurKernel
}

// GetMinimalFilter returns true if the local minimum filter is enabled.
func (c *TuningConfig) GetMinimalFilter() bool {
	if c.MinimalFilter == nil {
		return true
	}
	return *c.MinimalFilter
}

// GetMinKernel returns local minimum window size.
func (c *TuningConfig) GetMinKernel() int {
	if c.MinKernel == nil {
		return depth.DefaultMinKernel
	}
	return *c.MinKernel
}

// GetRotation returns rotation name.
func (c *TuningConfig) GetRotation() string {
	if c.Rotation == nil {
		return camera.Rotate90Clockwise.String()
	}
	return *c.Rotation
}

// GetConvention returns projection convention name.
func (c *TuningConfig) GetConvention() string {
	if c.Convention == nil {
		return camera.ConventionReference.String()
	}
	return *c.Convention
}

// GetMaxMissing returns the number of missed frames after which a person is evicted.
func (c *TuningConfig) GetMaxMissing() int {
	if c.MaxMissing == nil {
		return 0
	}
	return *c.MaxMissing
}

// TrackerConfig returns keypoint filter configuration.
func (c *TuningConfig) TrackerConfig() tracker.Config {
	return tracker.Config{
		Freq:             c.GetFreq(),
		ProcessNoise:     c.GetProcessNoise(),
		MeasurementNoise: c.GetMeasurementNoise(),
		InitVelocityStd:  c.GetInitVelocityStd(),
		History:          c.GetHistory(),
	}
}

// Preprocessor returns depth preprocessing configuration.
func (c *TuningConfig) Preprocessor() depth.Preprocessor {
	return depth.Preprocessor{
		Blur:       c.GetGaussianBlur(),
		BlurKernel: c.GetBlurKernel(),
		MinFilter:  c.GetMinimalFilter(),
		MinKernel:  c.GetMinKernel(),
	}
}

// CameraConfig returns projector configuration.
// It returns error if rotation or convention names are unknown.
func (c *TuningConfig) CameraConfig() (camera.Config, error) {
	rot, err := camera.ParseRotation(c.GetRotation())
	if err != nil {
		return camera.Config{}, err
	}

	conv, err := camera.ParseConvention(c.GetConvention())
	if err != nil {
		return camera.Config{}, err
	}

	return camera.Config{
		Rotation:     rot,
		Convention:   conv,
		Preprocessor: c.Preprocessor(),
	}, nil
}

// NewPipeline creates a pipeline for a camera with intrinsic matrix k configured by c.
// It returns error if c is invalid or the pipeline fails to be created.
func (c *TuningConfig) NewPipeline(k mat.Matrix) (*pipeline.Pipeline, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	camCfg, err := c.CameraConfig()
	if err != nil {
		return nil, err
	}

	proj, err := camera.NewProjector(k, camCfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create projector")
	}

	reg, err := tracker.NewRegistry(c.TrackerConfig(), c.GetMaxMissing())
	if err != nil {
		return nil, errors.Wrap(err, "failed to create registry")
	}

	return pipeline.New(proj, reg)
}
