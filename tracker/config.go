package tracker

import (
	"math"

	"github.com/pkg/errors"
)

const (
	// DefaultFreq is the default filter update frequency in Hz
	DefaultFreq = 30.0
	// DefaultProcessNoise is the default white acceleration standard deviation
	DefaultProcessNoise = 1000.0
	// DefaultMeasurementNoise is the default measurement standard deviation
	DefaultMeasurementNoise = 20.0
	// DefaultInitVelocityStd is the default standard deviation of the initial velocity
	DefaultInitVelocityStd = 1000.0
)

// Config configures keypoint filters of a PersonTracker
type Config struct {
	// Freq is the frame frequency in Hz; the filter time step is 1/Freq
	Freq float64
	// ProcessNoise is the standard deviation of the white acceleration driving the model
	ProcessNoise float64
	// MeasurementNoise is the standard deviation of a single measured coordinate
	MeasurementNoise float64
	// InitVelocityStd is the standard deviation of the velocity of a new track
	InitVelocityStd float64
	// History records filter estimates of every slot for offline smoothing
	History bool
}

// DefaultConfig returns default tracker configuration.
func DefaultConfig() Config {
	return Config{
		Freq:             DefaultFreq,
		ProcessNoise:     DefaultProcessNoise,
		MeasurementNoise: DefaultMeasurementNoise,
		InitVelocityStd:  DefaultInitVelocityStd,
	}
}

// Validate returns error if any of the configuration values is out of range.
func (c Config) Validate() error {
	if !(c.Freq > 0) || math.IsInf(c.Freq, 0) {
		return errors.Errorf("invalid frequency: %v", c.Freq)
	}

	if !(c.ProcessNoise >= 0) || math.IsInf(c.ProcessNoise, 0) {
		return errors.Errorf("invalid process noise: %v", c.ProcessNoise)
	}

	if !(c.MeasurementNoise > 0) || math.IsInf(c.MeasurementNoise, 0) {
		return errors.Errorf("invalid measurement noise: %v", c.MeasurementNoise)
	}

	if !(c.InitVelocityStd > 0) || math.IsInf(c.InitVelocityStd, 0) {
		return errors.Errorf("invalid initial velocity deviation: %v", c.InitVelocityStd)
	}

	return nil
}

// Dt returns filter time step.
func (c Config) Dt() float64 {
	return 1.0 / c.Freq
}
