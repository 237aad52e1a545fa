package tracker

import (
	"github.com/golang/geo/r3"
	filter "github.com/milosgajdos/go-posefilter"
	"github.com/milosgajdos/go-posefilter/estimate"
	"github.com/milosgajdos/go-posefilter/kalman/kf"
	"github.com/milosgajdos/go-posefilter/noise"
	"github.com/milosgajdos/go-posefilter/sim"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// dims is the number of measured coordinates of a keypoint
const dims = 3

// State is a Slot lifecycle state
type State int

const (
	// Uninitialized slot has not received a valid measurement yet
	Uninitialized State = iota
	// Initialized slot holds its first measurement
	Initialized
	// Tracking slot has been corrected by at least two measurements
	Tracking
)

// String implements the Stringer interface.
func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initialized:
		return "initialized"
	case Tracking:
		return "tracking"
	}
	return "unknown"
}

// model is the constant velocity model shared by all slots of a tracker
type model struct {
	cv *sim.Discrete
	q  filter.Noise
	r  *noise.Gaussian
	// v0 is initial velocity variance
	v0 float64
}

func newModel(c Config) (*model, error) {
	cv, err := sim.NewConstantVelocity(dims, c.Dt())
	if err != nil {
		return nil, errors.Wrap(err, "failed to create constant velocity model")
	}

	var q filter.Noise
	if c.ProcessNoise == 0 {
		// the model is trusted exactly
		q, err = noise.NewZero(2 * dims)
	} else {
		q, err = noise.NewWhiteAcceleration(dims, c.Dt(), c.ProcessNoise)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to create process noise")
	}

	s2 := c.MeasurementNoise * c.MeasurementNoise
	rCov := mat.NewSymDense(dims, []float64{
		s2, 0, 0,
		0, s2, 0,
		0, 0, s2,
	})
	r, err := noise.NewGaussian(make([]float64, dims), rCov)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create measurement noise")
	}

	return &model{
		cv: cv,
		q:  q,
		r:  r,
		v0: c.InitVelocityStd * c.InitVelocityStd,
	}, nil
}

// initCond returns initial condition of a track first seen at p
func (m *model) initCond(p r3.Vector) *sim.InitCond {
	state := mat.NewVecDense(2*dims, []float64{p.X, p.Y, p.Z, 0, 0, 0})

	rCov := m.r.Cov()
	cov := mat.NewSymDense(2*dims, nil)
	for i := 0; i < dims; i++ {
		cov.SetSym(i, i, rCov.At(i, i))
		cov.SetSym(dims+i, dims+i, m.v0)
	}

	return sim.NewInitCond(state, cov)
}

// Slot is a single keypoint track
type Slot struct {
	state State
	f     *kf.KF
	// est is the current estimate; nil until the first valid measurement
	est     *estimate.Base
	misses  int
	history []filter.Estimate
}

// State returns slot lifecycle state.
func (s *Slot) State() State {
	return s.state
}

// Misses returns the number of consecutive frames without a valid measurement.
func (s *Slot) Misses() int {
	return s.misses
}

// Position returns the current filtered position. It is zero for uninitialized slots.
func (s *Slot) Position() r3.Vector {
	if s.est == nil {
		return r3.Vector{}
	}

	return toPoint(s.est.Head(dims))
}

// Velocity returns the current filtered velocity. It is zero for uninitialized slots.
func (s *Slot) Velocity() r3.Vector {
	if s.est == nil {
		return r3.Vector{}
	}

	return toPoint(s.est.Head(2 * dims)[dims:])
}

// Cov returns the current state covariance or nil for uninitialized slots.
func (s *Slot) Cov() mat.Symmetric {
	if s.f == nil {
		return nil
	}

	return s.f.Cov()
}

// History returns recorded estimates, one per frame since the slot initialization.
func (s *Slot) History() []filter.Estimate {
	h := make([]filter.Estimate, len(s.history))
	copy(h, s.history)

	return h
}

// init starts the track at p
func (s *Slot) init(m *model, p r3.Vector) error {
	ic := m.initCond(p)

	f, err := kf.New(m.cv, ic, m.q, m.r)
	if err != nil {
		return errors.Wrap(err, "failed to create keypoint filter")
	}

	est, err := estimate.NewBaseWithCov(ic.State(), ic.Cov())
	if err != nil {
		return err
	}

	s.f = f
	s.est = est
	s.state = Initialized
	s.misses = 0

	return nil
}

// update predicts the next state and corrects it with measurement p
func (s *Slot) update(p r3.Vector) error {
	est, err := s.f.Run(s.est.Val(), nil, mat.NewVecDense(dims, []float64{p.X, p.Y, p.Z}))
	if err != nil {
		return err
	}

	if err := s.set(est); err != nil {
		return err
	}
	s.state = Tracking
	s.misses = 0

	return nil
}

// coast predicts the next state without a measurement
func (s *Slot) coast() error {
	s.misses++
	if s.state == Uninitialized {
		return nil
	}

	est, err := s.f.Predict(s.est.Val(), nil)
	if err != nil {
		return err
	}

	return s.set(est)
}

// set stores filter estimate e as the current slot estimate
func (s *Slot) set(e filter.Estimate) error {
	est, err := estimate.NewBaseWithCov(e.Val(), e.Cov())
	if err != nil {
		return err
	}
	s.est = est

	return nil
}

// record appends the current estimate to the slot history
func (s *Slot) record() {
	if s.state == Uninitialized {
		return
	}

	// estimates are never modified once stored
	s.history = append(s.history, s.est)
}

// snapshot is a copy of slot state used to roll back a failed frame
type snapshot struct {
	state   State
	f       *kf.KF
	est     *estimate.Base
	cov     mat.Symmetric
	misses  int
	history int
}

func (s *Slot) snapshot() snapshot {
	snap := snapshot{
		state:   s.state,
		f:       s.f,
		est:     s.est,
		misses:  s.misses,
		history: len(s.history),
	}
	if s.f != nil {
		snap.cov = s.f.Cov()
	}

	return snap
}

// restore rolls the slot back to snap.
// It returns error if the filter covariance can not be restored.
func (s *Slot) restore(snap snapshot) error {
	s.state = snap.state
	s.f = snap.f
	s.est = snap.est
	s.misses = snap.misses
	s.history = s.history[:snap.history]

	if s.f != nil && snap.cov != nil {
		if err := s.f.SetCov(snap.cov); err != nil {
			return errors.Wrap(err, "failed to restore filter covariance")
		}
	}

	return nil
}

// toPoint converts the first three values of v to a point
func toPoint(v []float64) r3.Vector {
	return r3.Vector{X: v[0], Y: v[1], Z: v[2]}
}
