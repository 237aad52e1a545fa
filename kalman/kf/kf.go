package kf

import (
	filter "github.com/milosgajdos/go-posefilter"
	"github.com/milosgajdos/go-posefilter/estimate"
	"github.com/milosgajdos/go-posefilter/kalman"
	"github.com/milosgajdos/go-posefilter/noise"
	"github.com/milosgajdos/matrix"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

var _ kalman.Kalman = (*KF)(nil)

// KF is Kalman Filter
type KF struct {
	// m is KF system model
	m filter.DiscreteControlSystem
	// q is state noise a.k.a. process noise
	q filter.Noise
	// r is output noise a.k.a. measurement noise
	r filter.Noise
	// p is the KF covariance matrix
	p *mat.SymDense
	// pNext is the KF predicted covariance matrix
	pNext *mat.SymDense
	// inn is innovation vector
	inn *mat.VecDense
	// k is Kalman gain
	k *mat.Dense
}

// New creates new KF and returns it.
// It accepts the following parameters:
//   - m:      dynamical system model
//   - init:   initial condition of the filter
//   - q:      state noise a.k.a. process noise; only its covariance is used
//   - r:      output noise a.k.a. measurement noise; only its covariance is used
//
// It returns error if either of the following conditions is met:
//   - invalid model is given: model dimensions must be positive integers
//   - invalid state or output noise is given: noise covariance must either be nil or match the model dimensions
//   - initial condition covariance does not match the model state dimension
func New(m filter.DiscreteControlSystem, init filter.InitCond, q, r filter.Noise) (*KF, error) {
	// size of the input and output vectors
	nx, _, ny, _ := m.SystemDims()
	if nx <= 0 || ny <= 0 {
		return nil, errors.Errorf("invalid model dimensions: [%d x %d]", nx, ny)
	}

	if q == nil {
		q, _ = noise.NewNone()
	}

	if _, ok := q.(*noise.None); !ok && q.Cov().SymmetricDim() != nx {
		return nil, errors.Errorf("invalid state noise dimension: %d != %d", q.Cov().SymmetricDim(), nx)
	}

	if r == nil {
		r, _ = noise.NewNone()
	}

	if _, ok := r.(*noise.None); !ok && r.Cov().SymmetricDim() != ny {
		return nil, errors.Errorf("invalid output noise dimension: %d != %d", r.Cov().SymmetricDim(), ny)
	}

	rows, cols := m.SystemMatrix().Dims()
	if rows != nx || cols != nx {
		return nil, errors.Errorf("invalid propagation matrix dimensions: [%d x %d]", rows, cols)
	}

	if m.OutputMatrix() == nil {
		return nil, errors.New("model has no observation matrix")
	}

	rows, cols = m.OutputMatrix().Dims()
	if rows != ny || cols != nx {
		return nil, errors.Errorf("invalid observation matrix dimensions: [%d x %d]", rows, cols)
	}

	if init.Cov().SymmetricDim() != nx {
		return nil, errors.Errorf("invalid initial covariance dimension: %d != %d", init.Cov().SymmetricDim(), nx)
	}

	// initialize covariance matrix to initial condition covariance
	p := mat.NewSymDense(nx, nil)
	p.CopySym(init.Cov())

	// before the first prediction the predicted covariance is the initial one
	pNext := mat.NewSymDense(nx, nil)
	pNext.CopySym(p)

	return &KF{
		m:     m,
		q:     q,
		r:     r,
		p:     p,
		pNext: pNext,
		inn:   mat.NewVecDense(ny, nil),
		k:     mat.NewDense(nx, ny, nil),
	}, nil
}

// Predict calculates the next system state given the state x and input u and returns its estimate.
// The predicted covariance becomes the filter covariance, so consecutive calls without
// Update propagate the state and inflate its uncertainty (coasting).
// It returns error if it fails to propagate the state x to the next step.
func (k *KF) Predict(x, u mat.Vector) (filter.Estimate, error) {
	// propagate input state to the next step; the filter never injects noise samples
	xNext, err := k.m.Propagate(x, u, nil)
	if err != nil {
		return nil, errors.Wrap(err, "system state propagation failed")
	}

	// A*P*A'
	cov := &mat.Dense{}
	cov.Mul(k.m.SystemMatrix(), k.p)
	cov.Mul(cov, k.m.SystemMatrix().T())

	if _, ok := k.q.(*noise.None); !ok {
		cov.Add(cov, k.q.Cov())
	}

	symmetrize(k.pNext, cov)
	k.p.CopySym(k.pNext)

	return estimate.NewBaseWithCov(xNext, k.pNext)
}

// Update corrects state x using the measurement ym, given control intput u and returns corrected estimate.
// It corrects the last predicted covariance. Neither x nor ym are modified.
// It returns error if either invalid state was supplied or if it fails to calculate system output estimate.
func (k *KF) Update(x, u, ym mat.Vector) (filter.Estimate, error) {
	nx, _, ny, _ := k.m.SystemDims()

	if ym.Len() != ny {
		return nil, errors.Errorf("invalid measurement length: %d != %d", ym.Len(), ny)
	}

	// observe system output in the next step
	yNext, err := k.m.Observe(x, u, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to observe system output")
	}

	H := k.m.OutputMatrix()

	// P*H'
	pxy := mat.NewDense(nx, ny, nil)
	pxy.Mul(k.pNext, H.T())

	// H*P*H' + R
	pyy := mat.NewDense(ny, ny, nil)
	pyy.Mul(H, pxy)
	if _, ok := k.r.(*noise.None); !ok {
		pyy.Add(pyy, k.r.Cov())
	}

	// calculate Kalman gain
	pyyInv := &mat.Dense{}
	if err := pyyInv.Inverse(pyy); err != nil {
		return nil, errors.Wrap(err, "failed to calculate Pyy inverse")
	}
	gain := &mat.Dense{}
	gain.Mul(pxy, pyyInv)

	// innovation vector
	inn := mat.NewVecDense(ny, nil)
	inn.SubVec(ym, yNext)

	// corrected state
	corr := mat.NewVecDense(nx, nil)
	corr.MulVec(gain, inn)
	xCorr := mat.NewVecDense(nx, nil)
	xCorr.AddVec(x, corr)

	// Joseph form update: (I-K*H)*P*(I-K*H)' + K*R*K'
	eye, err := matrix.NewDenseValIdentity(nx, 1.0)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create identity matrix")
	}
	a := &mat.Dense{}
	a.Mul(gain, H)
	a.Sub(eye, a)

	pCorr := &mat.Dense{}
	pCorr.Mul(a, k.pNext)
	pCorr.Mul(pCorr, a.T())

	if _, ok := k.r.(*noise.None); !ok {
		kr := &mat.Dense{}
		kr.Mul(gain, k.r.Cov())
		krk := &mat.Dense{}
		krk.Mul(kr, gain.T())
		pCorr.Add(pCorr, krk)
	}

	// update KF innovation vector, gain and covariance
	k.inn.CopyVec(inn)
	k.k.Copy(gain)
	symmetrize(k.p, pCorr)
	k.pNext.CopySym(k.p)

	return estimate.NewBaseWithCov(xCorr, k.p)
}

// Run runs one step of KF for given state x, input u and measurement z.
// It corrects system state x using measurement z and returns new system estimate.
// It returns error if it either fails to propagate or correct state x.
func (k *KF) Run(x, u, z mat.Vector) (filter.Estimate, error) {
	pred, err := k.Predict(x, u)
	if err != nil {
		return nil, err
	}

	est, err := k.Update(pred.Val(), u, z)
	if err != nil {
		return nil, err
	}

	return est, nil
}

// Model returns KF models
func (k *KF) Model() filter.DiscreteControlSystem {
	return k.m
}

// StateNoise retruns state noise
func (k *KF) StateNoise() filter.Noise {
	return k.q
}

// OutputNoise retruns output noise
func (k *KF) OutputNoise() filter.Noise {
	return k.r
}

// Cov returns KF covariance
func (k *KF) Cov() mat.Symmetric {
	cov := mat.NewSymDense(k.p.SymmetricDim(), nil)
	cov.CopySym(k.p)

	return cov
}

// SetCov sets KF covariance matrix to cov.
// It returns error if either cov is nil or its dimensions are not the same as KF covariance dimensions.
func (k *KF) SetCov(cov mat.Symmetric) error {
	if cov == nil {
		return errors.New("invalid covariance matrix: nil")
	}

	if cov.SymmetricDim() != k.p.SymmetricDim() {
		return errors.Errorf("invalid covariance matrix dims: [%d x %d]", cov.SymmetricDim(), cov.SymmetricDim())
	}

	k.p.CopySym(cov)
	k.pNext.CopySym(cov)

	return nil
}

// Gain returns Kalman gain
func (k *KF) Gain() mat.Matrix {
	gain := &mat.Dense{}
	gain.CloneFrom(k.k)

	return gain
}

// Innovation returns the innovation of the last update
func (k *KF) Innovation() mat.Vector {
	inn := &mat.VecDense{}
	inn.CloneFromVec(k.inn)

	return inn
}

// symmetrize stores the symmetric part of m in dst
func symmetrize(dst *mat.SymDense, m mat.Matrix) {
	n := dst.SymmetricDim()
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			dst.SetSym(i, j, 0.5*(m.At(i, j)+m.At(j, i)))
		}
	}
}
