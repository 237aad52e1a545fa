package noise

import (
	"fmt"
	"math"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// Process is zero mean noise described only by its covariance.
// Unlike Gaussian it accepts positive semi-definite covariances, which is what
// discretized process noise models usually produce.
type Process struct {
	cov *mat.SymDense
	// l is a square root of cov: l*l' = cov
	l   *mat.Dense
	rnd *rand.Rand
}

// NewProcess creates new zero mean Process noise with covariance cov.
// It returns error if cov is nil or if it fails to factorize it.
func NewProcess(cov mat.Symmetric) (*Process, error) {
	if cov == nil {
		return nil, errors.New("invalid covariance matrix: nil")
	}

	c := mat.NewSymDense(cov.SymmetricDim(), nil)
	c.CopySym(cov)

	// SVD instead of Cholesky: cov is usually singular
	var svd mat.SVD
	if ok := svd.Factorize(c, mat.SVDFull); !ok {
		return nil, errors.New("SVD factorization failed")
	}

	l := new(mat.Dense)
	svd.UTo(l)
	vals := svd.Values(nil)
	for i := range vals {
		vals[i] = math.Sqrt(vals[i])
	}
	l.Mul(l, mat.NewDiagDense(len(vals), vals))

	return &Process{
		cov: c,
		l:   l,
		rnd: rand.New(rand.NewSource(uint64(time.Now().UnixNano()))),
	}, nil
}

// NewWhiteAcceleration creates process noise of a constant velocity model driven by
// white acceleration noise with standard deviation sigma, discretized with time step dt.
// The state is ordered as dims positions followed by dims velocities.
// It returns error if dims is not positive or dt or sigma are negative.
func NewWhiteAcceleration(dims int, dt, sigma float64) (*Process, error) {
	cov, err := WhiteAccelerationCov(dims, dt, sigma)
	if err != nil {
		return nil, err
	}

	return NewProcess(cov)
}

// WhiteAccelerationCov returns the covariance of NewWhiteAcceleration noise:
//
//	[ dt^4/4  dt^3/2 ]
//	[ dt^3/2  dt^2   ] * sigma^2
//
// per axis, laid out over the position and velocity blocks of the state.
func WhiteAccelerationCov(dims int, dt, sigma float64) (*mat.SymDense, error) {
	if dims <= 0 {
		return nil, errors.Errorf("invalid number of dimensions: %d", dims)
	}

	if dt <= 0 || sigma < 0 || math.IsNaN(dt) || math.IsNaN(sigma) {
		return nil, errors.Errorf("invalid white acceleration parameters: dt=%v sigma=%v", dt, sigma)
	}

	s2 := sigma * sigma
	pp := math.Pow(dt, 4) / 4 * s2
	pv := math.Pow(dt, 3) / 2 * s2
	vv := dt * dt * s2

	cov := mat.NewSymDense(2*dims, nil)
	for i := 0; i < dims; i++ {
		cov.SetSym(i, i, pp)
		cov.SetSym(i, dims+i, pv)
		cov.SetSym(dims+i, dims+i, vv)
	}

	return cov, nil
}

// Sample draws a sample of the noise.
func (p *Process) Sample() mat.Vector {
	n := p.cov.SymmetricDim()
	data := make([]float64, n)
	for i := range data {
		data[i] = p.rnd.NormFloat64()
	}

	sample := mat.NewVecDense(n, nil)
	sample.MulVec(p.l, mat.NewVecDense(n, data))

	return sample
}

// Cov returns noise covariance.
func (p *Process) Cov() mat.Symmetric {
	cov := mat.NewSymDense(p.cov.SymmetricDim(), nil)
	cov.CopySym(p.cov)

	return cov
}

// Mean returns zero mean.
func (p *Process) Mean() []float64 {
	return make([]float64, p.cov.SymmetricDim())
}

// Reset reseeds the noise source.
func (p *Process) Reset() {
	p.rnd = rand.New(rand.NewSource(uint64(time.Now().UnixNano())))
}

// String implements the Stringer interface.
func (p *Process) String() string {
	return fmt.Sprintf("Process{\nCov=%v\n}", mat.Formatted(p.cov, mat.Prefix("    "), mat.Squeeze()))
}
