package rts

import (
	filter "github.com/milosgajdos/go-posefilter"
	"github.com/milosgajdos/go-posefilter/estimate"
	"github.com/milosgajdos/go-posefilter/noise"
	"github.com/milosgajdos/go-posefilter/smooth"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

var _ smooth.RTS = (*RTS)(nil)

// RTS is Rauch-Tung-Striebel smoother
type RTS struct {
	// q is state noise a.k.a. process noise
	q filter.Noise
	// m is system model
	m filter.DiscreteControlSystem
}

// New creates new RTS and returns it.
// It returns error if the model dimensions are invalid or q does not match them.
func New(m filter.DiscreteControlSystem, q filter.Noise) (*RTS, error) {
	nx, _, ny, _ := m.SystemDims()
	if nx <= 0 || ny <= 0 {
		return nil, errors.Errorf("invalid model dimensions: [%d x %d]", nx, ny)
	}

	if q == nil {
		q, _ = noise.NewNone()
	}

	if _, ok := q.(*noise.None); !ok && q.Cov().SymmetricDim() != nx {
		return nil, errors.Errorf("invalid state noise dimension: %d", q.Cov().SymmetricDim())
	}

	return &RTS{
		q: q,
		m: m,
	}, nil
}

// Smooth implements Rauch-Tung-Striebel smoothing algorithm.
// est are the filtered (corrected) estimates in time order and u the matching control inputs
// which may be nil. The last estimate is returned as is; every earlier one is corrected
// recursively by the smoothed estimate that follows it.
// It returns error if either est is empty or smoothing could not be computed.
func (s *RTS) Smooth(est []filter.Estimate, u []mat.Vector) ([]filter.Estimate, error) {
	if len(est) == 0 {
		return nil, errors.New("invalid estimates size")
	}

	if u != nil && len(u) != len(est) {
		return nil, errors.New("invalid input vector size")
	}

	sx := make([]filter.Estimate, len(est))

	last, err := estimate.NewBaseWithCov(est[len(est)-1].Val(), est[len(est)-1].Cov())
	if err != nil {
		return nil, err
	}
	sx[len(est)-1] = last

	A := s.m.SystemMatrix()

	var uEst mat.Vector
	for i := len(est) - 2; i >= 0; i-- {
		if u != nil {
			uEst = u[i]
		}

		// predicted state x(k+1|k)
		xk1, err := s.m.Propagate(est[i].Val(), uEst, nil)
		if err != nil {
			return nil, errors.Wrap(err, "model state propagation failed")
		}

		// predicted covariance P(k+1|k) = A*P*A' + Q
		pk1 := &mat.Dense{}
		pk1.Mul(A, est[i].Cov())
		pk1.Mul(pk1, A.T())
		if _, ok := s.q.(*noise.None); !ok {
			pk1.Add(pk1, s.q.Cov())
		}

		// smoother gain C = P*A' * P(k+1|k)^-1
		pinv := &mat.Dense{}
		if err := pinv.Inverse(pk1); err != nil {
			return nil, errors.Wrapf(err, "failed to invert predicted covariance at step %d", i)
		}
		c := &mat.Dense{}
		c.Mul(est[i].Cov(), A.T())
		c.Mul(c, pinv)

		// x(k|n) = x(k|k) + C*(x(k+1|n) - x(k+1|k))
		dx := &mat.VecDense{}
		dx.SubVec(sx[i+1].Val(), xk1)
		x := &mat.VecDense{}
		x.MulVec(c, dx)
		x.AddVec(est[i].Val(), x)

		// P(k|n) = P(k|k) + C*(P(k+1|n) - P(k+1|k))*C'
		dp := &mat.Dense{}
		dp.Sub(sx[i+1].Cov(), pk1)
		pk := &mat.Dense{}
		pk.Mul(c, dp)
		pk.Mul(pk, c.T())
		pk.Add(est[i].Cov(), pk)

		r, _ := pk.Dims()
		pSmooth := mat.NewSymDense(r, nil)
		for j := 0; j < r; j++ {
			for k := j; k < r; k++ {
				pSmooth.SetSym(j, k, 0.5*(pk.At(j, k)+pk.At(k, j)))
			}
		}

		e, err := estimate.NewBaseWithCov(x, pSmooth)
		if err != nil {
			return nil, err
		}
		sx[i] = e
	}

	return sx, nil
}
