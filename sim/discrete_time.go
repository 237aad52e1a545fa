package sim

import (
	"github.com/milosgajdos/matrix"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Discrete is a basic model of a linear, discrete-time, dynamical system
type Discrete struct {
	System
}

// NewDiscrete creates a linear discrete-time model based on the control theory equations.
//
//	x[n+1] = A*x[n] + B*u[n] + E*z[n] (disturbances E not implemented yet)
//	y[n] = C*x[n] + D*u[n]
func NewDiscrete(A, B, C, D, E *mat.Dense) (*Discrete, error) {
	if A == nil {
		return nil, errors.New("system matrix must be defined for a model")
	}

	rows, cols := A.Dims()
	if rows != cols {
		return nil, errors.Errorf("system matrix must be square: [%d x %d]", rows, cols)
	}

	return &Discrete{System: newSystem(A, B, C, D, E)}, nil
}

// NewConstantVelocity creates a discrete constant velocity model of a point moving in dims
// dimensions, sampled with time step dt. The state holds dims positions followed by dims
// velocities; the output is the position:
//
//	A = [ I  dt*I ]    C = [ I  0 ]
//	    [ 0   I   ]
//
// It returns error if dims is not positive or dt is not positive.
func NewConstantVelocity(dims int, dt float64) (*Discrete, error) {
	if dims <= 0 {
		return nil, errors.Errorf("invalid number of dimensions: %d", dims)
	}

	if !(dt > 0) {
		return nil, errors.Errorf("invalid time step: %v", dt)
	}

	A, err := matrix.NewDenseValIdentity(2*dims, 1.0)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create system matrix")
	}
	for i := 0; i < dims; i++ {
		A.Set(i, dims+i, dt)
	}

	C := mat.NewDense(dims, 2*dims, nil)
	for i := 0; i < dims; i++ {
		C.Set(i, i, 1.0)
	}

	return NewDiscrete(A, nil, C, nil, nil)
}

// Propagate propagates returns the next internal state x
// of a linear, discrete-time system given an input vector u and a
// disturbance input z. (wd is process noise, z not implemented yet)
func (d *Discrete) Propagate(x, u, wd mat.Vector) (mat.Vector, error) {
	nx, nu, _, _ := d.SystemDims()
	if u != nil && u.Len() != nu {
		return nil, errors.Errorf("invalid input vector length: %d", u.Len())
	}

	if x.Len() != nx {
		return nil, errors.Errorf("invalid state vector length: %d", x.Len())
	}

	out := mat.NewVecDense(nx, nil)
	out.MulVec(d.A, x)

	if u != nil && d.B != nil {
		outU := mat.NewVecDense(nx, nil)
		outU.MulVec(d.B, u)
		out.AddVec(out, outU)
	}

	if wd != nil && wd.Len() == nx {
		out.AddVec(out, wd)
	}

	return out, nil
}
