package sim

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// System defines a linear model of a plant using
// traditional matrices of modern control theory.
//
// It contains the System (A), input (B), Observation/Output (C)
// Feedthrough (D) and disturbance (E) matrices.
type System struct {
	// System/State matrix A
	A *mat.Dense
	// Control/Input Matrix B
	B *mat.Dense
	// Observation/Output Matrix C
	C *mat.Dense
	// Feedthrough matrix D
	D *mat.Dense
	// Perturbation matrix (related to process noise wd) E
	E *mat.Dense
}

func newSystem(A, B, C, D, E *mat.Dense) System {
	sys := System{A: mat.DenseCopyOf(A)}
	if B != nil {
		sys.B = mat.DenseCopyOf(B)
	}
	if C != nil {
		sys.C = mat.DenseCopyOf(C)
	}
	if D != nil {
		sys.D = mat.DenseCopyOf(D)
	}
	if E != nil {
		sys.E = mat.DenseCopyOf(E)
	}
	return sys
}

// SystemDims returns internal state length (nx), input vector length (nu),
// external/observable/output state length (ny) and disturbance vector length (nz).
func (s System) SystemDims() (nx, nu, ny, nz int) {
	nx, _ = s.A.Dims()
	if s.B != nil {
		_, nu = s.B.Dims()
	}
	if s.C != nil {
		ny, _ = s.C.Dims()
	}
	if s.E != nil {
		_, nz = s.E.Dims()
	}
	return nx, nu, ny, nz
}

// SystemMatrix returns state propagation matrix `A`.
func (s System) SystemMatrix() mat.Matrix { return s.A }

// ControlMatrix returns state propagation control matrix `B`
func (s System) ControlMatrix() mat.Matrix {
	if s.B == nil {
		return nil
	}
	return s.B
}

// OutputMatrix returns observation matrix `C`
func (s System) OutputMatrix() mat.Matrix {
	if s.C == nil {
		return nil
	}
	return s.C
}

// FeedForwardMatrix returns observation control matrix `D`
func (s System) FeedForwardMatrix() mat.Matrix {
	if s.D == nil {
		return nil
	}
	return s.D
}

// Observe returns external/observable state given internal state x and input u.
// wn is added to the output as a noise vector.
func (s System) Observe(x, u, wn mat.Vector) (mat.Vector, error) {
	nx, nu, ny, _ := s.SystemDims()
	if s.C == nil {
		return nil, errors.New("system has no output matrix")
	}

	if u != nil && u.Len() != nu {
		return nil, errors.Errorf("invalid input vector length: %d", u.Len())
	}

	if x.Len() != nx {
		return nil, errors.Errorf("invalid state vector length: %d", x.Len())
	}

	out := mat.NewVecDense(ny, nil)
	out.MulVec(s.C, x)

	if u != nil && s.D != nil {
		outU := mat.NewVecDense(ny, nil)
		outU.MulVec(s.D, u)
		out.AddVec(out, outU)
	}

	if wn != nil && wn.Len() == ny {
		out.AddVec(out, wn)
	}

	return out, nil
}
