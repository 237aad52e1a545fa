package noise

import (
	"fmt"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Zero is noise of a channel the model describes exactly.
// Unlike None it keeps the channel dimension, so filters can check it against the model
// and add its zero covariance like any other noise.
type Zero struct {
	dim int
}

// NewZero creates new Zero noise of dimension dim.
// It returns error if dim is not positive.
func NewZero(dim int) (*Zero, error) {
	if dim <= 0 {
		return nil, errors.Errorf("invalid noise dimension: %d", dim)
	}

	return &Zero{dim: dim}, nil
}

// Sample returns a zero vector.
func (z *Zero) Sample() mat.Vector {
	return mat.NewVecDense(z.dim, nil)
}

// Cov returns zero covariance.
func (z *Zero) Cov() mat.Symmetric {
	return mat.NewSymDense(z.dim, nil)
}

// Mean returns zero mean.
func (z *Zero) Mean() []float64 {
	return make([]float64, z.dim)
}

// Reset is a no-op: Zero noise has no source.
func (z *Zero) Reset() {}

// String implements the Stringer interface.
func (z *Zero) String() string {
	return fmt.Sprintf("Zero{Dim=%d}", z.dim)
}
