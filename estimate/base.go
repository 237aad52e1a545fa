package estimate

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Base is base estimate
type Base struct {
	// val is estimated value
	val *mat.VecDense
	// cov is estimated covariance
	cov *mat.SymDense
}

// NewBase returns base estimate given val. Its covariance is zero.
func NewBase(val mat.Vector) (*Base, error) {
	if val == nil {
		return nil, errors.New("invalid estimate value: nil")
	}

	v := &mat.VecDense{}
	v.CloneFromVec(val)

	return &Base{
		val: v,
		cov: mat.NewSymDense(v.Len(), nil),
	}, nil
}

// NewBaseWithCov returns base estimate given value and covariance.
// It returns error if val and cov dimensions differ.
func NewBaseWithCov(val mat.Vector, cov mat.Symmetric) (*Base, error) {
	if val == nil || cov == nil {
		return nil, errors.New("invalid estimate: nil value or covariance")
	}

	if val.Len() != cov.SymmetricDim() {
		return nil, errors.Errorf("invalid dimensions. Val: %d, Cov: %d x %d", val.Len(), cov.SymmetricDim(), cov.SymmetricDim())
	}

	v := &mat.VecDense{}
	v.CloneFromVec(val)

	c := mat.NewSymDense(cov.SymmetricDim(), nil)
	c.CopySym(cov)

	return &Base{
		val: v,
		cov: c,
	}, nil
}

// Val returns estimated value
func (b *Base) Val() mat.Vector {
	v := &mat.VecDense{}
	v.CloneFromVec(b.val)

	return v
}

// Cov returns covariance estimate
func (b *Base) Cov() mat.Symmetric {
	cov := mat.NewSymDense(b.cov.SymmetricDim(), nil)
	cov.CopySym(b.cov)

	return cov
}

// Head returns the first n elements of the estimated value.
// Position-velocity states keep positions in the head of the state vector.
// It panics if n exceeds the estimate length.
func (b *Base) Head(n int) []float64 {
	head := make([]float64, n)
	for i := range head {
		head[i] = b.val.AtVec(i)
	}

	return head
}
