// Package keypoint defines the per-frame keypoint data exchanged between the
// pose detector, the projector and the keypoint tracker.
package keypoint

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// COCO is the number of keypoints of a COCO trained pose model
const COCO = 17

// cocoNames are COCO keypoint names indexed by keypoint slot
var cocoNames = [COCO]string{
	"nose", "left_eye", "right_eye", "left_ear", "right_ear",
	"left_shoulder", "right_shoulder", "left_elbow", "right_elbow",
	"left_wrist", "right_wrist", "left_hip", "right_hip",
	"left_knee", "right_knee", "left_ankle", "right_ankle",
}

// Name returns the COCO name of keypoint slot k or an empty string for unknown slots.
func Name(k int) string {
	if k < 0 || k >= COCO {
		return ""
	}
	return cocoNames[k]
}

// Keypoint2D is a detector keypoint in pixel coordinates of the color frame.
// A keypoint at exactly (0, 0) was not detected.
type Keypoint2D struct {
	X    float64
	Y    float64
	Conf float64
}

// Detected returns true if the detector reported the keypoint.
func (k Keypoint2D) Detected() bool {
	return k.X != 0 && k.Y != 0
}

// Finite returns true if the keypoint coordinates are finite numbers.
func (k Keypoint2D) Finite() bool {
	return !math.IsNaN(k.X) && !math.IsInf(k.X, 0) && !math.IsNaN(k.Y) && !math.IsInf(k.Y, 0)
}

// ValidityMask returns a mask with one entry per keypoint set to true iff the keypoint was detected.
func ValidityMask(kps []Keypoint2D) []bool {
	mask := make([]bool, len(kps))
	for i, kp := range kps {
		mask[i] = kp.Detected()
	}

	return mask
}

// FromDense converts K x 3 matrix whose rows hold x, y and confidence to keypoints.
// It returns error if m is nil or does not have 3 columns.
func FromDense(m mat.Matrix) ([]Keypoint2D, error) {
	if m == nil {
		return nil, errors.New("invalid keypoints matrix: nil")
	}

	rows, cols := m.Dims()
	if cols != 3 {
		return nil, errors.Errorf("invalid keypoints matrix dimensions: [%d x %d]", rows, cols)
	}

	kps := make([]Keypoint2D, rows)
	for i := range kps {
		kps[i] = Keypoint2D{X: m.At(i, 0), Y: m.At(i, 1), Conf: m.At(i, 2)}
	}

	return kps, nil
}

// ToDense returns points as K x 3 matrix. It returns nil if points is empty.
func ToDense(points []r3.Vector) *mat.Dense {
	if len(points) == 0 {
		return nil
	}

	m := mat.NewDense(len(points), 3, nil)
	for i, p := range points {
		m.SetRow(i, []float64{p.X, p.Y, p.Z})
	}

	return m
}

// FiniteVector returns true if all coordinates of v are finite numbers.
func FiniteVector(v r3.Vector) bool {
	for _, c := range []float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}
