// Package camera projects 2D detector keypoints into 3D camera coordinates
// using a depth frame and the camera intrinsic matrix.
package camera

import (
	"math"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/milosgajdos/go-posefilter/depth"
	"github.com/milosgajdos/go-posefilter/internal/monitoring"
	"github.com/milosgajdos/go-posefilter/keypoint"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrNoKeypoints is returned when projecting an empty keypoint set
	ErrNoKeypoints = errors.New("no keypoints")
	// ErrEmptyFrame is returned when the depth frame is nil or empty
	ErrEmptyFrame = errors.New("empty depth frame")
	// ErrNegativeDepth is returned when the depth frame holds a negative or NaN reading
	ErrNegativeDepth = errors.New("negative depth")
	// ErrKeypoint is returned when a keypoint has non-finite coordinates
	ErrKeypoint = errors.New("invalid keypoint")
)

// Convention selects how pixel coordinates and depth combine into a camera point
type Convention int

const (
	// ConventionReference computes K * (row, col, 1)' * depth
	ConventionReference Convention = iota
	// ConventionPinhole computes depth * inv(K) * (col, row, 1)'
	ConventionPinhole
)

// String implements the Stringer interface.
func (c Convention) String() string {
	switch c {
	case ConventionReference:
		return "reference"
	case ConventionPinhole:
		return "pinhole"
	}
	return "unknown"
}

// ParseConvention parses convention name as returned by Convention.String.
func ParseConvention(s string) (Convention, error) {
	switch strings.ToLower(s) {
	case "reference":
		return ConventionReference, nil
	case "pinhole":
		return ConventionPinhole, nil
	}
	return ConventionReference, errors.Errorf("unknown projection convention: %q", s)
}

// Config configures Projector
type Config struct {
	// Rotation of the color pixel grid relative to the depth grid
	Rotation Rotation
	// Convention of the pixel to camera projection
	Convention Convention
	// Preprocessor is applied to the depth frame before sampling
	Preprocessor depth.Preprocessor
}

// Projection is a projection of a single frame of keypoints
type Projection struct {
	// Points are keypoints in camera coordinates; undetected keypoints are zero
	Points []r3.Vector
	// Pixels are depth frame pixels the keypoints map to
	Pixels []depth.Pixel
	// Depths are sampled depths; zero for invalid keypoints
	Depths []float64
	// Detected is the validity mask computed from the raw keypoints
	Detected []bool
	// Valid marks detected keypoints whose pixel lies inside the depth frame and has non-zero depth
	Valid []bool
}

// Projector projects keypoints to camera coordinates
type Projector struct {
	k         *mat.Dense
	kInv      *mat.Dense
	cfg       Config
	lastValid []bool
}

// NewProjector creates new Projector for a camera with intrinsic matrix k and returns it.
// It returns error if k is not a 3x3 matrix, if the pinhole convention is requested and k
// is singular or if the preprocessor configuration is invalid.
func NewProjector(k mat.Matrix, cfg Config) (*Projector, error) {
	if k == nil {
		return nil, errors.New("invalid intrinsic matrix: nil")
	}

	if rows, cols := k.Dims(); rows != 3 || cols != 3 {
		return nil, errors.Errorf("invalid intrinsic matrix dimensions: [%d x %d]", rows, cols)
	}

	if _, ok := rotationNames[cfg.Rotation]; !ok {
		return nil, errors.Errorf("invalid rotation: %d", cfg.Rotation)
	}

	if err := cfg.Preprocessor.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid depth preprocessor")
	}

	p := &Projector{
		k:   mat.DenseCopyOf(k),
		cfg: cfg,
	}

	switch cfg.Convention {
	case ConventionReference:
	case ConventionPinhole:
		p.kInv = &mat.Dense{}
		if err := p.kInv.Inverse(p.k); err != nil {
			return nil, errors.Wrap(err, "failed to invert intrinsic matrix")
		}
	default:
		return nil, errors.Errorf("invalid projection convention: %d", cfg.Convention)
	}

	return p, nil
}

// Project projects keypoints kps detected in the color frame to camera coordinates using depth frame d.
// Keypoints which were not detected, which map outside of d or which land on zero depth
// are marked invalid in the returned projection and their points are zero.
// It returns error if kps is empty, any keypoint is not finite or d is empty or holds negative depth.
func (p *Projector) Project(kps []keypoint.Keypoint2D, d *mat.Dense) (*Projection, error) {
	if len(kps) == 0 {
		return nil, ErrNoKeypoints
	}

	for i, kp := range kps {
		if !kp.Finite() {
			return nil, errors.Wrapf(ErrKeypoint, "keypoint %d: (%v, %v)", i, kp.X, kp.Y)
		}
	}

	if err := validateFrame(d); err != nil {
		return nil, err
	}

	rows, cols := d.Dims()
	n := len(kps)

	proj := &Projection{
		Points:   make([]r3.Vector, n),
		Pixels:   make([]depth.Pixel, n),
		Depths:   make([]float64, n),
		Detected: keypoint.ValidityMask(kps),
		Valid:    make([]bool, n),
	}

	// sampled maps preprocessor pixel index to keypoint slot
	var sampled []int
	var pixels []depth.Pixel
	for i, kp := range kps {
		px := p.cfg.Rotation.Remap(kp.X, kp.Y, rows, cols)
		proj.Pixels[i] = px

		if !proj.Detected[i] {
			continue
		}

		if !px.In(rows, cols) {
			monitoring.Logf("camera: keypoint %d (%v, %v) maps outside of depth frame to (%d, %d)", i, kp.X, kp.Y, px.Row, px.Col)
			continue
		}

		proj.Valid[i] = true
		sampled = append(sampled, i)
		pixels = append(pixels, px)
	}

	if p.cfg.Preprocessor.Enabled() && len(pixels) > 0 {
		var err error
		if d, _, err = p.cfg.Preprocessor.Apply(d, pixels); err != nil {
			return nil, errors.Wrap(err, "depth preprocessing failed")
		}
	}

	for _, i := range sampled {
		px := proj.Pixels[i]
		z := d.At(px.Row, px.Col)
		if z == 0 {
			// zero depth is a sensor hole
			monitoring.Logf("camera: keypoint %d at (%d, %d) has no depth", i, px.Row, px.Col)
			proj.Valid[i] = false
			continue
		}
		proj.Depths[i] = z
		proj.Points[i] = p.project(px, z)
	}

	p.lastValid = append(p.lastValid[:0], proj.Valid...)

	return proj, nil
}

// project maps pixel px at depth z to camera coordinates
func (p *Projector) project(px depth.Pixel, z float64) r3.Vector {
	out := mat.NewVecDense(3, nil)

	switch p.cfg.Convention {
	case ConventionPinhole:
		out.MulVec(p.kInv, mat.NewVecDense(3, []float64{float64(px.Col), float64(px.Row), 1}))
	default:
		out.MulVec(p.k, mat.NewVecDense(3, []float64{float64(px.Row), float64(px.Col), 1}))
	}
	out.ScaleVec(z, out)

	return r3.Vector{X: out.AtVec(0), Y: out.AtVec(1), Z: out.AtVec(2)}
}

// LastValid returns the validity mask of the last projected frame.
func (p *Projector) LastValid() []bool {
	valid := make([]bool, len(p.lastValid))
	copy(valid, p.lastValid)

	return valid
}

// Intrinsic returns the camera intrinsic matrix.
func (p *Projector) Intrinsic() mat.Matrix {
	return mat.DenseCopyOf(p.k)
}

// Config returns projector configuration.
func (p *Projector) Config() Config {
	return p.cfg
}

func validateFrame(d *mat.Dense) error {
	if d == nil || d.IsEmpty() {
		return ErrEmptyFrame
	}

	rows, cols := d.Dims()
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if v := d.At(r, c); v < 0 || math.IsNaN(v) {
				return errors.Wrapf(ErrNegativeDepth, "pixel (%d, %d): %v", r, c, v)
			}
		}
	}

	return nil
}
