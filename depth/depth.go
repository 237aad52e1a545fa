// Package depth implements depth frame preprocessing applied before the frame
// is sampled at keypoint locations: Gaussian smoothing of the whole frame and
// a windowed local minimum (erosion) around each keypoint pixel.
//
// Depth frames are gonum matrices indexed [row, col] holding sensor units.
// The image operations run through OpenCV (gocv).
package depth

import (
	"image"

	"github.com/milosgajdos/go-posefilter/internal/monitoring"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/mat"
)

const (
	// DefaultBlurKernel is the default Gaussian blur kernel size
	DefaultBlurKernel = 11
	// DefaultMinKernel is the default local minimum window size
	DefaultMinKernel = 11
)

// Pixel is a depth frame pixel location
type Pixel struct {
	Row int
	Col int
}

// In returns true if p lies inside a frame of the given size.
func (p Pixel) In(rows, cols int) bool {
	return p.Row >= 0 && p.Row < rows && p.Col >= 0 && p.Col < cols
}

// Preprocessor configures depth preprocessing stages
type Preprocessor struct {
	// Blur enables Gaussian smoothing of the whole frame
	Blur bool
	// BlurKernel is the Gaussian kernel size
	BlurKernel int
	// MinFilter enables the local minimum filter around keypoint pixels
	MinFilter bool
	// MinKernel is the local minimum window size
	MinKernel int
}

// DefaultPreprocessor returns Preprocessor with both stages enabled and default kernel sizes.
func DefaultPreprocessor() Preprocessor {
	return Preprocessor{
		Blur:       true,
		BlurKernel: DefaultBlurKernel,
		MinFilter:  true,
		MinKernel:  DefaultMinKernel,
	}
}

// Validate checks the kernel sizes of the enabled stages.
func (p Preprocessor) Validate() error {
	if p.Blur {
		if err := validateKernel(p.BlurKernel); err != nil {
			return errors.Wrap(err, "blur")
		}
	}

	if p.MinFilter {
		if err := validateKernel(p.MinKernel); err != nil {
			return errors.Wrap(err, "local minimum")
		}
	}

	return nil
}

// Enabled returns true if any stage is enabled.
func (p Preprocessor) Enabled() bool {
	return p.Blur || p.MinFilter
}

// Apply runs the enabled stages on d: smoothing first, then the local minimum around pixels.
// It returns the processed frame and the indices of pixels whose local minimum window was skipped.
// d is never modified. If no stage is enabled Apply returns d itself.
func (p Preprocessor) Apply(d *mat.Dense, pixels []Pixel) (*mat.Dense, []int, error) {
	if err := p.Validate(); err != nil {
		return nil, nil, err
	}

	out := d
	var err error

	if p.Blur {
		if out, err = Smooth(out, p.BlurKernel); err != nil {
			return nil, nil, err
		}
	}

	var skipped []int
	if p.MinFilter {
		if out, skipped, err = LocalMinimum(out, pixels, p.MinKernel); err != nil {
			return nil, nil, err
		}
	}

	return out, skipped, nil
}

// Smooth blurs the whole depth frame with a kernelSize x kernelSize Gaussian kernel.
// It returns a new frame of the same shape as d.
// It returns error if d is empty or kernelSize is not a positive odd number.
func Smooth(d *mat.Dense, kernelSize int) (*mat.Dense, error) {
	if err := validateFrame(d); err != nil {
		return nil, err
	}

	if err := validateKernel(kernelSize); err != nil {
		return nil, err
	}

	src, err := toMat(d)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	dst := gocv.NewMat()
	defer dst.Close()

	gocv.GaussianBlur(src, &dst, image.Pt(kernelSize, kernelSize), 0, 0, gocv.BorderDefault)

	return fromMat(dst), nil
}

// LocalMinimum erodes a kernelSize x kernelSize window centered on every pixel, so each pixel
// reads the minimum depth of its neighbourhood. Windows are read from d and a pixel covered by
// several windows keeps the lowest eroded value, so the result does not depend on pixel order
// and a pixel never sees depth from outside of its own window.
// A pixel whose window does not fit inside the frame is skipped and processing
// carries on with the remaining pixels; the skipped pixel indices are returned.
// It returns a new frame of the same shape as d; only the windows are modified.
func LocalMinimum(d *mat.Dense, pixels []Pixel, kernelSize int) (*mat.Dense, []int, error) {
	if err := validateFrame(d); err != nil {
		return nil, nil, err
	}

	if err := validateKernel(kernelSize); err != nil {
		return nil, nil, err
	}

	out := mat.DenseCopyOf(d)
	rows, cols := out.Dims()
	half := kernelSize / 2

	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(kernelSize, kernelSize))
	defer kernel.Close()

	var skipped []int
	for i, px := range pixels {
		top, left := px.Row-half, px.Col-half
		bottom, right := px.Row+half, px.Col+half
		if top < 0 || left < 0 || bottom >= rows || right >= cols {
			monitoring.Logf("depth: local minimum window of pixel %d (%d, %d) out of bounds, skipping", i, px.Row, px.Col)
			skipped = append(skipped, i)
			continue
		}

		eroded, err := erode(d.Slice(top, bottom+1, left, right+1), kernel)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "pixel %d", i)
		}

		// overlapping windows keep the lowest value
		for r := 0; r < kernelSize; r++ {
			for c := 0; c < kernelSize; c++ {
				if v := eroded.At(r, c); v < out.At(top+r, left+c) {
					out.Set(top+r, left+c, v)
				}
			}
		}
	}

	return out, skipped, nil
}

// erode returns w eroded with kernel
func erode(w mat.Matrix, kernel gocv.Mat) (*mat.Dense, error) {
	src, err := toMat(w)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	dst := gocv.NewMat()
	defer dst.Close()

	gocv.Erode(src, &dst, kernel)

	return fromMat(dst), nil
}

// toMat copies m into a single channel float32 OpenCV matrix
func toMat(m mat.Matrix) (gocv.Mat, error) {
	rows, cols := m.Dims()

	cm := gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV32F)
	data, err := cm.DataPtrFloat32()
	if err != nil {
		cm.Close()
		return gocv.Mat{}, errors.Wrap(err, "failed to access OpenCV matrix data")
	}

	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			data[r*cols+c] = float32(m.At(r, c))
		}
	}

	return cm, nil
}

// fromMat copies single channel float32 OpenCV matrix into a new gonum matrix
func fromMat(cm gocv.Mat) *mat.Dense {
	rows, cols := cm.Rows(), cm.Cols()

	m := mat.NewDense(rows, cols, nil)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			m.Set(r, c, float64(cm.GetFloatAt(r, c)))
		}
	}

	return m
}

func validateFrame(d *mat.Dense) error {
	if d == nil || d.IsEmpty() {
		return errors.New("invalid depth frame: empty")
	}
	return nil
}

func validateKernel(size int) error {
	if size <= 0 || size%2 == 0 {
		return errors.Errorf("invalid kernel size: %d, must be positive and odd", size)
	}
	return nil
}
