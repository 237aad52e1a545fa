package camera

import (
	"math"
	"os"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/milosgajdos/go-posefilter/depth"
	"github.com/milosgajdos/go-posefilter/internal/monitoring"
	"github.com/milosgajdos/go-posefilter/keypoint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

var (
	eye   *mat.Dense
	frame *mat.Dense
)

func setup() {
	eye = mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})

	frame = mat.NewDense(48, 64, nil)
	for r := 0; r < 48; r++ {
		for c := 0; c < 64; c++ {
			frame.Set(r, c, 1000)
		}
	}
}

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	setup()
	os.Exit(m.Run())
}

func TestRotationRemap(t *testing.T) {
	assert := assert.New(t)

	rows, cols := 720, 1280
	assert.Equal(depth.Pixel{Row: 620, Col: 50}, Rotate90Clockwise.Remap(100, 50, rows, cols))
	assert.Equal(depth.Pixel{Row: 50, Col: 100}, RotateNone.Remap(100, 50, rows, cols))
	assert.Equal(depth.Pixel{Row: 670, Col: 1180}, Rotate180.Remap(100, 50, rows, cols))
	assert.Equal(depth.Pixel{Row: 100, Col: 1230}, Rotate90CounterClockwise.Remap(100, 50, rows, cols))

	// truncation toward zero
	assert.Equal(depth.Pixel{Row: 50, Col: 100}, RotateNone.Remap(100.9, 50.7, rows, cols))
	assert.Equal(depth.Pixel{Row: 619, Col: 50}, Rotate90Clockwise.Remap(100.5, 50.2, rows, cols))
}

func TestParseRotation(t *testing.T) {
	assert := assert.New(t)

	for _, r := range []Rotation{RotateNone, Rotate90Clockwise, Rotate180, Rotate90CounterClockwise} {
		parsed, err := ParseRotation(r.String())
		assert.NoError(err)
		assert.Equal(r, parsed)
	}

	_, err := ParseRotation("sideways")
	assert.Error(err)
	assert.Equal("unknown", Rotation(42).String())
}

func TestParseConvention(t *testing.T) {
	assert := assert.New(t)

	c, err := ParseConvention("Pinhole")
	assert.NoError(err)
	assert.Equal(ConventionPinhole, c)

	c, err = ParseConvention(ConventionReference.String())
	assert.NoError(err)
	assert.Equal(ConventionReference, c)

	_, err = ParseConvention("fisheye")
	assert.Error(err)
}

func TestNewProjector(t *testing.T) {
	assert := assert.New(t)

	p, err := NewProjector(eye, Config{})
	assert.NotNil(p)
	assert.NoError(err)
	assert.True(mat.Equal(eye, p.Intrinsic()))

	p, err = NewProjector(nil, Config{})
	assert.Nil(p)
	assert.Error(err)

	p, err = NewProjector(mat.NewDense(3, 4, nil), Config{})
	assert.Nil(p)
	assert.Error(err)

	p, err = NewProjector(eye, Config{Rotation: Rotation(9)})
	assert.Nil(p)
	assert.Error(err)

	// singular intrinsic matrix can't be inverted
	p, err = NewProjector(mat.NewDense(3, 3, nil), Config{Convention: ConventionPinhole})
	assert.Nil(p)
	assert.Error(err)

	p, err = NewProjector(eye, Config{Preprocessor: depth.Preprocessor{Blur: true, BlurKernel: 4}})
	assert.Nil(p)
	assert.Error(err)
}

func TestProjectReference(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	p, err := NewProjector(eye, Config{})
	require.NoError(err)

	kps := []keypoint.Keypoint2D{
		{X: 10, Y: 5, Conf: 0.9},
		{X: 20, Y: 15, Conf: 0.8},
		{X: 30, Y: 25, Conf: 0.7},
		{X: 40, Y: 35, Conf: 0.6},
	}

	proj, err := p.Project(kps, frame)
	require.NoError(err)

	want := []r3.Vector{
		{X: 5000, Y: 10000, Z: 1000},
		{X: 15000, Y: 20000, Z: 1000},
		{X: 25000, Y: 30000, Z: 1000},
		{X: 35000, Y: 40000, Z: 1000},
	}
	if diff := cmp.Diff(want, proj.Points, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("projected points mismatch (-want +got):\n%s", diff)
	}
	assert.Equal([]bool{true, true, true, true}, proj.Valid)
	assert.Equal([]bool{true, true, true, true}, proj.Detected)
	assert.Equal([]float64{1000, 1000, 1000, 1000}, proj.Depths)
	assert.Equal(proj.Valid, p.LastValid())
}

func TestProjectIntrinsicScale(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	k := mat.NewDense(3, 3, []float64{
		2, 0, 1,
		0, 3, 2,
		0, 0, 1,
	})
	p, err := NewProjector(k, Config{})
	require.NoError(err)

	proj, err := p.Project([]keypoint.Keypoint2D{{X: 4, Y: 6, Conf: 1}}, frame)
	require.NoError(err)

	// K * (6, 4, 1) * 1000
	assert.InDelta(13000.0, proj.Points[0].X, 1e-9)
	assert.InDelta(14000.0, proj.Points[0].Y, 1e-9)
	assert.InDelta(1000.0, proj.Points[0].Z, 1e-9)
}

func TestProjectPinhole(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	k := mat.NewDense(3, 3, []float64{
		500, 0, 32,
		0, 500, 24,
		0, 0, 1,
	})
	p, err := NewProjector(k, Config{Convention: ConventionPinhole})
	require.NoError(err)

	proj, err := p.Project([]keypoint.Keypoint2D{{X: 42, Y: 34, Conf: 1}}, frame)
	require.NoError(err)

	// ((42-32)/500, (34-24)/500, 1) * 1000
	assert.InDelta(20.0, proj.Points[0].X, 1e-9)
	assert.InDelta(20.0, proj.Points[0].Y, 1e-9)
	assert.InDelta(1000.0, proj.Points[0].Z, 1e-9)
}

func TestProjectInvalidKeypoints(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	p, err := NewProjector(eye, Config{Rotation: Rotate90Clockwise})
	require.NoError(err)

	kps := []keypoint.Keypoint2D{
		{X: 0, Y: 0, Conf: 0.9},
		{X: 10, Y: 20, Conf: 0.9},
		// maps to row 48 - 100 < 0
		{X: 100, Y: 20, Conf: 0.9},
		{X: 5, Y: 0, Conf: 0.9},
	}

	proj, err := p.Project(kps, frame)
	require.NoError(err)

	assert.Equal([]bool{false, true, true, false}, proj.Detected)
	assert.Equal([]bool{false, true, false, false}, proj.Valid)
	assert.Equal(r3.Vector{}, proj.Points[0])
	assert.Equal(r3.Vector{}, proj.Points[2])
	assert.Equal(r3.Vector{X: 38000, Y: 20000, Z: 1000}, proj.Points[1])
	assert.Equal([]bool{false, true, false, false}, p.LastValid())
}

func TestProjectPreprocessed(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	d := mat.DenseCopyOf(frame)
	d.Set(21, 30, 800)

	p, err := NewProjector(eye, Config{Preprocessor: depth.Preprocessor{MinFilter: true, MinKernel: 5}})
	require.NoError(err)

	kps := []keypoint.Keypoint2D{
		{X: 31, Y: 20, Conf: 1},
		// too close to the frame edge for the window: sampled as is
		{X: 1, Y: 1, Conf: 1},
	}

	proj, err := p.Project(kps, d)
	require.NoError(err)

	assert.Equal([]bool{true, true}, proj.Valid)
	assert.Equal(800.0, proj.Depths[0])
	assert.Equal(1000.0, proj.Depths[1])
	// input frame is not modified
	assert.Equal(1000.0, d.At(20, 31))
}

func TestProjectZeroDepth(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	d := mat.DenseCopyOf(frame)
	d.Set(5, 10, 0)
	d.Set(20, 33, 0)

	kps := []keypoint.Keypoint2D{
		{X: 10, Y: 5, Conf: 0.9},
		{X: 31, Y: 20, Conf: 0.9},
		{X: 40, Y: 35, Conf: 0.9},
	}

	p, err := NewProjector(eye, Config{})
	require.NoError(err)

	proj, err := p.Project(kps, d)
	require.NoError(err)
	assert.Equal([]bool{true, true, true}, proj.Detected)
	assert.Equal([]bool{false, true, true}, proj.Valid)
	assert.Equal(r3.Vector{}, proj.Points[0])
	assert.Equal(0.0, proj.Depths[0])

	// the hole next to the second keypoint is picked up by the local minimum
	p, err = NewProjector(eye, Config{Preprocessor: depth.Preprocessor{MinFilter: true, MinKernel: 5}})
	require.NoError(err)

	proj, err = p.Project(kps, d)
	require.NoError(err)
	assert.Equal([]bool{false, false, true}, proj.Valid)
	assert.Equal(r3.Vector{}, proj.Points[1])
	assert.Equal(r3.Vector{X: 35000, Y: 40000, Z: 1000}, proj.Points[2])
	assert.Equal([]bool{false, false, true}, p.LastValid())
}

func TestProjectErrors(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	p, err := NewProjector(eye, Config{})
	require.NoError(err)

	kps := []keypoint.Keypoint2D{{X: 10, Y: 5, Conf: 0.9}}

	_, err = p.Project(nil, frame)
	assert.ErrorIs(err, ErrNoKeypoints)

	_, err = p.Project(kps, nil)
	assert.ErrorIs(err, ErrEmptyFrame)

	bad := mat.DenseCopyOf(frame)
	bad.Set(3, 3, -1)
	_, err = p.Project(kps, bad)
	assert.ErrorIs(err, ErrNegativeDepth)

	bad.Set(3, 3, math.NaN())
	_, err = p.Project(kps, bad)
	assert.ErrorIs(err, ErrNegativeDepth)

	_, err = p.Project([]keypoint.Keypoint2D{{X: math.NaN(), Y: 5}}, frame)
	assert.ErrorIs(err, ErrKeypoint)
}
