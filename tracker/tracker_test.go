package tracker

import (
	"math"
	"os"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/milosgajdos/go-posefilter/internal/monitoring"
	"github.com/milosgajdos/go-posefilter/noise"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

var (
	cfg    Config
	frame  []r3.Vector
	allOn  []bool
	approx cmp.Option
)

func setup() {
	cfg = DefaultConfig()

	frame = []r3.Vector{
		{X: 5000, Y: 10000, Z: 1000},
		{X: 15000, Y: 20000, Z: 1000},
		{X: 25000, Y: 30000, Z: 1000},
		{X: 35000, Y: 40000, Z: 1000},
	}
	allOn = []bool{true, true, true, true}

	approx = cmpopts.EquateApprox(0, 1e-9)
}

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	setup()
	os.Exit(m.Run())
}

func line(t int) r3.Vector {
	dt := 1.0 / DefaultFreq
	return r3.Vector{X: 100 + 300*float64(t)*dt, Y: 200 - 150*float64(t)*dt, Z: 1500 + 60*float64(t)*dt}
}

func TestConfigValidate(t *testing.T) {
	assert := assert.New(t)

	assert.NoError(DefaultConfig().Validate())

	c := DefaultConfig()
	c.Freq = 0
	assert.Error(c.Validate())

	c = DefaultConfig()
	c.MeasurementNoise = -1
	assert.Error(c.Validate())

	c = DefaultConfig()
	c.ProcessNoise = math.NaN()
	assert.Error(c.Validate())

	c = DefaultConfig()
	c.ProcessNoise = 0
	assert.NoError(c.Validate())

	c = DefaultConfig()
	c.InitVelocityStd = math.Inf(1)
	assert.Error(c.Validate())

	assert.InDelta(1.0/30.0, DefaultConfig().Dt(), 1e-12)
}

func TestNewPersonTracker(t *testing.T) {
	assert := assert.New(t)

	p, err := NewPersonTracker(1, cfg)
	assert.NotNil(p)
	assert.NoError(err)
	assert.Equal(1, p.ID)
	assert.Equal(0, p.Len())
	assert.Nil(p.Filtered())
	assert.Equal(cfg, p.Config())

	c := cfg
	c.Freq = -30
	p, err = NewPersonTracker(1, c)
	assert.Nil(p)
	assert.Error(err)
}

func TestUpdateInitialize(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	p, err := NewPersonTracker(1, cfg)
	require.NoError(err)

	out, err := p.Update(frame, allOn)
	require.NoError(err)
	assert.Equal(frame, out)
	assert.Equal(4, p.Len())
	assert.Equal(allOn, p.Valid())

	for k := 0; k < p.Len(); k++ {
		s, err := p.Slot(k)
		require.NoError(err)
		assert.Equal(Initialized, s.State())
		assert.Equal(r3.Vector{}, s.Velocity())

		cov := s.Cov()
		assert.InDelta(400.0, cov.At(0, 0), 1e-9)
		assert.InDelta(1e6, cov.At(3, 3), 1e-9)
		assert.InDelta(0.0, cov.At(0, 3), 1e-9)
	}

	// identical frame: no overshoot
	out, err = p.Update(frame, allOn)
	require.NoError(err)
	if diff := cmp.Diff(frame, out, approx); diff != "" {
		t.Errorf("filtered keypoints mismatch (-want +got):\n%s", diff)
	}

	s, err := p.Slot(0)
	require.NoError(err)
	assert.Equal(Tracking, s.State())

	_, err = p.Slot(4)
	assert.Error(err)
}

func TestUpdateConvergence(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	p, err := NewPersonTracker(1, cfg)
	require.NoError(err)

	var out []r3.Vector
	for i := 0; i <= 60; i++ {
		out, err = p.Update([]r3.Vector{line(i)}, []bool{true})
		require.NoError(err)
	}

	want := line(60)
	assert.InDelta(want.X, out[0].X, 1e-2)
	assert.InDelta(want.Y, out[0].Y, 1e-2)
	assert.InDelta(want.Z, out[0].Z, 1e-2)

	s, err := p.Slot(0)
	require.NoError(err)
	v := s.Velocity()
	assert.InDelta(300.0, v.X, 0.1)
	assert.InDelta(-150.0, v.Y, 0.1)
	assert.InDelta(60.0, v.Z, 0.1)
}

func TestUpdateCoast(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	p, err := NewPersonTracker(1, cfg)
	require.NoError(err)

	for i := 0; i < 10; i++ {
		_, err = p.Update([]r3.Vector{line(i), {}}, []bool{true, false})
		require.NoError(err)
	}

	tracked, err := p.Slot(0)
	require.NoError(err)
	idle, err := p.Slot(1)
	require.NoError(err)

	pos, vel := tracked.Position(), tracked.Velocity()
	trace := mat.Trace(tracked.Cov())

	out, err := p.Update([]r3.Vector{{X: 1, Y: 2, Z: 3}, {}}, []bool{false, false})
	require.NoError(err)

	want := pos.Add(vel.Mul(1.0 / DefaultFreq))
	if diff := cmp.Diff(want, out[0], approx); diff != "" {
		t.Errorf("coasted keypoint mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(1, tracked.Misses())
	assert.Equal(Tracking, tracked.State())
	assert.Greater(mat.Trace(tracked.Cov()), trace)

	assert.Equal(r3.Vector{}, out[1])
	assert.Equal(Uninitialized, idle.State())
	assert.Equal(11, idle.Misses())
	assert.Nil(idle.Cov())

	assert.Equal(1, p.MissingCount)

	_, err = p.Update([]r3.Vector{line(11), {}}, []bool{true, false})
	require.NoError(err)
	assert.Equal(0, tracked.Misses())
	assert.Equal(0, p.MissingCount)
}

func TestUpdateErrors(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	p, err := NewPersonTracker(1, cfg)
	require.NoError(err)

	_, err = p.Update(nil, nil)
	assert.ErrorIs(err, ErrKeypointCount)

	_, err = p.Update([]r3.Vector{{X: math.NaN()}}, []bool{true})
	assert.ErrorIs(err, ErrMeasurement)
	assert.Equal(0, p.Len())

	_, err = p.Update(frame, allOn)
	require.NoError(err)

	_, err = p.Update(frame[:3], allOn[:3])
	assert.ErrorIs(err, ErrKeypointCount)

	_, err = p.Update(frame, allOn[:2])
	assert.ErrorIs(err, ErrMaskLength)

	bad := append([]r3.Vector{}, frame...)
	bad[2] = r3.Vector{X: math.Inf(1), Y: 1, Z: 1}
	bad[0] = frame[0].Add(r3.Vector{X: 100})
	_, err = p.Update(bad, allOn)
	assert.ErrorIs(err, ErrMeasurement)

	// failed frames leave every slot untouched
	assert.Equal(frame, p.Filtered())
	for k := 0; k < p.Len(); k++ {
		s, err := p.Slot(k)
		require.NoError(err)
		assert.Equal(Initialized, s.State())
		assert.Equal(frame[k], s.Position())
	}

	// non-finite values of invalid keypoints are ignored
	_, err = p.Update(bad, []bool{true, true, false, true})
	assert.NoError(err)
}

func TestMiss(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	p, err := NewPersonTracker(1, cfg)
	require.NoError(err)

	out, err := p.Miss()
	assert.NoError(err)
	assert.Nil(out)
	assert.Equal(1, p.MissingCount)

	_, err = p.Update(frame, allOn)
	require.NoError(err)
	assert.Equal(0, p.MissingCount)

	out, err = p.Miss()
	require.NoError(err)
	// zero velocity tracks stay put
	if diff := cmp.Diff(frame, out, approx); diff != "" {
		t.Errorf("predicted keypoints mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(1, p.MissingCount)
	assert.Equal([]bool{false, false, false, false}, p.Valid())
}

func TestSmooth(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	p, err := NewPersonTracker(1, cfg)
	require.NoError(err)

	_, err = p.Update([]r3.Vector{line(0)}, []bool{true})
	require.NoError(err)
	_, err = p.Smooth(0)
	assert.Error(err)

	c := cfg
	c.History = true
	p, err = NewPersonTracker(1, c)
	require.NoError(err)

	_, err = p.Update([]r3.Vector{{}, {}}, []bool{false, false})
	require.NoError(err)
	_, err = p.Smooth(0)
	assert.Error(err)

	var out []r3.Vector
	for i := 0; i < 20; i++ {
		valid := i%5 != 3
		out, err = p.Update([]r3.Vector{line(i), {}}, []bool{valid, false})
		require.NoError(err)
	}

	s, err := p.Slot(0)
	require.NoError(err)
	assert.Len(s.History(), 20)

	smoothed, err := p.Smooth(0)
	require.NoError(err)
	assert.Len(smoothed, 20)
	if diff := cmp.Diff(out[0], smoothed[19], approx); diff != "" {
		t.Errorf("last smoothed keypoint mismatch (-want +got):\n%s", diff)
	}

	_, err = p.Smooth(1)
	assert.Error(err)
	_, err = p.Smooth(2)
	assert.Error(err)
}

func TestZeroProcessNoise(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	c := cfg
	c.ProcessNoise = 0
	c.History = true
	p, err := NewPersonTracker(1, c)
	require.NoError(err)

	_, ok := p.m.q.(*noise.Zero)
	assert.True(ok)

	var out []r3.Vector
	for i := 0; i <= 40; i++ {
		d := -10.0
		if i%2 == 1 {
			d = 10.0
		}
		out, err = p.Update([]r3.Vector{{X: 1000 + d, Y: 500, Z: 2000}}, []bool{true})
		require.NoError(err)
	}

	// a static model averages the alternating readings
	assert.InDelta(1000.0, out[0].X, 1.0)
	assert.InDelta(500.0, out[0].Y, 1e-6)

	s, err := p.Slot(0)
	require.NoError(err)
	assert.Less(s.Cov().At(0, 0), 400.0)
	assert.InDelta(0.0, s.Velocity().X, 1.0)

	smoothed, err := p.Smooth(0)
	require.NoError(err)
	assert.Len(smoothed, 41)
}

func TestSlotRestore(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	p, err := NewPersonTracker(1, cfg)
	require.NoError(err)

	start := r3.Vector{X: 1, Y: 2, Z: 3}
	_, err = p.Update([]r3.Vector{start}, []bool{true})
	require.NoError(err)

	s, err := p.Slot(0)
	require.NoError(err)
	snap := s.snapshot()

	_, err = p.Update([]r3.Vector{{X: 5, Y: 6, Z: 7}}, []bool{true})
	require.NoError(err)
	assert.Equal(Tracking, s.State())

	assert.NoError(s.restore(snap))
	assert.Equal(Initialized, s.State())
	assert.Equal(start, s.Position())
	assert.True(mat.EqualApprox(snap.cov, s.Cov(), 1e-12))

	snap.cov = mat.NewSymDense(2, nil)
	assert.Error(s.restore(snap))
}
