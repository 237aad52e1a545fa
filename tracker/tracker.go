// Package tracker implements a bank of independent Kalman filters smoothing
// the 3D keypoints of a single person over time.
//
// Every keypoint slot runs its own constant velocity filter. A slot starts on
// its first valid measurement and coasts on prediction alone while its
// keypoint is not detected.
package tracker

import (
	"github.com/golang/geo/r3"
	"github.com/milosgajdos/go-posefilter/estimate"
	"github.com/milosgajdos/go-posefilter/internal/monitoring"
	"github.com/milosgajdos/go-posefilter/keypoint"
	"github.com/milosgajdos/go-posefilter/smooth/rts"
	"github.com/pkg/errors"
)

var (
	// ErrKeypointCount is returned when a frame carries a different number of keypoints than the first one
	ErrKeypointCount = errors.New("keypoint count mismatch")
	// ErrMaskLength is returned when the validity mask length differs from the number of keypoints
	ErrMaskLength = errors.New("validity mask length mismatch")
	// ErrMeasurement is returned when a valid keypoint is not finite
	ErrMeasurement = errors.New("invalid measurement")
)

// PersonTracker filters keypoints of a single person
type PersonTracker struct {
	// ID is person id assigned by the detector
	ID int
	// MissingCount counts consecutive frames without any valid keypoint
	MissingCount int
	cfg          Config
	m            *model
	slots        []*Slot
	filtered     []r3.Vector
	valid        []bool
}

// NewPersonTracker creates new PersonTracker for person id and returns it.
// Keypoint filters are created with the first frame passed to Update.
// It returns error if cfg is invalid.
func NewPersonTracker(id int, cfg Config) (*PersonTracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid tracker config")
	}

	m, err := newModel(cfg)
	if err != nil {
		return nil, err
	}

	return &PersonTracker{
		ID:  id,
		cfg: cfg,
		m:   m,
	}, nil
}

// Update filters a frame of raw keypoints and returns the filtered ones in the same order.
// valid marks keypoints which carry a measurement; the rest are predicted only.
// The number of keypoints is fixed by the first frame.
// It returns error if points is empty, if its length differs from the first frame or from valid,
// or if a valid point is not finite. A failed frame leaves the tracker unchanged.
func (p *PersonTracker) Update(points []r3.Vector, valid []bool) ([]r3.Vector, error) {
	if len(points) == 0 {
		return nil, errors.Wrap(ErrKeypointCount, "empty frame")
	}

	if p.slots != nil && len(points) != len(p.slots) {
		return nil, errors.Wrapf(ErrKeypointCount, "%d != %d", len(points), len(p.slots))
	}

	if len(valid) != len(points) {
		return nil, errors.Wrapf(ErrMaskLength, "%d != %d", len(valid), len(points))
	}

	seen := false
	for k := range points {
		if !valid[k] {
			continue
		}
		if !keypoint.FiniteVector(points[k]) {
			return nil, errors.Wrapf(ErrMeasurement, "keypoint %d: %v", k, points[k])
		}
		seen = true
	}

	fresh := p.slots == nil
	if fresh {
		p.slots = make([]*Slot, len(points))
		for k := range p.slots {
			p.slots[k] = &Slot{}
		}
	}

	snaps := make([]snapshot, len(p.slots))
	for k, s := range p.slots {
		snaps[k] = s.snapshot()
	}

	filtered := make([]r3.Vector, len(points))
	for k, s := range p.slots {
		if err := p.step(k, s, points[k], valid[k]); err != nil {
			for j := 0; j <= k; j++ {
				if rerr := p.slots[j].restore(snaps[j]); rerr != nil {
					monitoring.Logf("tracker: person %d: keypoint %d: %v", p.ID, j, rerr)
				}
			}
			if fresh {
				p.slots = nil
			}
			return nil, errors.Wrapf(err, "keypoint %d", k)
		}
		filtered[k] = s.Position()
	}

	if seen {
		p.MissingCount = 0
	} else {
		p.MissingCount++
	}

	p.filtered = filtered
	p.valid = append(p.valid[:0], valid...)

	return p.Filtered(), nil
}

// step advances a single slot by one frame
func (p *PersonTracker) step(k int, s *Slot, point r3.Vector, valid bool) error {
	var err error

	switch {
	case !valid:
		err = s.coast()
	case s.state == Uninitialized:
		monitoring.Logf("tracker: person %d: keypoint %d %s: track started at %v", p.ID, k, keypoint.Name(k), point)
		err = s.init(p.m, point)
	default:
		err = s.update(point)
	}

	if err != nil {
		return err
	}

	if p.cfg.History {
		s.record()
	}

	return nil
}

// Miss advances the tracker by a frame in which the person was not detected at all.
// Every initialized slot is predicted only. It returns the predicted keypoints or nil
// if the tracker has not received any frame yet.
func (p *PersonTracker) Miss() ([]r3.Vector, error) {
	if p.slots == nil {
		p.MissingCount++
		return nil, nil
	}

	return p.Update(make([]r3.Vector, len(p.slots)), make([]bool, len(p.slots)))
}

// Filtered returns the keypoints filtered in the last frame.
func (p *PersonTracker) Filtered() []r3.Vector {
	if p.filtered == nil {
		return nil
	}

	out := make([]r3.Vector, len(p.filtered))
	copy(out, p.filtered)

	return out
}

// Valid returns the validity mask of the last frame.
func (p *PersonTracker) Valid() []bool {
	if p.valid == nil {
		return nil
	}

	out := make([]bool, len(p.valid))
	copy(out, p.valid)

	return out
}

// Len returns the number of keypoint slots. It is zero until the first frame.
func (p *PersonTracker) Len() int {
	return len(p.slots)
}

// Slot returns keypoint slot k.
// It returns error if k is out of range.
func (p *PersonTracker) Slot(k int) (*Slot, error) {
	if k < 0 || k >= len(p.slots) {
		return nil, errors.Errorf("invalid slot: %d", k)
	}

	return p.slots[k], nil
}

// Config returns tracker configuration.
func (p *PersonTracker) Config() Config {
	return p.cfg
}

// Smooth runs Rauch-Tung-Striebel smoother over the recorded history of slot k and returns
// smoothed positions, one per frame since the slot initialization.
// It returns error if history recording is disabled, k is out of range or the slot has no history.
func (p *PersonTracker) Smooth(k int) ([]r3.Vector, error) {
	if !p.cfg.History {
		return nil, errors.New("history recording is disabled")
	}

	s, err := p.Slot(k)
	if err != nil {
		return nil, err
	}

	if len(s.history) == 0 {
		return nil, errors.Errorf("slot %d has no history", k)
	}

	smoother, err := rts.New(p.m.cv, p.m.q)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create smoother")
	}

	est, err := smoother.Smooth(s.history, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to smooth slot %d", k)
	}

	out := make([]r3.Vector, len(est))
	for i, e := range est {
		b, err := estimate.NewBase(e.Val())
		if err != nil {
			return nil, err
		}
		out[i] = toPoint(b.Head(dims))
	}

	return out, nil
}
