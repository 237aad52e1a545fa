// Package pipeline runs a frame of detector keypoints through projection
// into camera coordinates and the keypoint filters of the detected person.
package pipeline

import (
	"github.com/golang/geo/r3"
	"github.com/milosgajdos/go-posefilter/camera"
	"github.com/milosgajdos/go-posefilter/keypoint"
	"github.com/milosgajdos/go-posefilter/tracker"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Frame is a single detection of a person
type Frame struct {
	// Keypoints are detector keypoints in color frame pixels
	Keypoints []keypoint.Keypoint2D
	// Depth is the depth frame captured with the color frame
	Depth *mat.Dense
}

// Result is the result of processing a Frame
type Result struct {
	// ID is person id
	ID int
	// Raw are projected keypoints before filtering
	Raw []r3.Vector
	// Filtered are filtered keypoints
	Filtered []r3.Vector
	// Valid marks keypoints which updated their filters
	Valid []bool
	// Projection holds projection details
	Projection *camera.Projection
}

// Pipeline projects and filters keypoints of every detected person
type Pipeline struct {
	proj *camera.Projector
	reg  *tracker.Registry
}

// New creates new Pipeline and returns it.
// It returns error if either of the parameters is nil.
func New(proj *camera.Projector, reg *tracker.Registry) (*Pipeline, error) {
	if proj == nil {
		return nil, errors.New("invalid projector: nil")
	}

	if reg == nil {
		return nil, errors.New("invalid registry: nil")
	}

	return &Pipeline{
		proj: proj,
		reg:  reg,
	}, nil
}

// Process projects frame f of person id and filters the projected keypoints.
// The person tracker is created on first sight.
// It returns error if either projection or filtering fails; a failed frame does not change the tracker.
func (p *Pipeline) Process(id int, f Frame) (*Result, error) {
	proj, err := p.proj.Project(f.Keypoints, f.Depth)
	if err != nil {
		return nil, errors.Wrapf(err, "person %d: projection failed", id)
	}

	t, err := p.reg.Get(id)
	if err != nil {
		return nil, errors.Wrapf(err, "person %d: failed to create tracker", id)
	}

	filtered, err := t.Update(proj.Points, proj.Valid)
	if err != nil {
		return nil, errors.Wrapf(err, "person %d: filtering failed", id)
	}

	return &Result{
		ID:         id,
		Raw:        proj.Points,
		Filtered:   filtered,
		Valid:      proj.Valid,
		Projection: proj,
	}, nil
}

// Miss records a frame in which person id was not detected and returns its predicted keypoints.
// It returns error if person id is not tracked.
func (p *Pipeline) Miss(id int) ([]r3.Vector, error) {
	t, ok := p.reg.Lookup(id)
	if !ok {
		return nil, errors.Errorf("person %d is not tracked", id)
	}

	return t.Miss()
}

// Prune evicts persons missing for too long and returns their ids.
func (p *Pipeline) Prune() []int {
	return p.reg.Prune()
}

// Projector returns pipeline projector.
func (p *Pipeline) Projector() *camera.Projector {
	return p.proj
}

// Registry returns pipeline person registry.
func (p *Pipeline) Registry() *tracker.Registry {
	return p.reg
}
