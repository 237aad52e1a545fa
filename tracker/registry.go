package tracker

import (
	"github.com/milosgajdos/go-posefilter/internal/monitoring"
	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Registry maps person ids to their trackers.
// Registry is not safe for concurrent use.
type Registry struct {
	cfg        Config
	maxMissing int
	persons    map[int]*PersonTracker
}

// NewRegistry creates new Registry whose trackers use cfg and returns it.
// Persons missing for more than maxMissing consecutive frames are evicted by Prune;
// zero maxMissing disables eviction.
// It returns error if cfg is invalid or maxMissing is negative.
func NewRegistry(cfg Config, maxMissing int) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid tracker config")
	}

	if maxMissing < 0 {
		return nil, errors.Errorf("invalid max missing count: %d", maxMissing)
	}

	return &Registry{
		cfg:        cfg,
		maxMissing: maxMissing,
		persons:    make(map[int]*PersonTracker),
	}, nil
}

// Get returns the tracker of person id, creating it on first sight.
func (r *Registry) Get(id int) (*PersonTracker, error) {
	if p, ok := r.persons[id]; ok {
		return p, nil
	}

	p, err := NewPersonTracker(id, r.cfg)
	if err != nil {
		return nil, err
	}
	r.persons[id] = p

	return p, nil
}

// Lookup returns the tracker of person id if it exists.
func (r *Registry) Lookup(id int) (*PersonTracker, bool) {
	p, ok := r.persons[id]
	return p, ok
}

// Remove drops the tracker of person id.
func (r *Registry) Remove(id int) {
	delete(r.persons, id)
}

// Prune evicts persons missing for more than the configured number of frames
// and returns their ids in ascending order.
func (r *Registry) Prune() []int {
	if r.maxMissing == 0 {
		return nil
	}

	var evicted []int
	for id, p := range r.persons {
		if p.MissingCount > r.maxMissing {
			evicted = append(evicted, id)
		}
	}
	slices.Sort(evicted)

	for _, id := range evicted {
		monitoring.Logf("tracker: evicting person %d missing for %d frames", id, r.persons[id].MissingCount)
		delete(r.persons, id)
	}

	return evicted
}

// IDs returns ids of all tracked persons in ascending order.
func (r *Registry) IDs() []int {
	ids := maps.Keys(r.persons)
	slices.Sort(ids)

	return ids
}

// Len returns the number of tracked persons.
func (r *Registry) Len() int {
	return len(r.persons)
}

// MaxMissing returns the eviction threshold.
func (r *Registry) MaxMissing() int {
	return r.maxMissing
}
