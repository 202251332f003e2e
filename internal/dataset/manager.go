package dataset

import (
	"errors"
	"fmt"
	"time"
)

// ErrStaleDataset is returned by Manager.OnValue for an update whose key
// belongs to a dataset that was already processed or expired.
var ErrStaleDataset = errors.New("stale dataset")

const defaultRetiredLimit = 4096

// Option configures a Manager.
type Option func(*Manager)

// WithRetiredLimit bounds how many processed or expired keys are remembered
// for stale-update detection. Default: 4096.
func WithRetiredLimit(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.retiredLimit = n
		}
	}
}

// WithClock overrides the time source used for expiry.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Manager accumulates attribute updates per dataset key until datasets are
// complete. It is not safe for concurrent use; callers serialize OnValue
// and Expire.
type Manager struct {
	required     TagSet
	datasets     map[Key]*Dataset
	retired      map[Key]bool // key -> invalid
	retiredOrder []Key
	retiredLimit int
	now          func() time.Time
}

// NewManager creates a manager that completes datasets once every tag in
// required has been received.
func NewManager(required TagSet, opts ...Option) *Manager {
	m := &Manager{
		required:     required,
		datasets:     make(map[Key]*Dataset),
		retired:      make(map[Key]bool),
		retiredLimit: defaultRetiredLimit,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Required returns the tags a dataset needs to complete.
func (m *Manager) Required() TagSet {
	return m.required
}

// OnValue stores one attribute update.
// Returns the dataset if this update completed it, or nil if more updates
// are expected. A completed dataset is returned exactly once and evicted.
// Tags outside the required set are ignored. Updates for a retired key mark
// that key invalid and return ErrStaleDataset; they never create a dataset.
func (m *Manager) OnValue(tag Tag, key Key, value any) (*Dataset, error) {
	if !m.required.Has(tag) {
		return nil, nil
	}

	if _, ok := m.retired[key]; ok {
		m.retired[key] = true
		return nil, fmt.Errorf("dataset %s: %s update: %w", key, tag, ErrStaleDataset)
	}

	now := m.now()
	ds := m.datasets[key]
	if ds == nil {
		ds = newDataset(key, m.required, now)
		m.datasets[key] = ds
	}
	ds.updated = now
	ds.Set(tag, value)

	if !ds.Done() {
		return nil, nil
	}

	delete(m.datasets, key)
	m.retire(key)
	return ds, nil
}

// Expire drops incomplete datasets that have not been updated for longer
// than maxAge and returns their keys. Later updates for those keys are
// reported as stale. A non-positive maxAge disables expiry.
func (m *Manager) Expire(maxAge time.Duration) []Key {
	if maxAge <= 0 {
		return nil
	}

	now := m.now()
	var expired []Key
	for key, ds := range m.datasets {
		if now.Sub(ds.updated) > maxAge {
			delete(m.datasets, key)
			m.retire(key)
			expired = append(expired, key)
		}
	}
	return expired
}

// Pending returns the number of incomplete datasets.
func (m *Manager) Pending() int {
	return len(m.datasets)
}

// Get returns the incomplete dataset for key, if any.
func (m *Manager) Get(key Key) *Dataset {
	return m.datasets[key]
}

// Invalid reports whether key received updates after it was retired.
func (m *Manager) Invalid(key Key) bool {
	return m.retired[key]
}

func (m *Manager) retire(key Key) {
	if _, ok := m.retired[key]; ok {
		return
	}
	m.retired[key] = false
	m.retiredOrder = append(m.retiredOrder, key)
	for len(m.retiredOrder) > m.retiredLimit {
		delete(m.retired, m.retiredOrder[0])
		m.retiredOrder = m.retiredOrder[1:]
	}
}
