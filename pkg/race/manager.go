package race

import (
	"racestandings/pkg/model"
	"racestandings/pkg/pubsub"
	"racestandings/pkg/standings"
	"regexp"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	ErrInvalidKey  = errors.New("race: invalid key")
	ErrUnknownRace = errors.New("race: unknown race")

	keyPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,64}$`)
)

type Option func(*Manager)

func WithLogger(log logrus.FieldLogger) Option {
	return func(m *Manager) {
		m.log = log
	}
}

func WithMetrics(metrics *Metrics) Option {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// Manager shards races by key. Races are opened lazily and restored from the
// persister on first use.
type Manager struct {
	mu        sync.Mutex
	cfg       Config
	persister Persister
	ps        *pubsub.PubSub[model.Snapshot]
	log       logrus.FieldLogger
	metrics   *Metrics
	races     map[string]*Race
}

func NewManager(cfg Config, persister Persister, ps *pubsub.PubSub[model.Snapshot], opts ...Option) *Manager {
	if persister == nil {
		persister = NewMemoryPersister()
	}
	if ps == nil {
		ps = pubsub.NewPubSub[model.Snapshot]()
	}
	m := &Manager{
		cfg:       cfg,
		persister: persister,
		ps:        ps,
		log:       logrus.StandardLogger(),
		races:     make(map[string]*Race),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.metrics == nil {
		m.metrics = NewMetrics(nil)
	}
	return m
}

func (m *Manager) PubSub() *pubsub.PubSub[model.Snapshot] {
	return m.ps
}

func ValidKey(key string) bool {
	return keyPattern.MatchString(key)
}

// Race returns the race for key, opening it on first use.
func (m *Manager) Race(key string) (*Race, error) {
	return m.open(key, true)
}

// Existing returns the race for key when it is already open or has stored
// standings, and ErrUnknownRace otherwise. Nothing is created.
func (m *Manager) Existing(key string) (*Race, error) {
	return m.open(key, false)
}

func (m *Manager) open(key string, create bool) (*Race, error) {
	if !ValidKey(key) {
		return nil, errors.Wrapf(ErrInvalidKey, "%q", key)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if r, ok := m.races[key]; ok {
		return r, nil
	}

	state, err := m.persister.Load(key)
	if err != nil {
		return nil, errors.Wrapf(err, "loading race %s", key)
	}
	if state.Empty() && !create {
		return nil, errors.Wrapf(ErrUnknownRace, "%q", key)
	}
	store, err := standings.FromState(state)
	if err != nil {
		return nil, errors.Wrapf(err, "restoring race %s", key)
	}

	r := newRace(key, m.cfg, store, m.persister, m.ps, m.log, m.metrics)
	if !state.Empty() {
		r.log.WithField("pilots", len(state.Pilots)).Info("race restored")
	}
	m.races[key] = r
	return r, nil
}

// Lookup returns an already opened race.
func (m *Manager) Lookup(key string) (*Race, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.races[key]
	return r, ok
}

// Keys lists opened races holding standings and, when the persister can
// enumerate them, stored ones.
func (m *Manager) Keys() ([]string, error) {
	m.mu.Lock()
	seen := make(map[string]bool, len(m.races))
	for k, r := range m.races {
		if !r.empty() {
			seen[k] = true
		}
	}
	m.mu.Unlock()

	if lister, ok := m.persister.(KeyLister); ok {
		stored, err := lister.Keys()
		if err != nil {
			return nil, errors.Wrap(err, "listing stored races")
		}
		for _, k := range stored {
			seen[k] = true
		}
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Close saves every opened race holding standings and closes the pub/sub.
func (m *Manager) Close() error {
	m.mu.Lock()
	races := make([]*Race, 0, len(m.races))
	for _, r := range m.races {
		races = append(races, r)
	}
	m.mu.Unlock()

	var firstErr error
	for _, r := range races {
		if err := r.save(); err != nil {
			m.log.WithError(err).WithField("race", r.Key()).Error("saving race on close")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	m.ps.Close()
	return firstErr
}
