// Package app is the facade the UI calls into. Every operation waits for a
// single shared initialization of the store before touching it.
package app

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/kittclouds/matlog/internal/config"
	"github.com/kittclouds/matlog/internal/kvstore"
	"github.com/kittclouds/matlog/internal/legacy"
	"github.com/kittclouds/matlog/internal/logger"
	"github.com/kittclouds/matlog/internal/store"
)

// State is the initialization state of a Service.
type State int

const (
	Uninitialized State = iota
	Initializing
	Ready
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	default:
		return "uninitialized"
	}
}

// Opener connects to the relational store.
type Opener func(ctx context.Context) (store.Storer, error)

// Option configures a Service.
type Option func(*Service)

// WithOpener replaces the default SQLite opener.
func WithOpener(open Opener) Option {
	return func(s *Service) { s.open = open }
}

// Service exposes the storage operations used by the UI.
type Service struct {
	cfg  *config.Config
	kv   kvstore.Store
	log  *logger.Logger
	open Opener

	group singleflight.Group
	inits atomic.Int32

	mu       sync.RWMutex
	state    State
	st       store.Storer
	importer *legacy.Importer
}

// New creates a Service. Storage is opened lazily on first use.
func New(cfg *config.Config, kv kvstore.Store, log *logger.Logger, opts ...Option) *Service {
	if cfg == nil {
		cfg = config.InMemory()
	}
	if log == nil {
		log = logger.Nop()
	}
	s := &Service{cfg: cfg, kv: kv, log: log}
	s.open = func(ctx context.Context) (store.Storer, error) {
		return store.Open(cfg.DBPath, log)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current initialization state.
func (s *Service) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Init initializes storage if needed. Concurrent callers share one attempt
// and all receive its error. A failed attempt leaves the service
// uninitialized so the next call retries.
func (s *Service) Init(ctx context.Context) error {
	_, err := s.ready(ctx)
	return err
}

func (s *Service) ready(ctx context.Context) (store.Storer, error) {
	s.mu.RLock()
	if s.state == Ready {
		st := s.st
		s.mu.RUnlock()
		return st, nil
	}
	s.mu.RUnlock()

	v, err, _ := s.group.Do("init", func() (any, error) {
		return s.initialize(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(store.Storer), nil
}

func (s *Service) initialize(ctx context.Context) (store.Storer, error) {
	s.mu.Lock()
	if s.state == Ready {
		st := s.st
		s.mu.Unlock()
		return st, nil
	}
	s.state = Initializing
	s.mu.Unlock()

	s.inits.Add(1)
	st, importer, err := s.bootstrap(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = Uninitialized
		s.log.Error("storage initialization failed", "error", err)
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	s.st = st
	s.importer = importer
	s.state = Ready
	return st, nil
}

// bootstrap opens the store, applies schema and migrations, seeds the tag
// catalog and imports legacy records.
func (s *Service) bootstrap(ctx context.Context) (store.Storer, *legacy.Importer, error) {
	st, err := s.open(ctx)
	if err != nil {
		return nil, nil, err
	}
	fail := func(err error) (store.Storer, *legacy.Importer, error) {
		st.Close()
		return nil, nil, err
	}

	if err := st.EnsureSchema(ctx); err != nil {
		return fail(err)
	}
	if s.cfg.SeedTags {
		added, err := st.SeedTags(ctx, store.PredefinedTags)
		if err != nil {
			return fail(err)
		}
		if added > 0 {
			s.log.Debug("seeded predefined tags", "count", added)
		}
	}

	importer := legacy.NewImporter(s.kv, st, s.log)
	if _, err := importer.Run(ctx); err != nil {
		return fail(err)
	}
	s.log.Info("storage ready", "db", s.cfg.DBPath)
	return st, importer, nil
}

// Close releases the store. The next operation initializes again.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.st == nil {
		return nil
	}
	err := s.st.Close()
	s.st = nil
	s.importer = nil
	s.state = Uninitialized
	return err
}
