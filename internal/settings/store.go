package settings

import (
	"context"
	"sync"
)

// Capabilities describes which native stores the host environment
// exposes. Local must always be present; Primary and Secondary are nil
// when the environment lacks them.
type Capabilities struct {
	Primary   PrimaryHost
	Secondary SecondaryHost
	Local     LocalHost
}

// pick resolves the backend in fixed priority order: primary, then
// secondary, then the always-available local fallback. An environment
// exposing both synchronized stores resolves to the primary; the ordering
// is a compatibility commitment, not a convenience. Resolution cannot
// fail.
func (c Capabilities) pick() Backend {
	switch {
	case c.Primary != nil:
		return BackendPrimary
	case c.Secondary != nil:
		return BackendSecondary
	default:
		return BackendLocal
	}
}

// Store is the unified accessor over the resolved backend.
//
// The backend is resolved lazily on the first operation and never changes
// for the lifetime of the Store; a fresh process re-derives it from
// scratch. Store is safe for concurrent use as long as the underlying
// hosts are.
type Store struct {
	caps Capabilities

	resolveOnce sync.Once
	backend     Backend
	active      adapter
}

// New builds a Store over the given host capabilities.
func New(caps Capabilities) *Store {
	return &Store{caps: caps}
}

func (s *Store) resolve() {
	s.resolveOnce.Do(func() {
		s.backend = s.caps.pick()
		switch s.backend {
		case BackendPrimary:
			s.active = &primaryAdapter{host: s.caps.Primary}
		case BackendSecondary:
			s.active = &secondaryAdapter{host: s.caps.Secondary}
		default:
			s.active = &localAdapter{host: s.caps.Local}
		}
	})
}

// Backend reports which backend this store resolved to, for diagnostics
// and caller-side branching.
func (s *Store) Backend() Backend {
	s.resolve()
	return s.backend
}

// Get returns the stored value for key, or def when nothing is stored.
// Values from the synchronized backends come back exactly as written. On
// the fallback backend the raw stored string goes through Coerce, so
// non-negative integers written through Set read back as ints and
// everything else reads back as the stored string.
func (s *Store) Get(ctx context.Context, key string, def any) (any, error) {
	s.resolve()

	if s.backend == BackendLocal {
		// The fallback is string-only: read the raw value directly and
		// coerce instead of going through the generic adapter path.
		raw, ok := s.caps.Local.Lookup(key)
		if !ok {
			return def, nil
		}
		return Coerce(raw), nil
	}

	items, err := s.active.get(ctx, []string{key})
	if err != nil {
		return nil, err
	}
	v, ok := items[key]
	if !ok || v == nil {
		return def, nil
	}
	return v, nil
}

// Set writes the given key-value pairs. Values must be strings or
// numbers. The synchronized backends take the whole mapping in one native
// call and inherit its atomicity; the fallback writes key by key with no
// cross-key atomicity.
func (s *Store) Set(ctx context.Context, items map[string]any) error {
	s.resolve()
	return s.active.set(ctx, items)
}

// AddListener subscribes h to normalized change events from the resolved
// backend's native change mechanism. Exactly one native subscription is
// installed per call, on the resolved backend only. Events are delivered
// synchronously with the native notification, without buffering or
// deduplication.
func (s *Store) AddListener(h Handler) {
	s.resolve()
	s.active.addListener(h)
}
