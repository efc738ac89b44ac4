// Package settings implements a backend-agnostic key-value settings store.
//
// A Store presents one get/set/subscribe contract over three mutually
// exclusive persistence backends: a typed synchronized store, a byte-valued
// synchronized store, and a string-only local fallback. The active backend
// is resolved once from the host environment's capabilities; callers never
// see which one is in use except through the Backend diagnostic.
package settings

import "context"

// Namespace tags carried by normalized change events.
const (
	NamespaceSync  = "sync"
	NamespaceLocal = "local"
)

// Change describes one key's transition. Old or New is nil when the key
// was absent on that side.
type Change struct {
	Old any `json:"oldValue"`
	New any `json:"newValue"`
}

// Changes maps changed keys to their transitions.
type Changes map[string]Change

// Handler receives normalized change events synchronously with the native
// notification. The namespace is NamespaceSync for the two synchronized
// backends and NamespaceLocal for the fallback.
type Handler func(changes Changes, namespace string)

// PrimaryHost is the native contract of the primary synchronized store:
// batched, typed, context-aware.
type PrimaryHost interface {
	// Fetch returns stored values for keys; never-written keys are absent
	// from the result.
	Fetch(ctx context.Context, keys []string) (map[string]any, error)

	// Store writes the whole mapping in one native call.
	Store(ctx context.Context, items map[string]any) error

	// OnCommit registers fn to run after every committed write. oldValues
	// holds entries only for keys that existed before the write.
	OnCommit(fn func(oldValues, newValues map[string]any))
}

// SecondaryHost is the native contract of the secondary synchronized
// store: byte-valued and transaction-shaped, with no context plumbing.
type SecondaryHost interface {
	Load(keys []string) (map[string][]byte, error)
	Save(items map[string][]byte) error
	OnCommit(fn func(oldValues, newValues map[string][]byte))
}

// LocalHost is the native contract of the string-only fallback store. It
// is the one capability every host environment provides.
type LocalHost interface {
	// Lookup returns the raw stored string. The boolean distinguishes an
	// empty stored value from an absent one.
	Lookup(key string) (string, bool)

	SetString(key, value string) error

	// OnEvent registers fn for raw storage events. An empty oldValue or
	// newValue marks that side as absent.
	OnEvent(fn func(key, oldValue, newValue string))
}
