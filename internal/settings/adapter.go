package settings

import (
	"context"
	"fmt"
)

// adapter is the common contract each backend-specific shim satisfies.
// get may omit keys that were never written; callers treat absence as
// "use the default".
type adapter interface {
	get(ctx context.Context, keys []string) (map[string]any, error)
	set(ctx context.Context, items map[string]any) error
	addListener(h Handler)
}

// primaryAdapter passes through to the typed synchronized store, which
// already speaks the unified value shape.
type primaryAdapter struct {
	host PrimaryHost
}

func (a *primaryAdapter) get(ctx context.Context, keys []string) (map[string]any, error) {
	items, err := a.host.Fetch(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("primary fetch: %w", err)
	}
	return items, nil
}

func (a *primaryAdapter) set(ctx context.Context, items map[string]any) error {
	if err := a.host.Store(ctx, items); err != nil {
		return fmt.Errorf("primary store: %w", err)
	}
	return nil
}

func (a *primaryAdapter) addListener(h Handler) {
	a.host.OnCommit(func(oldValues, newValues map[string]any) {
		changes := make(Changes, len(newValues))
		for k, v := range newValues {
			c := Change{New: v}
			if old, ok := oldValues[k]; ok {
				c.Old = old
			}
			changes[k] = c
		}
		h(changes, NamespaceSync)
	})
}

// secondaryAdapter translates between typed values and the byte-valued
// transactional store.
type secondaryAdapter struct {
	host SecondaryHost
}

func (a *secondaryAdapter) get(_ context.Context, keys []string) (map[string]any, error) {
	raw, err := a.host.Load(keys)
	if err != nil {
		return nil, fmt.Errorf("secondary load: %w", err)
	}
	items := make(map[string]any, len(raw))
	for k, b := range raw {
		v, err := decodeValue(b)
		if err != nil {
			return nil, fmt.Errorf("decoding %q: %w", k, err)
		}
		items[k] = v
	}
	return items, nil
}

func (a *secondaryAdapter) set(_ context.Context, items map[string]any) error {
	encoded := make(map[string][]byte, len(items))
	for k, v := range items {
		b, err := encodeValue(v)
		if err != nil {
			return fmt.Errorf("encoding %q: %w", k, err)
		}
		encoded[k] = b
	}
	if err := a.host.Save(encoded); err != nil {
		return fmt.Errorf("secondary save: %w", err)
	}
	return nil
}

func (a *secondaryAdapter) addListener(h Handler) {
	a.host.OnCommit(func(oldValues, newValues map[string][]byte) {
		changes := make(Changes, len(newValues))
		for k, b := range newValues {
			v, err := decodeValue(b)
			if err != nil {
				// Foreign bytes in the bucket; nothing sane to report.
				continue
			}
			c := Change{New: v}
			if oldB, ok := oldValues[k]; ok {
				if old, err := decodeValue(oldB); err == nil {
					c.Old = old
				}
			}
			changes[k] = c
		}
		if len(changes) > 0 {
			h(changes, NamespaceSync)
		}
	})
}

// localAdapter wraps the string-only fallback store. Reads return the raw
// stored strings; the accessor applies coercion itself on the fallback
// read path.
type localAdapter struct {
	host LocalHost
}

func (a *localAdapter) get(_ context.Context, keys []string) (map[string]any, error) {
	items := make(map[string]any, len(keys))
	for _, k := range keys {
		if raw, ok := a.host.Lookup(k); ok {
			items[k] = raw
		}
	}
	return items, nil
}

func (a *localAdapter) set(_ context.Context, items map[string]any) error {
	// Writes go key by key with no atomicity across the mapping: a failure
	// partway leaves earlier keys written and is not rolled back.
	for k, v := range items {
		if err := a.host.SetString(k, valueString(v)); err != nil {
			return fmt.Errorf("writing %q: %w", k, err)
		}
	}
	return nil
}

func (a *localAdapter) addListener(h Handler) {
	a.host.OnEvent(func(key, oldValue, newValue string) {
		if key == "" {
			return
		}
		h(Changes{key: {Old: localEventValue(oldValue), New: localEventValue(newValue)}}, NamespaceLocal)
	})
}

// localEventValue maps a raw event value into the normalized shape: the
// empty string marks an absent side, anything else coerces like a read.
func localEventValue(raw string) any {
	if raw == "" {
		return nil
	}
	return Coerce(raw)
}
