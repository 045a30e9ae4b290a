package scope

import (
	"context"

	"github.com/mitchellh/copystructure"
)

// Bindings is an immutable set of request-scoped key/value pairs carried
// from a scope to every child task it forks, including through nested
// scopes. With never mutates its receiver, and every fork receives a deep
// copy taken at spawn time, so no task observes a value bound after its own
// spawn.
type Bindings struct {
	m map[string]any
}

// With returns a new set extending b with key bound to value. The enclosing
// set is unchanged; dropping the returned context restores it automatically.
func (b Bindings) With(key string, value any) Bindings {
	m := make(map[string]any, len(b.m)+1)
	for k, v := range b.m {
		m[k] = v
	}
	m[key] = value
	return Bindings{m: m}
}

// Get returns the value bound to key, if any.
func (b Bindings) Get(key string) (any, bool) {
	v, ok := b.m[key]
	return v, ok
}

// Len returns the number of bound keys.
func (b Bindings) Len() int { return len(b.m) }

type bindingsKey struct{}

// WithBindings returns a context carrying b. Tasks forked from a scope over
// the returned context see b through [Bound].
func WithBindings(ctx context.Context, b Bindings) context.Context {
	return context.WithValue(ctx, bindingsKey{}, b)
}

// Bound extracts the bindings carried by ctx. The zero Bindings is returned
// for contexts outside any binding scope.
func Bound(ctx context.Context) Bindings {
	if b, ok := ctx.Value(bindingsKey{}).(Bindings); ok {
		return b
	}
	return Bindings{}
}

// snapshot deep-copies b for a newly forked task, so that mutable values
// (maps, slices) bound by the caller are never shared with child tasks.
func (b Bindings) snapshot() Bindings {
	if len(b.m) == 0 {
		return Bindings{}
	}
	copied, err := copystructure.Copy(b.m)
	if err != nil {
		// Unsupported value kinds (channels, funcs) fall back to the
		// shallow copy; bindings are read-only afterward either way.
		m := make(map[string]any, len(b.m))
		for k, v := range b.m {
			m[k] = v
		}
		return Bindings{m: m}
	}
	return Bindings{m: copied.(map[string]any)}
}
