package strategy

import (
	"fmt"
	"sort"
)

// Ref names a registered strategy instance.
type Ref string

type entry struct {
	strategy Strategy
	allowed  bool
}

// Registry 策略白名单：引擎只接受已登记且允许的策略引用。
type Registry struct {
	entries map[Ref]*entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[Ref]*entry)}
}

// NewDefaultRegistry registers the built-in linear and geometric strategies.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	_ = r.Register(Ref(TypeLinear), NewLinear())
	_ = r.Register(Ref(TypeGeometric), NewGeometric())
	return r
}

// Register adds s under ref and allows it.
func (r *Registry) Register(ref Ref, s Strategy) error {
	if ref == "" || s == nil {
		return fmt.Errorf("register strategy %q: empty ref or nil strategy", ref)
	}
	if _, ok := r.entries[ref]; ok {
		return fmt.Errorf("register strategy %q: %w", ref, ErrAlreadyExists)
	}
	r.entries[ref] = &entry{strategy: s, allowed: true}
	return nil
}

// SetAllowed toggles whether new grids may reference ref. Existing grids keep
// resolving it.
func (r *Registry) SetAllowed(ref Ref, allowed bool) error {
	e, ok := r.entries[ref]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownStrategy, ref)
	}
	e.allowed = allowed
	return nil
}

// Allowed reports whether ref may be used by a new grid.
func (r *Registry) Allowed(ref Ref) bool {
	e, ok := r.entries[ref]
	return ok && e.allowed
}

// Lookup resolves ref regardless of its allowed flag.
func (r *Registry) Lookup(ref Ref) (Strategy, error) {
	e, ok := r.entries[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, ref)
	}
	return e.strategy, nil
}

// Refs returns registered refs in sorted order.
func (r *Registry) Refs() []Ref {
	out := make([]Ref, 0, len(r.entries))
	for ref := range r.entries {
		out = append(out, ref)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
