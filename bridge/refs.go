package bridge

import (
	lua "github.com/yuin/gopher-lua"
)

// ---------------------------------------------------------------------------
// RefRegistry: native ⇄ script identity binding
// ---------------------------------------------------------------------------

// RefRegistry maps a native identity to the one script value standing for
// it, plus an integer count of outstanding interests. The registry is the
// single source of truth for "how many live holds exist on this identity";
// while an entry exists, the engine cannot reclaim the value.
//
// Counts strictly compose: N refs require exactly N unrefs before the
// registry drops the value.
type RefRegistry struct {
	values map[interface{}]lua.LValue
	counts map[interface{}]int
}

func newRefRegistry() *RefRegistry {
	return &RefRegistry{
		values: make(map[interface{}]lua.LValue),
		counts: make(map[interface{}]int),
	}
}

// Size returns the number of distinct identities currently held.
func (r *RefRegistry) Size() int { return len(r.values) }

// Count returns the outstanding count for an identity, 0 if absent.
func (r *RefRegistry) Count(id interface{}) int { return r.counts[id] }

// identityOf computes the native identity of a referenceable script
// value. Bridged instances are identified by the native object itself, so
// every handle to the same object shares one identity; other referenceable
// kinds (functions, tables, threads, foreign userdata) are identified by
// the engine value's own pointer. Engine primitives are not referenceable.
func identityOf(v lua.LValue) (interface{}, bool) {
	switch v := v.(type) {
	case *lua.LUserData:
		if obj, ok := v.Value.(Instance); ok {
			return obj, true
		}
		return v, true
	case *lua.LFunction:
		return v, true
	case *lua.LTable:
		return v, true
	case *lua.LState:
		return v, true
	default:
		return nil, false
	}
}

// Ref records one interest in the given value and returns its identity.
// If the value's kind is not referenceable at all, no reference is
// created and ok is false; this is not an error.
func (s *State) Ref(v lua.LValue) (id interface{}, ok bool) {
	id, ok = identityOf(v)
	if !ok {
		return nil, false
	}
	if _, exists := s.refs.values[id]; !exists {
		s.refs.values[id] = v
	}
	s.refs.counts[id]++
	return id, true
}

// Unref releases one interest in an identity. Decrementing an identity
// with no outstanding count is a lifetime bug somewhere in the bridge or
// a caller of it, and is reported loudly rather than ignored.
//
// When the count reaches zero the entry is dropped and the value becomes
// collectible by the engine. If the identity is a bridged instance that is
// still live, the instance is finalized.
func (s *State) Unref(id interface{}) {
	n, exists := s.refs.counts[id]
	if !exists {
		log.Errorf("bridge: unref of %v with no outstanding reference (double unref?)", id)
		return
	}
	if n > 1 {
		s.refs.counts[id] = n - 1
		return
	}
	delete(s.refs.counts, id)
	delete(s.refs.values, id)

	if obj, ok := id.(Instance); ok {
		s.finalize(obj)
	}
}

// PushRef returns the stored value for an identity, or LNil if the
// registry no longer holds it. Used to hand a previously-referenced value
// (e.g. a connected handler) back to the engine for invocation.
func (s *State) PushRef(id interface{}) lua.LValue {
	if v, ok := s.refs.values[id]; ok {
		return v
	}
	return lua.LNil
}

// Refs exposes the registry for inspection (snapshots, tests).
func (s *State) Refs() *RefRegistry { return s.refs }
