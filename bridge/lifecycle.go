package bridge

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// ---------------------------------------------------------------------------
// Lifecycle: construction and finalization
// ---------------------------------------------------------------------------

// NewInstance allocates a new instance of c, tags it with the class,
// binds its one script-side handle into the reference registry (one hold,
// owned by the caller) and applies the initializer table.
//
// Only string-keyed entries of init are considered; numeric and other
// keys are silently skipped, never stringified. A string key is resolved
// through the class-chain property lookup, and applied when the property
// declares an Init callback. Unknown keys are ignored and are not retried
// through the write-miss path.
func (s *State) NewInstance(c *Class, init *lua.LTable) Instance {
	obj := c.Allocate(s)
	if obj == nil {
		panic(fmt.Sprintf("bridge: allocator of class %q returned nil", c.Name))
	}
	o := obj.base()
	o.class = c
	o.state = StateLive

	ud := s.L.NewUserData()
	ud.Value = obj
	s.L.SetMetatable(ud, s.mtByClass[c])
	o.handle = ud

	c.instances++
	s.Ref(ud)

	if init != nil {
		init.ForEach(func(k, v lua.LValue) {
			ks, ok := k.(lua.LString)
			if !ok {
				return
			}
			if p := c.lookupProperty(string(ks)); p != nil && p.Init != nil {
				p.Init(s, obj, v)
			}
		})
	}
	return obj
}

// finalize runs the fixed teardown order once the registry has dropped
// its last hold on obj:
//
//  1. wipe the instance's own signals, releasing handler holds
//  2. decrement the owning class's live-instance counter
//  3. run each class's collector up the chain, leaf first
//  4. gate the instance Invalid
//
// Collectors run with the instance in StateFinalizing, so they may still
// read and write it; the Invalid gate lands only after the whole chain
// has finished.
func (s *State) finalize(obj Instance) {
	o := obj.base()
	if o.state != StateLive {
		return
	}
	o.state = StateFinalizing

	s.wipeSignals(&o.signals)
	o.class.instances--

	for c := o.class; c != nil; c = c.Parent {
		if c.Collect != nil {
			c.Collect(s, obj)
		}
	}

	o.state = StateInvalid
}
