package bridge

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// ---------------------------------------------------------------------------
// Dispatch layer: attribute access on bridged instances
// ---------------------------------------------------------------------------

// The dispatch layer backs the __index/__newindex metamethods of every
// class metatable. Resolution order for reads:
//
//  1. the literal "valid" attribute, answered from liveness alone
//  2. the Invalid-state gate (everything but "valid" errors on a
//     finalized instance)
//  3. engine-native class methods, walking the parent chain
//  4. the property tables, walking the parent chain (child shadows parent)
//  5. the class's script-installed index-miss handler
//  6. the class's native ReadMiss callback
//  7. nothing (not an error)
//
// Writes mirror reads, with "valid" and method names rejected outright.

const errInvalidObject = "attempt to use an invalid object (already destroyed)"

// objectValid reports whether obj still type-checks and passes its
// class's Checker. This is the one probe that never raises, even on a
// finalized instance.
func (s *State) objectValid(obj Instance) bool {
	o := obj.base()
	if o.state != StateLive {
		return false
	}
	if o.class.Check != nil {
		return o.class.Check(s, obj)
	}
	return true
}

// instanceArg extracts the dispatched-on instance from stack position 1.
func (s *State) instanceArg(L *lua.LState) Instance {
	ud := L.CheckUserData(1)
	obj, ok := ud.Value.(Instance)
	if !ok {
		L.RaiseError("bridge: dispatch on a foreign userdata")
	}
	return obj
}

// lookupMethod walks the class chain for an engine-native method.
func lookupMethod(c *Class, name string) lua.LValue {
	for cur := c; cur != nil; cur = cur.Parent {
		if m, ok := cur.methods[name]; ok {
			return m
		}
	}
	return nil
}

func (s *State) dispatchIndex(L *lua.LState) int {
	obj := s.instanceArg(L)
	o := obj.base()
	key := L.Get(2)
	name, isString := "", false
	if ks, ok := key.(lua.LString); ok {
		name, isString = string(ks), true
	}

	if isString && name == "valid" {
		L.Push(lua.LBool(s.objectValid(obj)))
		return 1
	}
	if o.state == StateInvalid {
		L.RaiseError(errInvalidObject)
		return 0
	}

	if isString {
		if m := lookupMethod(o.class, name); m != nil {
			L.Push(m)
			return 1
		}
		if p := o.class.lookupProperty(name); p != nil {
			if p.Get == nil {
				return 0 // write-only: nothing, not an error
			}
			L.Push(p.Get(s, obj))
			return 1
		}
	}

	if o.class.indexMiss != nil {
		if fn := s.PushRef(o.class.indexMiss); fn != lua.LNil {
			L.CallByParam(lua.P{Fn: fn, NRet: 1}, o.handle, key)
			return 1
		}
	}
	if o.class.ReadMiss != nil {
		if v, ok := o.class.ReadMiss(s, obj, key); ok {
			L.Push(v)
			return 1
		}
	}
	return 0
}

func (s *State) dispatchNewindex(L *lua.LState) int {
	obj := s.instanceArg(L)
	o := obj.base()
	key := L.Get(2)
	value := L.Get(3)
	name, isString := "", false
	if ks, ok := key.(lua.LString); ok {
		name, isString = string(ks), true
	}

	if isString && name == "valid" {
		L.RaiseError("bridge: \"valid\" is read-only")
		return 0
	}
	if o.state == StateInvalid {
		L.RaiseError(errInvalidObject)
		return 0
	}

	if isString {
		// Meta attributes are fixed at class-setup time.
		if lookupMethod(o.class, name) != nil {
			L.RaiseError("bridge: %q is a class method and cannot be assigned", name)
			return 0
		}
		if p := o.class.lookupProperty(name); p != nil {
			if p.Set != nil {
				p.Set(s, obj, value)
			}
			return 0
		}
	}

	if o.class.newindexMiss != nil {
		if fn := s.PushRef(o.class.newindexMiss); fn != lua.LNil {
			L.CallByParam(lua.P{Fn: fn, NRet: 0}, o.handle, key, value)
			return 0
		}
	}
	if o.class.WriteMiss != nil {
		o.class.WriteMiss(s, obj, key, value)
	}
	return 0
}

// dispatchTostring is the default __tostring: class name and native
// address, regardless of lifecycle state.
func (s *State) dispatchTostring(L *lua.LState) int {
	obj := s.instanceArg(L)
	L.Push(lua.LString(fmt.Sprintf("%s: %p", obj.base().ClassName(), obj)))
	return 1
}
