package bridge

import (
	lua "github.com/yuin/gopher-lua"
)

// ---------------------------------------------------------------------------
// Object: base type embedded by every bridged native object
// ---------------------------------------------------------------------------

// ObjectState tracks where an instance is in its lifecycle.
//
// Dispatch gates on this state rather than swapping the instance's
// metatable: the metatable stays in place so class recovery keeps working
// on dead handles, while every property and signal entry point refuses
// Invalid instances.
type ObjectState uint8

const (
	// StateLive is the normal state of a constructed instance.
	StateLive ObjectState = iota

	// StateFinalizing is set while the collector chain runs. Property and
	// signal access still works in this state, since collectors may
	// legitimately read and write the instance they are tearing down.
	StateFinalizing

	// StateInvalid is terminal. Reading "valid" answers false; any other
	// access raises a script error.
	StateInvalid
)

// String returns a human-readable state name.
func (st ObjectState) String() string {
	switch st {
	case StateLive:
		return "live"
	case StateFinalizing:
		return "finalizing"
	case StateInvalid:
		return "invalid"
	default:
		return "?"
	}
}

// Object is the base of every bridged instance. Concrete classes embed it
// as their first field and add their own payload:
//
//	type window struct {
//		bridge.Object
//		x, y int
//	}
//
// The embedded Object carries the instance's class affiliation, lifecycle
// state, the one script-side handle standing for it, and the object-level
// signal table.
type Object struct {
	class   *Class
	state   ObjectState
	handle  *lua.LUserData
	signals SignalTable
}

// Instance is implemented by every type that embeds Object.
type Instance interface {
	base() *Object
}

func (o *Object) base() *Object { return o }

// Class returns the class this instance was constructed with.
func (o *Object) Class() *Class { return o.class }

// Handle returns the script-side value standing for this instance.
// There is exactly one handle per native object for its whole lifetime.
func (o *Object) Handle() *lua.LUserData { return o.handle }

// Signals returns the instance's own signal table, independent of the
// class-level one.
func (o *Object) Signals() *SignalTable { return &o.signals }

// ObjectState returns the instance's current lifecycle state.
func (o *Object) ObjectState() ObjectState { return o.state }

// ClassName returns the name of the instance's class, or "?" before
// construction has tagged it.
func (o *Object) ClassName() string {
	if o.class == nil {
		return "?"
	}
	return o.class.Name
}
