package bridge

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// ---------------------------------------------------------------------------
// Class: descriptor for one bridged type
// ---------------------------------------------------------------------------

// Allocator creates the native storage for a new instance. It must return
// a non-nil Instance; a nil return is treated as native storage exhaustion
// and is fatal to the host.
type Allocator func(s *State) Instance

// Collector releases class-specific resources during finalization. The
// instance is still accessible (StateFinalizing) while collectors run.
type Collector func(s *State, obj Instance)

// Checker decides whether an instance that already type-checked is still a
// usable member of its class. A false result makes the instance fail type
// checks and answer false to "valid" without inspecting its state directly.
type Checker func(s *State, obj Instance) bool

// MissGetter is a native fallback for property reads that matched no
// registered property. It returns the value and true, or false when it has
// nothing to answer.
type MissGetter func(s *State, obj Instance, key lua.LValue) (lua.LValue, bool)

// MissSetter is the write-side counterpart of MissGetter.
type MissSetter func(s *State, obj Instance, key, value lua.LValue)

// FirstConnectHook is invoked the first time a named signal on an instance
// (or on the class itself, with a nil owner) gains a handler. Classes use
// it to lazily seed state the first time anything listens.
type FirstConnectHook func(s *State, owner Instance, name string)

// Class describes one registered bridged type. Classes are immutable after
// RegisterClass returns, except for the live-instance counter and the
// installable script-side miss handlers.
type Class struct {
	Name   string
	Parent *Class

	Allocate  Allocator
	Collect   Collector
	Check     Checker
	ReadMiss  MissGetter
	WriteMiss MissSetter

	// OnFirstConnect, when non-nil, fires on the absent → present
	// transition of each signal name. Optional.
	OnFirstConnect FirstConnectHook

	// methods holds the engine-native operations (signal helpers plus
	// whatever the class supplied). Fixed at registration; shadowed
	// lookups walk the parent chain.
	methods map[string]lua.LValue

	// properties is kept sorted by name for binary search.
	properties []*Property

	// signals is the class-wide signal table. Listeners connected here
	// hear the event of every instance, after that instance's own
	// listeners have run.
	signals SignalTable

	// instances counts live instances of exactly this class.
	instances int

	// Script-installed miss handlers, held as registry identities.
	indexMiss    interface{}
	newindexMiss interface{}
}

// ClassSpec is the input to RegisterClass.
type ClassSpec struct {
	Name   string
	Parent *Class

	Allocate  Allocator
	Collect   Collector
	Check     Checker
	ReadMiss  MissGetter
	WriteMiss MissSetter

	OnFirstConnect FirstConnectHook

	// Methods are engine-native operations reachable as attributes on
	// every instance of the class (and its descendants). They shadow
	// properties of the same name across the whole chain.
	Methods map[string]lua.LGFunction

	// Meta entries are installed directly on the class's metatable
	// (e.g. a custom __tostring). __index and __newindex are owned by
	// the dispatch layer and cannot be overridden here.
	Meta map[string]lua.LGFunction
}

// Signals returns the class-level signal table.
func (c *Class) Signals() *SignalTable { return &c.signals }

// Instances returns the number of live instances of exactly this class.
func (c *Class) Instances() int { return c.instances }

// HasAncestor reports whether a is c or one of c's ancestors.
func (c *Class) HasAncestor(a *Class) bool {
	for cur := c; cur != nil; cur = cur.Parent {
		if cur == a {
			return true
		}
	}
	return false
}

// String implements the Stringer interface.
func (c *Class) String() string { return c.Name }

// ---------------------------------------------------------------------------
// Registration
// ---------------------------------------------------------------------------

// RegisterClass registers a class and builds its dispatch metatable. It
// must be called exactly once per class name, parents before children;
// violating either is a host start-up bug and panics.
func (s *State) RegisterClass(spec ClassSpec) *Class {
	if spec.Name == "" {
		panic("bridge: RegisterClass with empty name")
	}
	if _, dup := s.classes[spec.Name]; dup {
		panic(fmt.Sprintf("bridge: class %q registered twice", spec.Name))
	}
	if spec.Allocate == nil {
		panic(fmt.Sprintf("bridge: class %q has no allocator", spec.Name))
	}
	if spec.Parent != nil && s.classes[spec.Parent.Name] != spec.Parent {
		panic(fmt.Sprintf("bridge: class %q registered before its parent", spec.Name))
	}

	c := &Class{
		Name:           spec.Name,
		Parent:         spec.Parent,
		Allocate:       spec.Allocate,
		Collect:        spec.Collect,
		Check:          spec.Check,
		ReadMiss:       spec.ReadMiss,
		WriteMiss:      spec.WriteMiss,
		OnFirstConnect: spec.OnFirstConnect,
		methods:        make(map[string]lua.LValue),
	}

	// Root classes carry the engine-native signal helpers; descendants
	// reach them through the chain walk.
	if c.Parent == nil {
		for name, fn := range s.builtinMethods() {
			c.methods[name] = s.L.NewFunction(fn)
		}
	}
	for name, fn := range spec.Methods {
		// "valid" is answered from liveness alone and can never be a
		// class method.
		if name == "valid" {
			panic(fmt.Sprintf("bridge: class %q tried to register a %q method", spec.Name, name))
		}
		c.methods[name] = s.L.NewFunction(fn)
	}

	mt := s.L.NewTable()
	s.L.SetField(mt, "__index", s.L.NewFunction(s.dispatchIndex))
	s.L.SetField(mt, "__newindex", s.L.NewFunction(s.dispatchNewindex))
	s.L.SetField(mt, "__tostring", s.L.NewFunction(s.dispatchTostring))
	for name, fn := range spec.Meta {
		if name == "__index" || name == "__newindex" {
			panic(fmt.Sprintf("bridge: class %q tried to override %s", spec.Name, name))
		}
		s.L.SetField(mt, name, s.L.NewFunction(fn))
	}

	// Bidirectional descriptor ↔ metatable mapping, so any value's class
	// is recoverable in O(1) from its metatable.
	s.classes[spec.Name] = c
	s.classList = append(s.classList, c)
	s.mtByClass[c] = mt
	s.classByMT[mt] = c

	return c
}

// LookupClass returns the registered class with the given name, or nil.
func (s *State) LookupClass(name string) *Class {
	return s.classes[name]
}

// Classes returns all registered classes in registration order.
func (s *State) Classes() []*Class {
	out := make([]*Class, len(s.classList))
	copy(out, s.classList)
	return out
}

// ---------------------------------------------------------------------------
// Runtime type recovery and checks
// ---------------------------------------------------------------------------

// ClassOf recovers the class descriptor of a script value via its
// metatable. Returns nil for values that are not bridged instances of any
// registered class.
func (s *State) ClassOf(v lua.LValue) *Class {
	ud, ok := v.(*lua.LUserData)
	if !ok {
		return nil
	}
	mt, ok := s.L.GetMetatable(ud).(*lua.LTable)
	if !ok {
		return nil
	}
	return s.classByMT[mt]
}

// ToInstance converts a script value to an instance of class c, walking
// the value's ancestry. Returns nil on any mismatch, including a class
// Checker veto.
func (s *State) ToInstance(v lua.LValue, c *Class) Instance {
	actual := s.ClassOf(v)
	if actual == nil || !actual.HasAncestor(c) {
		return nil
	}
	obj, ok := v.(*lua.LUserData).Value.(Instance)
	if !ok {
		return nil
	}
	if c.Check != nil && !c.Check(s, obj) {
		return nil
	}
	return obj
}

// CheckInstance converts the value at stack position n to an instance of
// class c, raising a script-level argument error on mismatch.
func (s *State) CheckInstance(n int, c *Class) Instance {
	obj := s.ToInstance(s.L.Get(n), c)
	if obj == nil {
		s.L.ArgError(n, fmt.Sprintf("%s expected", c.Name))
	}
	return obj
}

// ---------------------------------------------------------------------------
// Script-side miss handlers
// ---------------------------------------------------------------------------

// SetIndexMissHandler installs a script function called when a property
// read on instances of c matches nothing. Replaces any previous handler.
func (s *State) SetIndexMissHandler(c *Class, fn lua.LValue) error {
	return s.setMissHandler(&c.indexMiss, fn)
}

// SetNewindexMissHandler installs the write-side miss handler for c.
func (s *State) SetNewindexMissHandler(c *Class, fn lua.LValue) error {
	return s.setMissHandler(&c.newindexMiss, fn)
}

func (s *State) setMissHandler(slot *interface{}, fn lua.LValue) error {
	if *slot != nil {
		s.Unref(*slot)
		*slot = nil
	}
	if fn == nil || fn == lua.LNil {
		return nil
	}
	id, ok := s.Ref(fn)
	if !ok {
		return fmt.Errorf("bridge: miss handler must be referenceable, got %s", fn.Type())
	}
	*slot = id
	return nil
}

// ---------------------------------------------------------------------------
// Engine-native methods available on every instance
// ---------------------------------------------------------------------------

// builtinMethods returns the signal helpers injected into every root
// class's method table.
func (s *State) builtinMethods() map[string]lua.LGFunction {
	return map[string]lua.LGFunction{
		"connect_signal": func(L *lua.LState) int {
			obj := s.checkAnyInstance(1)
			name := L.CheckString(2)
			handler := L.CheckFunction(3)
			if err := s.Connect(obj, name, handler); err != nil {
				L.RaiseError("%s", err)
			}
			return 0
		},
		"disconnect_signal": func(L *lua.LState) int {
			obj := s.checkAnyInstance(1)
			name := L.CheckString(2)
			handler := L.CheckFunction(3)
			L.Push(lua.LBool(s.Disconnect(obj, name, handler)))
			return 1
		},
		"emit_signal": func(L *lua.LState) int {
			obj := s.checkAnyInstance(1)
			name := L.CheckString(2)
			args := make([]lua.LValue, 0, L.GetTop()-2)
			for i := 3; i <= L.GetTop(); i++ {
				args = append(args, L.Get(i))
			}
			s.Emit(obj, name, args...)
			return 0
		},
	}
}

// checkAnyInstance extracts a bridged instance of any registered class
// from stack position n, raising an argument error otherwise.
func (s *State) checkAnyInstance(n int) Instance {
	v := s.L.Get(n)
	if s.ClassOf(v) != nil {
		if obj, ok := v.(*lua.LUserData).Value.(Instance); ok {
			return obj
		}
	}
	s.L.ArgError(n, "bridged object expected")
	return nil
}
