package bridge

import (
	"testing"

	lua "github.com/yuin/gopher-lua"
)

// ---------------------------------------------------------------------------
// Connect / disconnect
// ---------------------------------------------------------------------------

// recorder returns a Lua handler that appends tag to the "order" global
// array on every invocation.
func recorder(s *State, tag string) *lua.LFunction {
	return s.L.NewFunction(func(L *lua.LState) int {
		order := L.GetGlobal("order").(*lua.LTable)
		order.Append(lua.LString(tag))
		return 0
	})
}

func resetOrder(s *State) {
	s.L.SetGlobal("order", s.L.NewTable())
}

func orderValues(s *State) []string {
	var out []string
	s.L.GetGlobal("order").(*lua.LTable).ForEach(func(_, v lua.LValue) {
		out = append(out, lua.LVAsString(v))
	})
	return out
}

func expectOrder(t *testing.T, s *State, want ...string) {
	t.Helper()
	got := orderValues(s)
	if len(got) != len(want) {
		t.Fatalf("handler order = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("handler order = %v, want %v", got, want)
		}
	}
}

func TestEmitInConnectionOrder(t *testing.T) {
	s := newTestState(t)
	cls := registerWidgetClass(t, s)
	w := s.NewInstance(cls, nil)
	resetOrder(s)

	for _, tag := range []string{"first", "second", "third"} {
		if err := s.Connect(w, "changed", recorder(s, tag)); err != nil {
			t.Fatalf("Connect failed: %v", err)
		}
	}
	s.Emit(w, "changed")
	expectOrder(t, s, "first", "second", "third")
}

func TestDuplicateConnect(t *testing.T) {
	s := newTestState(t)
	cls := registerWidgetClass(t, s)
	w := s.NewInstance(cls, nil)
	resetOrder(s)

	h := recorder(s, "dup")
	s.Connect(w, "changed", h)
	s.Connect(w, "changed", h)

	s.Emit(w, "changed")
	expectOrder(t, s, "dup", "dup")

	// Each connect is an independent entry: one disconnect removes one.
	if !s.Disconnect(w, "changed", h) {
		t.Fatal("first disconnect should find an entry")
	}
	resetOrder(s)
	s.Emit(w, "changed")
	expectOrder(t, s, "dup")

	if !s.Disconnect(w, "changed", h) {
		t.Fatal("second disconnect should find the remaining entry")
	}
	if s.Disconnect(w, "changed", h) {
		t.Error("third disconnect should find nothing")
	}
}

func TestDisconnectPreservesOrder(t *testing.T) {
	s := newTestState(t)
	cls := registerWidgetClass(t, s)
	w := s.NewInstance(cls, nil)
	resetOrder(s)

	a, b, c := recorder(s, "a"), recorder(s, "b"), recorder(s, "c")
	s.Connect(w, "changed", a)
	s.Connect(w, "changed", b)
	s.Connect(w, "changed", c)
	s.Disconnect(w, "changed", b)

	s.Emit(w, "changed")
	expectOrder(t, s, "a", "c")
}

func TestDisconnectUnknownKeepsRefs(t *testing.T) {
	s := newTestState(t)
	cls := registerWidgetClass(t, s)
	w := s.NewInstance(cls, nil)

	h := s.L.NewFunction(func(L *lua.LState) int { return 0 })
	id, _ := s.Ref(h) // our own hold, unrelated to any connect

	if s.Disconnect(w, "changed", h) {
		t.Error("disconnecting a never-connected handler should report false")
	}
	if got := s.Refs().Count(id); got != 1 {
		t.Errorf("count = %d, want 1: failed disconnect must not release foreign holds", got)
	}
	s.Unref(id)
}

func TestConnectNonReferenceable(t *testing.T) {
	s := newTestState(t)
	cls := registerWidgetClass(t, s)
	w := s.NewInstance(cls, nil)

	if err := s.Connect(w, "changed", lua.LString("nope")); err == nil {
		t.Error("connecting a primitive handler should fail")
	}
}

// ---------------------------------------------------------------------------
// Emission semantics
// ---------------------------------------------------------------------------

func TestEmitWithoutListeners(t *testing.T) {
	s := newTestState(t)
	cls := registerWidgetClass(t, s)
	w := s.NewInstance(cls, nil)

	// Must not raise, allocate handler state, or create entries.
	s.Emit(w, "never-connected")
	if got := len(w.base().Signals().Names()); got != 0 {
		t.Errorf("signal entries after dead emit = %d, want 0", got)
	}
}

func TestSelfDisconnectDuringEmit(t *testing.T) {
	s := newTestState(t)
	cls := registerWidgetClass(t, s)
	w := s.NewInstance(cls, nil)
	resetOrder(s)

	var self *lua.LFunction
	self = s.L.NewFunction(func(L *lua.LState) int {
		order := L.GetGlobal("order").(*lua.LTable)
		order.Append(lua.LString("self"))
		s.Disconnect(w, "changed", self)
		return 0
	})
	s.Connect(w, "changed", self)
	s.Connect(w, "changed", recorder(s, "after"))

	s.Emit(w, "changed")
	expectOrder(t, s, "self", "after")

	resetOrder(s)
	s.Emit(w, "changed")
	expectOrder(t, s, "after")
}

func TestConnectDuringEmit(t *testing.T) {
	s := newTestState(t)
	cls := registerWidgetClass(t, s)
	w := s.NewInstance(cls, nil)
	resetOrder(s)

	late := recorder(s, "late")
	s.Connect(w, "changed", s.L.NewFunction(func(L *lua.LState) int {
		order := L.GetGlobal("order").(*lua.LTable)
		order.Append(lua.LString("adder"))
		s.Connect(w, "changed", late)
		return 0
	}))

	s.Emit(w, "changed")
	expectOrder(t, s, "adder")

	resetOrder(s)
	s.Emit(w, "changed")
	expectOrder(t, s, "adder", "late", "late")
}

func TestHandlerErrorIsolation(t *testing.T) {
	s := newTestState(t)
	cls := registerWidgetClass(t, s)
	w := s.NewInstance(cls, nil)
	resetOrder(s)

	s.Connect(w, "changed", s.L.NewFunction(func(L *lua.LState) int {
		L.RaiseError("handler exploded")
		return 0
	}))
	s.Connect(w, "changed", recorder(s, "survivor"))

	// The failure is reported as a diagnostic; delivery continues.
	s.Emit(w, "changed")
	expectOrder(t, s, "survivor")
}

func TestClassLevelAfterObjectLevel(t *testing.T) {
	s := newTestState(t)
	cls := registerWidgetClass(t, s)
	w := s.NewInstance(cls, nil)
	resetOrder(s)

	s.ConnectClass(cls, "changed", recorder(s, "class"))
	s.Connect(w, "changed", recorder(s, "object"))

	s.Emit(w, "changed")
	expectOrder(t, s, "object", "class")
}

func TestClassListenerHearsEveryInstance(t *testing.T) {
	s := newTestState(t)
	cls := registerWidgetClass(t, s)
	a := s.NewInstance(cls, nil)
	b := s.NewInstance(cls, nil)

	seen := 0
	s.ConnectClass(cls, "changed", s.L.NewFunction(func(L *lua.LState) int {
		seen++
		return 0
	}))

	s.Emit(a, "changed")
	s.Emit(b, "changed")
	if seen != 2 {
		t.Errorf("class listener ran %d times, want 2", seen)
	}
}

func TestEmitClassDirect(t *testing.T) {
	s := newTestState(t)
	cls := registerWidgetClass(t, s)
	resetOrder(s)

	h := recorder(s, "class")
	s.ConnectClass(cls, "manage", h)
	s.EmitClass(cls, "manage", lua.LString("arg"))
	expectOrder(t, s, "class")

	if !s.DisconnectClass(cls, "manage", h) {
		t.Error("class-level disconnect should find the handler")
	}
	resetOrder(s)
	s.EmitClass(cls, "manage")
	expectOrder(t, s)
}

func TestEmitPassesReceiverAndArgs(t *testing.T) {
	s := newTestState(t)
	cls := registerWidgetClass(t, s)
	w := s.NewInstance(cls, nil)

	var gotRecv, gotArg lua.LValue
	s.Connect(w, "changed", s.L.NewFunction(func(L *lua.LState) int {
		gotRecv = L.Get(1)
		gotArg = L.Get(2)
		return 0
	}))

	s.Emit(w, "changed", lua.LString("payload"))
	if gotRecv != lua.LValue(w.base().Handle()) {
		t.Error("handlers should receive the emitting object first")
	}
	if lua.LVAsString(gotArg) != "payload" {
		t.Errorf("arg = %v, want payload", gotArg)
	}
}

// ---------------------------------------------------------------------------
// First-connect hook
// ---------------------------------------------------------------------------

func TestFirstConnectHook(t *testing.T) {
	s := newTestState(t)
	var fired []string
	cls := s.RegisterClass(ClassSpec{
		Name:     "output",
		Allocate: func(s *State) Instance { return &chainObj{} },
		OnFirstConnect: func(s *State, owner Instance, name string) {
			fired = append(fired, name)
		},
	})

	w := s.NewInstance(cls, nil)
	h := func() *lua.LFunction {
		return s.L.NewFunction(func(L *lua.LState) int { return 0 })
	}

	s.Connect(w, "mode", h())
	s.Connect(w, "mode", h()) // entry already exists: no second firing
	s.Connect(w, "scale", h())

	if len(fired) != 2 || fired[0] != "mode" || fired[1] != "scale" {
		t.Errorf("hook firings = %v, want [mode scale]", fired)
	}

	// Class-level connects share the hook, with a nil owner.
	s.ConnectClass(cls, "arrange", h())
	if len(fired) != 3 || fired[2] != "arrange" {
		t.Errorf("hook firings = %v, want arrange appended", fired)
	}
}

func TestFirstConnectHookSurvivesZeroHandlers(t *testing.T) {
	s := newTestState(t)
	count := 0
	cls := s.RegisterClass(ClassSpec{
		Name:     "output",
		Allocate: func(s *State) Instance { return &chainObj{} },
		OnFirstConnect: func(s *State, owner Instance, name string) {
			count++
		},
	})

	w := s.NewInstance(cls, nil)
	h := s.L.NewFunction(func(L *lua.LState) int { return 0 })

	s.Connect(w, "mode", h)
	s.Disconnect(w, "mode", h)
	// The entry survives with zero handlers: reconnecting is not a
	// first connect.
	s.Connect(w, "mode", h)

	if count != 1 {
		t.Errorf("hook fired %d times, want 1", count)
	}
}
