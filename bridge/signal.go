package bridge

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// ---------------------------------------------------------------------------
// SignalTable: named, ordered handler lists
// ---------------------------------------------------------------------------

// signal is one named entry: an ordered, duplicate-permitting list of
// handler identities. An entry exists from the first connect onward, even
// when its handler list is empty again.
type signal struct {
	name     string
	handlers []interface{}
}

// SignalTable is a growable collection of signals, one entry per distinct
// name ever connected. Insertion order is irrelevant; handler order within
// one signal is connection order.
type SignalTable struct {
	list []*signal
}

// find returns the entry for name, or nil.
func (st *SignalTable) find(name string) *signal {
	for _, sig := range st.list {
		if sig.name == name {
			return sig
		}
	}
	return nil
}

// getOrAdd returns the entry for name, creating it if absent. created
// reports the absent → present transition. The backing array grows
// geometrically so repeated connects stay amortized O(1).
func (st *SignalTable) getOrAdd(name string) (sig *signal, created bool) {
	if sig = st.find(name); sig != nil {
		return sig, false
	}
	if len(st.list) == cap(st.list) {
		grown := make([]*signal, len(st.list), 2*cap(st.list)+1)
		copy(grown, st.list)
		st.list = grown
	}
	sig = &signal{name: name}
	st.list = append(st.list, sig)
	return sig, true
}

// HandlerCount returns the number of handlers connected to name.
func (st *SignalTable) HandlerCount(name string) int {
	if sig := st.find(name); sig != nil {
		return len(sig.handlers)
	}
	return 0
}

// Names returns every signal name that has ever been connected.
func (st *SignalTable) Names() []string {
	names := make([]string, len(st.list))
	for i, sig := range st.list {
		names[i] = sig.name
	}
	return names
}

// ---------------------------------------------------------------------------
// Object-level signal API
// ---------------------------------------------------------------------------

// Connect appends a handler to the named signal of obj. Each connect of
// the same handler creates an independent entry that must be disconnected
// separately. The handler must be a referenceable value.
func (s *State) Connect(obj Instance, name string, handler lua.LValue) error {
	o := obj.base()
	return s.connect(&o.signals, o.class, obj, name, handler)
}

// Disconnect removes the first matching handler from the named signal of
// obj, preserving the order of the rest. It reports whether anything was
// removed; only then is the registry's hold on the handler released.
func (s *State) Disconnect(obj Instance, name string, handler lua.LValue) bool {
	return s.disconnect(obj.base().Signals(), name, handler)
}

// Emit invokes every handler connected to the named signal of obj, in
// connection order, with obj's handle followed by args. Handlers
// connected on obj's class then hear the same event, after all of obj's
// own listeners have run.
func (s *State) Emit(obj Instance, name string, args ...lua.LValue) {
	o := obj.base()
	if s.TraceSignals[o.class.Name] {
		log.Infof("bridge: %s emits %q to %d+%d handlers", o.ClassName(), name,
			o.signals.HandlerCount(name), o.class.signals.HandlerCount(name))
	}
	// Skip argument marshalling entirely when nothing is listening.
	if o.signals.HandlerCount(name) == 0 && o.class.signals.HandlerCount(name) == 0 {
		return
	}
	callArgs := make([]lua.LValue, 0, len(args)+1)
	callArgs = append(callArgs, o.handle)
	callArgs = append(callArgs, args...)
	s.emit(&o.signals, name, callArgs)
	s.emit(&o.class.signals, name, callArgs)
}

// ---------------------------------------------------------------------------
// Class-level signal API
// ---------------------------------------------------------------------------

// ConnectClass appends a handler to the class-wide signal table of c.
func (s *State) ConnectClass(c *Class, name string, handler lua.LValue) error {
	return s.connect(&c.signals, c, nil, name, handler)
}

// DisconnectClass removes a handler from the class-wide table of c.
func (s *State) DisconnectClass(c *Class, name string, handler lua.LValue) bool {
	return s.disconnect(&c.signals, name, handler)
}

// EmitClass invokes the class-wide handlers for name with exactly args.
func (s *State) EmitClass(c *Class, name string, args ...lua.LValue) {
	if c.signals.HandlerCount(name) == 0 {
		return
	}
	s.emit(&c.signals, name, args)
}

// ---------------------------------------------------------------------------
// Internals
// ---------------------------------------------------------------------------

func (s *State) connect(st *SignalTable, c *Class, owner Instance, name string, handler lua.LValue) error {
	id, ok := s.Ref(handler)
	if !ok {
		return fmt.Errorf("bridge: signal %q handler must be referenceable, got %s", name, handler.Type())
	}
	sig, created := st.getOrAdd(name)
	sig.handlers = append(sig.handlers, id)

	// Fires after the structural connect completes, so listeners set up
	// by the hook observe the signal as already subscribed.
	if created && c != nil && c.OnFirstConnect != nil {
		c.OnFirstConnect(s, owner, name)
	}
	return nil
}

func (s *State) disconnect(st *SignalTable, name string, handler lua.LValue) bool {
	id, ok := identityOf(handler)
	if !ok {
		return false
	}
	sig := st.find(name)
	if sig == nil {
		return false
	}
	for i, h := range sig.handlers {
		if h == id {
			copy(sig.handlers[i:], sig.handlers[i+1:])
			sig.handlers = sig.handlers[:len(sig.handlers)-1]
			s.Unref(id)
			return true
		}
	}
	return false
}

// emit snapshots the handler list, then invokes each snapshotted handler.
// A handler may connect or disconnect handlers (including itself) while
// running: the snapshot guarantees everyone present at emission start runs
// and nobody added mid-emission does. A handler that raises is reported
// and the rest still run.
func (s *State) emit(st *SignalTable, name string, callArgs []lua.LValue) {
	sig := st.find(name)
	if sig == nil || len(sig.handlers) == 0 {
		return
	}
	// Resolve the values up front: a handler disconnected mid-emission
	// loses its registry hold, but it was present at emission start and
	// still runs.
	snapshot := make([]lua.LValue, 0, len(sig.handlers))
	for _, id := range sig.handlers {
		if fn := s.PushRef(id); fn != lua.LNil {
			snapshot = append(snapshot, fn)
		}
	}

	for _, fn := range snapshot {
		err := s.L.CallByParam(lua.P{
			Fn:      fn,
			NRet:    0,
			Protect: true,
		}, callArgs...)
		if err != nil {
			if s.FatalHandlerErrors {
				panic(fmt.Sprintf("bridge: error in %q signal handler: %s", name, err))
			}
			log.Errorf("bridge: error in %q signal handler: %s", name, err)
		}
	}
}

// wipeSignals releases every handler hold in st and empties it. Used
// during finalization.
func (s *State) wipeSignals(st *SignalTable) {
	for _, sig := range st.list {
		for _, id := range sig.handlers {
			s.Unref(id)
		}
		sig.handlers = nil
	}
	st.list = nil
}
