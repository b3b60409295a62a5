package bridge

import (
	"github.com/tliron/commonlog"
	lua "github.com/yuin/gopher-lua"
)

var log = commonlog.GetLogger("corvid.bridge")

// ---------------------------------------------------------------------------
// State: one bridge over one Lua engine
// ---------------------------------------------------------------------------

// State owns the bridge's process-wide structures: the class descriptor
// table, the bidirectional class ↔ metatable maps, and the reference
// registry. Everything runs on the engine's single thread; there is no
// internal locking, and callers must not invoke bridge operations from
// other goroutines.
type State struct {
	// L is the embedded engine. The bridge treats its values as opaque
	// carriers and never interprets foreign tables or userdata.
	L *lua.LState

	ownsL bool

	classes   map[string]*Class
	classList []*Class
	mtByClass map[*Class]*lua.LTable
	classByMT map[*lua.LTable]*Class

	refs *RefRegistry

	// FatalHandlerErrors turns a signal handler error into a panic
	// instead of a logged diagnostic. Development aid.
	FatalHandlerErrors bool

	// TraceSignals holds class names whose emissions are logged.
	TraceSignals map[string]bool
}

// NewState creates a bridge over a fresh Lua state with the standard
// libraries opened. Close releases the engine.
func NewState() *State {
	s := Wrap(lua.NewState())
	s.ownsL = true
	return s
}

// Wrap builds a bridge over an engine the host already owns. Close will
// not release the engine in that case.
func Wrap(L *lua.LState) *State {
	return &State{
		L:         L,
		classes:   make(map[string]*Class),
		mtByClass: make(map[*Class]*lua.LTable),
		classByMT: make(map[*lua.LTable]*Class),
		refs:      newRefRegistry(),
	}
}

// Close shuts the bridge down, releasing the engine if this State
// created it.
func (s *State) Close() {
	if s.ownsL {
		s.L.Close()
	}
}
