// corvid-rc - evaluates host rc scripts against the scripting bridge
//
// This is the script-side entry point of the host: it loads corvid.toml,
// boots a bridge state with a demonstration timer class registered, and
// runs the configured rc scripts plus any given on the command line.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"

	"github.com/tliron/commonlog"
	lua "github.com/yuin/gopher-lua"

	"github.com/corvid-wm/corvid/bridge"
	"github.com/corvid-wm/corvid/manifest"

	_ "github.com/tliron/commonlog/simple"
)

func main() {
	verbosity := flag.Int("v", 0, "Log verbosity (0 = errors and warnings only)")
	configDir := flag.String("C", ".", "Directory to search for corvid.toml")
	noRC := flag.Bool("no-rc", false, "Skip scripts configured in corvid.toml")
	dump := flag.Bool("dump", false, "Print a CBOR state snapshot (hex) after the run")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: corvid-rc [options] [scripts...]\n\n")
		fmt.Fprintf(os.Stderr, "Runs Lua rc scripts against the corvid scripting bridge.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  corvid-rc                  # Run scripts from corvid.toml\n")
		fmt.Fprintf(os.Stderr, "  corvid-rc -no-rc test.lua  # Run only test.lua\n")
		fmt.Fprintf(os.Stderr, "  corvid-rc -dump rc.lua     # Run rc.lua, then dump bridge state\n")
	}
	flag.Parse()

	m, err := manifest.FindAndLoad(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading corvid.toml: %v\n", err)
		os.Exit(1)
	}
	if m != nil && *verbosity == 0 {
		*verbosity = m.Logging.Verbosity
	}
	commonlog.Configure(*verbosity, nil)

	s := bridge.NewState()
	defer s.Close()
	if m != nil {
		s.FatalHandlerErrors = m.Debug.FatalHandlerErrors
		if len(m.Debug.TraceSignals) > 0 {
			s.TraceSignals = make(map[string]bool, len(m.Debug.TraceSignals))
			for _, name := range m.Debug.TraceSignals {
				s.TraceSignals[name] = true
			}
		}
	}

	registerTimerClass(s)

	var scripts []string
	if m != nil && !*noRC {
		scripts = append(scripts, m.ScriptPaths()...)
	}
	scripts = append(scripts, flag.Args()...)

	for _, path := range scripts {
		if err := s.L.DoFile(path); err != nil {
			fmt.Fprintf(os.Stderr, "Error in %s: %v\n", path, err)
			os.Exit(1)
		}
	}

	if *dump || (m != nil && m.Debug.DumpOnExit) {
		data, err := bridge.MarshalSnapshot(s.Snapshot())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error encoding snapshot: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(hex.EncodeToString(data))
	}
}

// timer is the demonstration class: a one-shot native object with a
// timeout property and start/stop methods that emit signals.
type timer struct {
	bridge.Object
	timeout float64
	started bool
}

func registerTimerClass(s *bridge.State) {
	cls := s.RegisterClass(bridge.ClassSpec{
		Name: "timer",
		Allocate: func(s *bridge.State) bridge.Instance {
			return &timer{}
		},
		Collect: func(s *bridge.State, obj bridge.Instance) {
			obj.(*timer).started = false
		},
		Methods: map[string]lua.LGFunction{
			"start": func(L *lua.LState) int {
				tm := checkTimer(s, 1)
				tm.started = true
				s.Emit(tm, "start")
				return 0
			},
			"stop": func(L *lua.LState) int {
				tm := checkTimer(s, 1)
				tm.started = false
				s.Emit(tm, "stop")
				return 0
			},
		},
	})

	s.AddProperty(cls, "timeout",
		func(s *bridge.State, obj bridge.Instance, v lua.LValue) {
			obj.(*timer).timeout = float64(lua.LVAsNumber(v))
		},
		func(s *bridge.State, obj bridge.Instance) lua.LValue {
			return lua.LNumber(obj.(*timer).timeout)
		},
		func(s *bridge.State, obj bridge.Instance, v lua.LValue) {
			tm := obj.(*timer)
			tm.timeout = float64(lua.LVAsNumber(v))
			s.Emit(tm, "property::timeout")
		})
	s.AddProperty(cls, "started", nil,
		func(s *bridge.State, obj bridge.Instance) lua.LValue {
			return lua.LBool(obj.(*timer).started)
		}, nil)

	// Global constructor: timer{ timeout = 5 }
	s.L.SetGlobal("timer", s.L.NewFunction(func(L *lua.LState) int {
		init := L.OptTable(1, nil)
		obj := s.NewInstance(cls, init)
		L.Push(obj.(*timer).Handle())
		return 1
	}))
}

func checkTimer(s *bridge.State, n int) *timer {
	return s.CheckInstance(n, s.LookupClass("timer")).(*timer)
}
