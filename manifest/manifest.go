// Package manifest handles corvid.toml host configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Manifest represents a corvid.toml host configuration.
type Manifest struct {
	Host    Host    `toml:"host"`
	Scripts Scripts `toml:"scripts"`
	Logging Logging `toml:"logging"`
	Debug   Debug   `toml:"debug"`

	// Dir is the directory containing the corvid.toml file (set at load time).
	Dir string `toml:"-"`
}

// Host contains host metadata.
type Host struct {
	Name string `toml:"name"`
}

// Scripts configures rc script locations.
type Scripts struct {
	// Dirs are searched, in order, for rc scripts named in Entries.
	Dirs    []string `toml:"dirs"`
	Entries []string `toml:"entries"`
}

// Logging configures the diagnostic sink.
type Logging struct {
	// Verbosity maps onto commonlog verbosity: 0 is errors and warnings
	// only, higher values add notice/info/debug.
	Verbosity int `toml:"verbosity"`
}

// Debug configures development aids.
type Debug struct {
	// DumpOnExit prints a CBOR state snapshot when the host shuts down.
	DumpOnExit bool `toml:"dump-on-exit"`

	// FatalHandlerErrors aborts on the first signal handler error
	// instead of reporting it and carrying on. Development only.
	FatalHandlerErrors bool `toml:"fatal-handler-errors"`

	// TraceSignals lists class names whose signal emissions are logged.
	TraceSignals []string `toml:"trace-signals"`
}

// Load parses a corvid.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, "corvid.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	// Defaults
	if len(m.Scripts.Dirs) == 0 {
		m.Scripts.Dirs = []string{"rc"}
	}
	if len(m.Scripts.Entries) == 0 {
		m.Scripts.Entries = []string{"rc.lua"}
	}

	return &m, nil
}

// FindAndLoad walks up from startDir to find a corvid.toml file, then
// loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, "corvid.toml")
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// ScriptPaths returns the absolute path of every configured rc script
// that exists, searching the script dirs in order.
func (m *Manifest) ScriptPaths() []string {
	var paths []string
	for _, entry := range m.Scripts.Entries {
		for _, d := range m.Scripts.Dirs {
			p := filepath.Join(m.Dir, d, entry)
			if _, err := os.Stat(p); err == nil {
				paths = append(paths, p)
				break
			}
		}
	}
	return paths
}
