package bridge

import (
	"fmt"
	"sort"

	"github.com/fxamacker/cbor/v2"
)

// ---------------------------------------------------------------------------
// Snapshot: a deterministic dump of the bridge's state
// ---------------------------------------------------------------------------

// cborEncMode uses canonical encoding so two snapshots of the same state
// are byte-identical and diff cleanly.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("bridge: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// SignalDigest summarizes one signal entry.
type SignalDigest struct {
	Name     string `cbor:"name"`
	Handlers int    `cbor:"handlers"`
}

// ClassDigest summarizes one registered class.
type ClassDigest struct {
	Name       string         `cbor:"name"`
	Parent     string         `cbor:"parent,omitempty"`
	Instances  int            `cbor:"instances"`
	Properties []string       `cbor:"properties,omitempty"`
	Signals    []SignalDigest `cbor:"signals,omitempty"`
}

// Snapshot captures the observable state of a bridge: every class with
// its live-instance count, property names and class-level signal fan-out,
// plus the size of the reference registry.
type Snapshot struct {
	Classes []ClassDigest `cbor:"classes"`
	Refs    int           `cbor:"refs"`
}

// Snapshot builds a snapshot of the current bridge state. Classes are
// ordered by name and signals by name, independent of registration and
// connection history.
func (s *State) Snapshot() *Snapshot {
	snap := &Snapshot{
		Classes: make([]ClassDigest, 0, len(s.classList)),
		Refs:    s.refs.Size(),
	}
	for _, c := range s.classList {
		d := ClassDigest{
			Name:       c.Name,
			Instances:  c.instances,
			Properties: c.PropertyNames(),
		}
		if c.Parent != nil {
			d.Parent = c.Parent.Name
		}
		for _, name := range c.signals.Names() {
			d.Signals = append(d.Signals, SignalDigest{
				Name:     name,
				Handlers: c.signals.HandlerCount(name),
			})
		}
		sort.Slice(d.Signals, func(i, j int) bool {
			return d.Signals[i].Name < d.Signals[j].Name
		})
		snap.Classes = append(snap.Classes, d)
	}
	sort.Slice(snap.Classes, func(i, j int) bool {
		return snap.Classes[i].Name < snap.Classes[j].Name
	})
	return snap
}

// MarshalSnapshot serializes a Snapshot to canonical CBOR bytes.
func MarshalSnapshot(snap *Snapshot) ([]byte, error) {
	return cborEncMode.Marshal(snap)
}

// UnmarshalSnapshot deserializes a Snapshot from CBOR bytes.
func UnmarshalSnapshot(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := cbor.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("bridge: unmarshal snapshot: %w", err)
	}
	return &snap, nil
}
