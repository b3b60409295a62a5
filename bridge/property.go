package bridge

import (
	"fmt"
	"sort"

	lua "github.com/yuin/gopher-lua"
)

// ---------------------------------------------------------------------------
// Property: one named attribute of a class
// ---------------------------------------------------------------------------

// PropertyGetter produces the script value of a property. A nil getter on
// a registered property makes it write-only: reads answer nothing rather
// than erroring.
type PropertyGetter func(s *State, obj Instance) lua.LValue

// PropertySetter stores a script value into a property. Used both for
// construction-time initialization and for ordinary writes.
type PropertySetter func(s *State, obj Instance, value lua.LValue)

// Property describes one attribute of a class. All callbacks are
// optional; registered once at class-setup time and immutable afterward.
type Property struct {
	Name string
	Init PropertySetter // applied from the initializer table at construction
	Get  PropertyGetter // read dispatch
	Set  PropertySetter // write dispatch
}

// AddProperty inserts a property into c's sorted table. Property names
// are unique within one class but may shadow same-named properties of
// ancestors (the child wins for its own instances).
func (s *State) AddProperty(c *Class, name string, init PropertySetter, get PropertyGetter, set PropertySetter) {
	i := sort.Search(len(c.properties), func(i int) bool {
		return c.properties[i].Name >= name
	})
	if i < len(c.properties) && c.properties[i].Name == name {
		panic(fmt.Sprintf("bridge: class %q property %q registered twice", c.Name, name))
	}
	p := &Property{Name: name, Init: init, Get: get, Set: set}
	c.properties = append(c.properties, nil)
	copy(c.properties[i+1:], c.properties[i:])
	c.properties[i] = p
}

// property finds a property in this class only, by binary search.
func (c *Class) property(name string) *Property {
	i := sort.Search(len(c.properties), func(i int) bool {
		return c.properties[i].Name >= name
	})
	if i < len(c.properties) && c.properties[i].Name == name {
		return c.properties[i]
	}
	return nil
}

// lookupProperty finds a property on c or the nearest ancestor that
// defines it.
func (c *Class) lookupProperty(name string) *Property {
	for cur := c; cur != nil; cur = cur.Parent {
		if p := cur.property(name); p != nil {
			return p
		}
	}
	return nil
}

// PropertyNames returns the names registered directly on c, sorted.
func (c *Class) PropertyNames() []string {
	names := make([]string, len(c.properties))
	for i, p := range c.properties {
		names[i] = p.Name
	}
	return names
}
