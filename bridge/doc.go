// Package bridge implements the object model that exposes the host's
// native objects to the embedded Lua engine.
//
// This package contains:
//   - Class registration and runtime type recovery
//   - Per-class sorted property tables with inheritance
//   - The __index/__newindex dispatch layer
//   - The native/script reference registry
//   - Object and class level signals
//   - Instance construction and finalization
package bridge
