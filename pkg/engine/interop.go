package engine

import (
	"fmt"
	"sync"

	"github.com/neonium/neond/pkg/util"
)

// InteropHandler implements one interop service; it runs with full access
// to the engine (gas, cache, container, notifications).
type InteropHandler func(e *ApplicationEngine) error

// InteropDescriptor is registered per named interop service.
type InteropDescriptor struct {
	Name          string
	Handler       InteropHandler
	FixedPrice    int64
	RequiredFlags CallFlags
}

// interopNameHash is the 4-byte SYSCALL operand: the first 4 bytes of
// SHA-256(name), matching the reference node's interop identifier scheme.
func interopNameHash(name string) uint32 {
	h := util.Sha256([]byte(name))
	return uint32(h[0]) | uint32(h[1])<<8 | uint32(h[2])<<16 | uint32(h[3])<<24
}

var (
	interopMu    sync.RWMutex
	interopTable = map[uint32]*InteropDescriptor{}
)

// RegisterInterop installs a named interop descriptor, keyed by its 4-byte
// name hash. Called from this package's init() functions for the System.*
// interops and from pkg/native's contract constructors (one-directional
// dependency: native imports engine, never the reverse).
func RegisterInterop(d InteropDescriptor) {
	interopMu.Lock()
	defer interopMu.Unlock()
	interopTable[interopNameHash(d.Name)] = &d
}

// LookupInterop resolves a decoded SYSCALL name hash.
func LookupInterop(hash uint32) (*InteropDescriptor, bool) {
	interopMu.RLock()
	defer interopMu.RUnlock()
	d, ok := interopTable[hash]
	return d, ok
}

// ErrNoPermission is the NoPermission fault: the current context's
// CallFlags don't carry an interop's required flags.
var ErrNoPermission = fmt.Errorf("engine: interop call lacks required CallFlags")

// ErrInsufficientGas is the InsufficientGas fault.
var ErrInsufficientGas = fmt.Errorf("engine: gas_consumed would exceed gas_limit")

// ErrUnknownInterop is raised when a SYSCALL name hash has no registered
// descriptor.
var ErrUnknownInterop = fmt.Errorf("engine: unknown interop name hash")
