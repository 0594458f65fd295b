package vm

// Limits bounds VM execution. Breaching
// any of them faults the VM.
type Limits struct {
	MaxInvocationStackDepth int
	MaxStackSize            int // total item count across all stacks
	MaxItemSize             int // bytes, single item (ByteString/Buffer)
	MaxScriptLength         int
}

// DefaultLimits mirrors the reference node's production defaults.
func DefaultLimits() Limits {
	return Limits{
		MaxInvocationStackDepth: 1024,
		MaxStackSize:            2048,
		MaxItemSize:             1024 * 1024,
		MaxScriptLength:         1024 * 1024,
	}
}
