package engine

// CallFlags is the capability bitmask carried by each execution context,
// limiting which interop services it may call.
type CallFlags uint8

const (
	FlagNone        CallFlags = 0
	FlagReadStates  CallFlags = 0x01
	FlagWriteStates CallFlags = 0x02
	FlagAllowCall   CallFlags = 0x04
	FlagAllowNotify CallFlags = 0x08

	FlagStates   = FlagReadStates | FlagWriteStates
	FlagReadOnly = FlagReadStates | FlagAllowCall | FlagAllowNotify
	FlagAll      = FlagStates | FlagAllowCall | FlagAllowNotify
)

// Has reports whether f carries every bit in required.
func (f CallFlags) Has(required CallFlags) bool {
	return f&required == required
}
