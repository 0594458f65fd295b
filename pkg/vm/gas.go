package vm

import "sync"

// opcodeNames backs Opcode.String() and the cmd/neond opcodes dump.
var opcodeNames = map[Opcode]string{
	PUSHINT8: "PUSHINT8", PUSHINT16: "PUSHINT16", PUSHINT32: "PUSHINT32",
	PUSHINT64: "PUSHINT64", PUSHINT128: "PUSHINT128", PUSHINT256: "PUSHINT256",
	PUSHA: "PUSHA", PUSHNULL: "PUSHNULL", PUSHDATA1: "PUSHDATA1",
	PUSHDATA2: "PUSHDATA2", PUSHDATA4: "PUSHDATA4", PUSHM1: "PUSHM1",
	PUSH0: "PUSH0", PUSH1: "PUSH1", PUSH2: "PUSH2", PUSH3: "PUSH3",
	PUSH4: "PUSH4", PUSH5: "PUSH5", PUSH6: "PUSH6", PUSH7: "PUSH7",
	PUSH8: "PUSH8", PUSH9: "PUSH9", PUSH10: "PUSH10", PUSH11: "PUSH11",
	PUSH12: "PUSH12", PUSH13: "PUSH13", PUSH14: "PUSH14", PUSH15: "PUSH15",
	PUSH16: "PUSH16", NOP: "NOP", JMP: "JMP", JMP_L: "JMP_L", JMPIF: "JMPIF",
	JMPIF_L: "JMPIF_L", JMPIFNOT: "JMPIFNOT", JMPIFNOT_L: "JMPIFNOT_L",
	JMPEQ: "JMPEQ", JMPEQ_L: "JMPEQ_L", JMPNE: "JMPNE", JMPNE_L: "JMPNE_L",
	JMPGT: "JMPGT", JMPGT_L: "JMPGT_L", JMPGE: "JMPGE", JMPGE_L: "JMPGE_L",
	JMPLT: "JMPLT", JMPLT_L: "JMPLT_L", JMPLE: "JMPLE", JMPLE_L: "JMPLE_L",
	CALL: "CALL", CALL_L: "CALL_L", CALLA: "CALLA", CALLT: "CALLT",
	ABORT: "ABORT", ASSERT: "ASSERT", THROW: "THROW", TRY: "TRY", TRY_L: "TRY_L",
	ENDTRY: "ENDTRY", ENDTRY_L: "ENDTRY_L", ENDFINALLY: "ENDFINALLY", RET: "RET",
	SYSCALL: "SYSCALL", DEPTH: "DEPTH", DROP: "DROP", NIP: "NIP", XDROP: "XDROP",
	CLEAR: "CLEAR", DUP: "DUP", OVER: "OVER", PICK: "PICK", TUCK: "TUCK",
	SWAP: "SWAP", ROT: "ROT", ROLL: "ROLL", REVERSE3: "REVERSE3",
	REVERSE4: "REVERSE4", REVERSEN: "REVERSEN", INITSSLOT: "INITSSLOT",
	INITSLOT: "INITSLOT", LDSFLD0: "LDSFLD0", LDSFLD: "LDSFLD",
	STSFLD0: "STSFLD0", STSFLD: "STSFLD", LDLOC0: "LDLOC0", LDLOC: "LDLOC",
	STLOC0: "STLOC0", STLOC: "STLOC", LDARG0: "LDARG0", LDARG: "LDARG",
	STARG0: "STARG0", STARG: "STARG", NEWBUFFER: "NEWBUFFER", MEMCPY: "MEMCPY",
	CAT: "CAT", SUBSTR: "SUBSTR", LEFT: "LEFT", RIGHT: "RIGHT",
	INVERT: "INVERT", AND: "AND", OR: "OR", XOR: "XOR", EQUAL: "EQUAL",
	NOTEQUAL: "NOTEQUAL", SIGN: "SIGN", ABS: "ABS", NEGATE: "NEGATE",
	INC: "INC", DEC: "DEC", ADD: "ADD", SUB: "SUB", MUL: "MUL", DIV: "DIV",
	MOD: "MOD", POW: "POW", SQRT: "SQRT", MODMUL: "MODMUL", MODPOW: "MODPOW",
	SHL: "SHL", SHR: "SHR", NOT: "NOT", BOOLAND: "BOOLAND", BOOLOR: "BOOLOR",
	NZ: "NZ", NUMEQUAL: "NUMEQUAL", NUMNOTEQUAL: "NUMNOTEQUAL", LT: "LT",
	LE: "LE", GT: "GT", GE: "GE", MIN: "MIN", MAX: "MAX", WITHIN: "WITHIN",
	PACKMAP: "PACKMAP", PACKSTRUCT: "PACKSTRUCT", PACK: "PACK", UNPACK: "UNPACK",
	NEWARRAY0: "NEWARRAY0", NEWARRAY: "NEWARRAY", NEWARRAY_T: "NEWARRAY_T",
	NEWSTRUCT0: "NEWSTRUCT0", NEWSTRUCT: "NEWSTRUCT", NEWMAP: "NEWMAP",
	SIZE: "SIZE", HASKEY: "HASKEY", KEYS: "KEYS", VALUES: "VALUES",
	PICKITEM: "PICKITEM", APPEND: "APPEND", SETITEM: "SETITEM",
	REVERSEITEMS: "REVERSEITEMS", REMOVE: "REMOVE", CLEARITEMS: "CLEARITEMS",
	POPITEM: "POPITEM", ISNULL: "ISNULL", ISTYPE: "ISTYPE", CONVERT: "CONVERT",
}

// gasTable holds the per-opcode base price read by ApplicationEngine's
// metering loop. The values are self-consistent for this network; nodes on
// a shared network must carry identical tables or gas accounting diverges
// at the first block.
var (
	gasMu    sync.RWMutex
	gasTable = map[Opcode]int64{
		PUSHINT8: 1 << 0, PUSHINT16: 1 << 0, PUSHINT32: 1 << 0, PUSHINT64: 1 << 0,
		PUSHINT128: 1 << 2, PUSHINT256: 1 << 2, PUSHA: 1 << 2, PUSHNULL: 1 << 0,
		PUSHDATA1: 1 << 3, PUSHDATA2: 1 << 9, PUSHDATA4: 1 << 12, PUSHM1: 1 << 0,
		NOP: 1 << 0, JMP: 1 << 1, JMP_L: 1 << 1, JMPIF: 1 << 1, JMPIF_L: 1 << 1,
		JMPIFNOT: 1 << 1, JMPIFNOT_L: 1 << 1, CALL: 1 << 9, CALL_L: 1 << 9,
		CALLA: 1 << 9, ABORT: 0, ASSERT: 1 << 0, THROW: 1 << 9,
		TRY: 1 << 2, TRY_L: 1 << 2, ENDTRY: 1 << 2, ENDTRY_L: 1 << 2,
		ENDFINALLY: 1 << 2, RET: 0, SYSCALL: 0,
		DEPTH: 1 << 1, DROP: 1 << 1, NIP: 1 << 1, XDROP: 1 << 4, CLEAR: 1 << 4,
		DUP: 1 << 1, OVER: 1 << 1, PICK: 1 << 1, TUCK: 1 << 1, SWAP: 1 << 1,
		ROT: 1 << 1, ROLL: 1 << 4, REVERSE3: 1 << 1, REVERSE4: 1 << 1, REVERSEN: 1 << 4,
		INITSSLOT: 1 << 4, INITSLOT: 1 << 6, LDSFLD0: 1 << 1, LDSFLD: 1 << 1,
		STSFLD0: 1 << 1, STSFLD: 1 << 1, LDLOC0: 1 << 1, LDLOC: 1 << 1,
		STLOC0: 1 << 1, STLOC: 1 << 1, LDARG0: 1 << 1, LDARG: 1 << 1,
		STARG0: 1 << 1, STARG: 1 << 1,
		NEWBUFFER: 1 << 4, MEMCPY: 1 << 11, CAT: 1 << 11, SUBSTR: 1 << 11,
		LEFT: 1 << 11, RIGHT: 1 << 11,
		INVERT: 1 << 2, AND: 1 << 3, OR: 1 << 3, XOR: 1 << 3, EQUAL: 1 << 5,
		NOTEQUAL: 1 << 5,
		SIGN:     1 << 2, ABS: 1 << 2, NEGATE: 1 << 2, INC: 1 << 2, DEC: 1 << 2,
		ADD: 1 << 3, SUB: 1 << 3, MUL: 1 << 3, DIV: 1 << 3, MOD: 1 << 3,
		POW: 1 << 6, SQRT: 1 << 6, MODMUL: 1 << 5, MODPOW: 1 << 11,
		SHL: 1 << 3, SHR: 1 << 3, NOT: 1 << 2, BOOLAND: 1 << 3, BOOLOR: 1 << 3,
		NZ: 1 << 2, NUMEQUAL: 1 << 3, NUMNOTEQUAL: 1 << 3, LT: 1 << 3,
		LE: 1 << 3, GT: 1 << 3, GE: 1 << 3, MIN: 1 << 3, MAX: 1 << 3, WITHIN: 1 << 4,
		PACKMAP: 1 << 11, PACKSTRUCT: 1 << 11, PACK: 1 << 11, UNPACK: 1 << 11,
		NEWARRAY0: 1 << 4, NEWARRAY: 1 << 9, NEWARRAY_T: 1 << 9, NEWSTRUCT0: 1 << 4,
		NEWSTRUCT: 1 << 9, NEWMAP: 1 << 3,
		SIZE: 1 << 2, HASKEY: 1 << 6, KEYS: 1 << 4, VALUES: 1 << 13,
		PICKITEM: 1 << 6, APPEND: 1 << 13, SETITEM: 1 << 13, REVERSEITEMS: 1 << 13,
		REMOVE: 1 << 4, CLEARITEMS: 1 << 4, POPITEM: 1 << 4,
		ISNULL: 1 << 1, ISTYPE: 1 << 1, CONVERT: 1 << 13,
	}
	defaultGasCost int64 = 1 << 4
)

// GasCost returns the base execution price for op (before the engine's
// exec_fee_factor multiplier), falling back to defaultGasCost for any
// opcode not present in the table.
func GasCost(op Opcode) int64 {
	gasMu.RLock()
	defer gasMu.RUnlock()
	if v, ok := gasTable[op]; ok {
		return v
	}
	return defaultGasCost
}
