package vm

// dispatch routes a decoded opcode to its handler: one big switch over the
// dense byte opcode space (no sparse table needed — every opcode is known
// at compile time).
func (v *VM) dispatch(ctx *Context, op Opcode) error {
	switch {
	case op >= PUSHINT8 && op <= PUSHINT256:
		return v.opPushInt(ctx, op)
	case op >= PUSH0 && op <= PUSH16:
		return v.push(ctx, NewIntegerInt64(int64(op)-int64(PUSH0)))
	}

	switch op {
	case PUSHA:
		return v.opPushA(ctx)
	case PUSHNULL:
		return v.push(ctx, Null{})
	case PUSHDATA1:
		return v.opPushData(ctx, 1)
	case PUSHDATA2:
		return v.opPushData(ctx, 2)
	case PUSHDATA4:
		return v.opPushData(ctx, 4)
	case PUSHM1:
		return v.push(ctx, NewIntegerInt64(-1))
	case NOP:
		return nil

	case JMP, JMP_L, JMPIF, JMPIF_L, JMPIFNOT, JMPIFNOT_L,
		JMPEQ, JMPEQ_L, JMPNE, JMPNE_L, JMPGT, JMPGT_L, JMPGE, JMPGE_L,
		JMPLT, JMPLT_L, JMPLE, JMPLE_L:
		return v.opJump(ctx, op)
	case CALL, CALL_L:
		return v.opCall(ctx, op)
	case CALLA:
		return v.opCallA(ctx)
	case ABORT:
		return ErrThrown
	case ASSERT:
		return v.opAssert(ctx)
	case THROW:
		return v.opThrow(ctx)
	case TRY, TRY_L:
		return v.opTry(ctx, op)
	case ENDTRY, ENDTRY_L:
		return v.opEndTry(ctx, op)
	case ENDFINALLY:
		return v.opEndFinally(ctx)
	case RET:
		return v.opRet(ctx)
	case SYSCALL:
		return v.opSyscall(ctx)

	case DEPTH:
		return v.push(ctx, NewIntegerInt64(int64(ctx.evalStack.Len())))
	case DROP:
		_, err := ctx.evalStack.Pop()
		return err
	case NIP:
		_, err := ctx.evalStack.Remove(1)
		return err
	case XDROP:
		return v.opXDrop(ctx)
	case CLEAR:
		ctx.evalStack.Clear()
		return nil
	case DUP:
		return v.opDup(ctx)
	case OVER:
		i, err := ctx.evalStack.Peek(1)
		if err != nil {
			return err
		}
		return v.push(ctx, i)
	case PICK:
		return v.opPick(ctx)
	case TUCK:
		return v.opTuck(ctx)
	case SWAP:
		return v.opRoll(ctx, 1)
	case ROT:
		return v.opRoll(ctx, 2)
	case ROLL:
		return v.opRollDyn(ctx)
	case REVERSE3:
		return v.opReverseN(ctx, 3)
	case REVERSE4:
		return v.opReverseN(ctx, 4)
	case REVERSEN:
		return v.opReverseNDyn(ctx)

	case INITSSLOT:
		n, err := v.readU8(ctx)
		if err != nil {
			return err
		}
		ctx.initStatics(int(n))
		return nil
	case INITSLOT:
		locals, err := v.readU8(ctx)
		if err != nil {
			return err
		}
		args, err := v.readU8(ctx)
		if err != nil {
			return err
		}
		ctx.initLocalsArgs(int(locals), int(args))
		return nil
	case LDSFLD0, LDSFLD:
		return v.opLoadSlot(ctx, op, LDSFLD0, LDSFLD, ctx.statics)
	case STSFLD0, STSFLD:
		return v.opStoreSlot(ctx, op, STSFLD0, STSFLD, ctx.statics)
	case LDLOC0, LDLOC:
		return v.opLoadSlot(ctx, op, LDLOC0, LDLOC, ctx.locals)
	case STLOC0, STLOC:
		return v.opStoreSlot(ctx, op, STLOC0, STLOC, ctx.locals)
	case LDARG0, LDARG:
		return v.opLoadSlot(ctx, op, LDARG0, LDARG, ctx.args)
	case STARG0, STARG:
		return v.opStoreSlot(ctx, op, STARG0, STARG, ctx.args)

	case NEWBUFFER:
		return v.opNewBuffer(ctx)
	case MEMCPY:
		return v.opMemcpy(ctx)
	case CAT:
		return v.opCat(ctx)
	case SUBSTR:
		return v.opSubstr(ctx)
	case LEFT:
		return v.opLeft(ctx)
	case RIGHT:
		return v.opRight(ctx)

	case INVERT, AND, OR, XOR:
		return v.opBitwise(ctx, op)
	case EQUAL, NOTEQUAL:
		return v.opEqual(ctx, op)

	case SIGN, ABS, NEGATE, INC, DEC, NOT, NZ, SQRT:
		return v.opUnaryArith(ctx, op)
	case ADD, SUB, MUL, DIV, MOD, POW, SHL, SHR, BOOLAND, BOOLOR,
		NUMEQUAL, NUMNOTEQUAL, LT, LE, GT, GE, MIN, MAX:
		return v.opBinaryArith(ctx, op)
	case MODMUL:
		return v.opModMul(ctx)
	case MODPOW:
		return v.opModPow(ctx)
	case WITHIN:
		return v.opWithin(ctx)

	case PACKMAP:
		return v.opPackMap(ctx)
	case PACKSTRUCT:
		return v.opPackStruct(ctx)
	case PACK:
		return v.opPack(ctx)
	case UNPACK:
		return v.opUnpack(ctx)
	case NEWARRAY0:
		return v.push(ctx, NewArray(nil))
	case NEWARRAY, NEWARRAY_T:
		return v.opNewArray(ctx)
	case NEWSTRUCT0:
		return v.push(ctx, NewStruct(nil))
	case NEWSTRUCT:
		return v.opNewStruct(ctx)
	case NEWMAP:
		return v.push(ctx, NewMap())
	case SIZE:
		return v.opSize(ctx)
	case HASKEY:
		return v.opHasKey(ctx)
	case KEYS:
		return v.opKeys(ctx)
	case VALUES:
		return v.opValues(ctx)
	case PICKITEM:
		return v.opPickItem(ctx)
	case APPEND:
		return v.opAppend(ctx)
	case SETITEM:
		return v.opSetItem(ctx)
	case REVERSEITEMS:
		return v.opReverseItems(ctx)
	case REMOVE:
		return v.opRemove(ctx)
	case CLEARITEMS:
		return v.opClearItems(ctx)
	case POPITEM:
		return v.opPopItem(ctx)

	case ISNULL:
		return v.opIsNull(ctx)
	case ISTYPE:
		return v.opIsType(ctx)
	case CONVERT:
		return v.opConvert(ctx)
	}
	return fmtOpErr(op, ErrInvalidOpcode)
}
