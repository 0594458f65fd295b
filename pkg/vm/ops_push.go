package vm

func (v *VM) opPushInt(ctx *Context, op Opcode) error {
	n := 1 << uint(op-PUSHINT8)
	b, err := v.readOperand(ctx, n)
	if err != nil {
		return err
	}
	return v.push(ctx, NewInteger(intToBig(b)))
}

func (v *VM) opPushA(ctx *Context) error {
	off, err := v.readI32(ctx)
	if err != nil {
		return err
	}
	target := ctx.IP - 5 + int(off) // offset is relative to the opcode position
	return v.push(ctx, Pointer{Position: target})
}

func (v *VM) opPushData(ctx *Context, lenBytes int) error {
	var n int
	switch lenBytes {
	case 1:
		b, err := v.readU8(ctx)
		if err != nil {
			return err
		}
		n = int(b)
	case 2:
		b, err := v.readU16(ctx)
		if err != nil {
			return err
		}
		n = int(b)
	case 4:
		b, err := v.readI32(ctx)
		if err != nil {
			return err
		}
		if b < 0 {
			return ErrScriptOutOfBounds
		}
		n = int(b)
	}
	data, err := v.readOperand(ctx, n)
	if err != nil {
		return err
	}
	cp := make([]byte, n)
	copy(cp, data)
	return v.push(ctx, ByteString(cp))
}
