package vm

func bytesOf(i Item) ([]byte, bool) {
	switch v := i.(type) {
	case ByteString:
		return []byte(v), true
	case *Buffer:
		return v.Data, true
	default:
		return nil, false
	}
}

func (v *VM) opNewBuffer(ctx *Context) error {
	n, err := popUintIndex(ctx)
	if err != nil {
		return err
	}
	return v.push(ctx, NewBuffer(n))
}

func (v *VM) opMemcpy(ctx *Context) error {
	count, err := popUintIndex(ctx)
	if err != nil {
		return err
	}
	srcIdx, err := popUintIndex(ctx)
	if err != nil {
		return err
	}
	srcI, err := ctx.evalStack.Pop()
	if err != nil {
		return err
	}
	src, ok := bytesOf(srcI)
	if !ok {
		return ErrTypeMismatch
	}
	dstIdx, err := popUintIndex(ctx)
	if err != nil {
		return err
	}
	dstI, err := ctx.evalStack.Pop()
	if err != nil {
		return err
	}
	dst, ok := dstI.(*Buffer)
	if !ok {
		return ErrTypeMismatch
	}
	if srcIdx+count > len(src) || dstIdx+count > len(dst.Data) {
		return ErrItemTooLarge
	}
	copy(dst.Data[dstIdx:dstIdx+count], src[srcIdx:srcIdx+count])
	return nil
}

func (v *VM) opCat(ctx *Context) error {
	bi, err := ctx.evalStack.Pop()
	if err != nil {
		return err
	}
	ai, err := ctx.evalStack.Pop()
	if err != nil {
		return err
	}
	a, ok1 := bytesOf(ai)
	b, ok2 := bytesOf(bi)
	if !ok1 || !ok2 {
		return ErrTypeMismatch
	}
	out := make([]byte, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	return v.push(ctx, &Buffer{Data: out})
}

func (v *VM) opSubstr(ctx *Context) error {
	count, err := popUintIndex(ctx)
	if err != nil {
		return err
	}
	idx, err := popUintIndex(ctx)
	if err != nil {
		return err
	}
	i, err := ctx.evalStack.Pop()
	if err != nil {
		return err
	}
	b, ok := bytesOf(i)
	if !ok {
		return ErrTypeMismatch
	}
	if idx+count > len(b) {
		return ErrItemTooLarge
	}
	out := make([]byte, count)
	copy(out, b[idx:idx+count])
	return v.push(ctx, &Buffer{Data: out})
}

func (v *VM) opLeft(ctx *Context) error {
	count, err := popUintIndex(ctx)
	if err != nil {
		return err
	}
	i, err := ctx.evalStack.Pop()
	if err != nil {
		return err
	}
	b, ok := bytesOf(i)
	if !ok || count > len(b) {
		return ErrTypeMismatch
	}
	out := make([]byte, count)
	copy(out, b[:count])
	return v.push(ctx, &Buffer{Data: out})
}

func (v *VM) opRight(ctx *Context) error {
	count, err := popUintIndex(ctx)
	if err != nil {
		return err
	}
	i, err := ctx.evalStack.Pop()
	if err != nil {
		return err
	}
	b, ok := bytesOf(i)
	if !ok || count > len(b) {
		return ErrTypeMismatch
	}
	out := make([]byte, count)
	copy(out, b[len(b)-count:])
	return v.push(ctx, &Buffer{Data: out})
}
