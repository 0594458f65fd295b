package vm

import "math/big"

func (v *VM) opIsNull(ctx *Context) error {
	i, err := ctx.evalStack.Pop()
	if err != nil {
		return err
	}
	_, isNull := i.(Null)
	return v.push(ctx, Bool(isNull))
}

func (v *VM) opIsType(ctx *Context) error {
	b, err := v.readU8(ctx)
	if err != nil {
		return err
	}
	i, err := ctx.evalStack.Pop()
	if err != nil {
		return err
	}
	return v.push(ctx, Bool(i.Type() == Type(b)))
}

func (v *VM) opConvert(ctx *Context) error {
	b, err := v.readU8(ctx)
	if err != nil {
		return err
	}
	i, err := ctx.evalStack.Pop()
	if err != nil {
		return err
	}
	out, err := convert(i, Type(b))
	if err != nil {
		return err
	}
	return v.push(ctx, out)
}

func convert(i Item, t Type) (Item, error) {
	if i.Type() == t {
		return i, nil
	}
	switch t {
	case TypeBoolean:
		return Bool(i.Bool()), nil
	case TypeInteger:
		switch v := i.(type) {
		case Bool:
			if v {
				return NewIntegerInt64(1), nil
			}
			return NewIntegerInt64(0), nil
		case ByteString:
			return NewInteger(intToBig(v)), nil
		case *Buffer:
			return NewInteger(intToBig(v.Data)), nil
		}
	case TypeByteString:
		switch v := i.(type) {
		case Integer:
			return ByteString(bigToBytes(v.v)), nil
		case *Buffer:
			cp := make([]byte, len(v.Data))
			copy(cp, v.Data)
			return ByteString(cp), nil
		case Bool:
			if v {
				return ByteString{1}, nil
			}
			return ByteString{}, nil
		}
	case TypeBuffer:
		switch v := i.(type) {
		case ByteString:
			return &Buffer{Data: append([]byte(nil), v...)}, nil
		}
	}
	return nil, ErrInvalidConversion
}

// bigToBytes renders v as NeoVM's two's-complement little-endian minimal
// encoding, the inverse of intToBig.
func bigToBytes(v *big.Int) []byte {
	if v.Sign() == 0 {
		return nil
	}
	neg := v.Sign() < 0
	abs := new(big.Int).Abs(v)
	be := abs.Bytes()
	// Ensure a leading zero when the MSB already set and value is positive,
	// so the two's-complement sign bit doesn't misread the magnitude.
	if !neg && len(be) > 0 && be[0]&0x80 != 0 {
		be = append([]byte{0}, be...)
	}
	if neg {
		mod := new(big.Int).Lsh(big.NewInt(1), uint(len(be)*8))
		tc := new(big.Int).Add(mod, v)
		be = tc.Bytes()
		if len(be) == 0 || be[0]&0x80 == 0 {
			be = append([]byte{0xFF}, be...)
		}
	}
	// Reverse to little-endian.
	out := make([]byte, len(be))
	for i, c := range be {
		out[len(be)-1-i] = c
	}
	return out
}
