package vm

import "math/big"

func (v *VM) opUnaryArith(ctx *Context, op Opcode) error {
	a, err := popInt(ctx)
	if err != nil {
		return err
	}
	switch op {
	case SIGN:
		return v.push(ctx, NewIntegerInt64(int64(a.v.Sign())))
	case ABS:
		return v.push(ctx, NewInteger(new(big.Int).Abs(a.v)))
	case NEGATE:
		return v.push(ctx, NewInteger(new(big.Int).Neg(a.v)))
	case INC:
		return v.push(ctx, NewInteger(new(big.Int).Add(a.v, big.NewInt(1))))
	case DEC:
		return v.push(ctx, NewInteger(new(big.Int).Sub(a.v, big.NewInt(1))))
	case NOT:
		return v.push(ctx, Bool(!a.Bool()))
	case NZ:
		return v.push(ctx, Bool(a.v.Sign() != 0))
	case SQRT:
		if a.v.Sign() < 0 {
			return ErrTypeMismatch
		}
		return v.push(ctx, NewInteger(new(big.Int).Sqrt(a.v)))
	}
	return ErrInvalidOpcode
}

func (v *VM) opBinaryArith(ctx *Context, op Opcode) error {
	switch op {
	case BOOLAND, BOOLOR:
		b, err := ctx.evalStack.Pop()
		if err != nil {
			return err
		}
		a, err := ctx.evalStack.Pop()
		if err != nil {
			return err
		}
		if op == BOOLAND {
			return v.push(ctx, Bool(a.Bool() && b.Bool()))
		}
		return v.push(ctx, Bool(a.Bool() || b.Bool()))
	}
	b, err := popInt(ctx)
	if err != nil {
		return err
	}
	a, err := popInt(ctx)
	if err != nil {
		return err
	}
	switch op {
	case ADD:
		return v.push(ctx, AddInteger(a, b))
	case SUB:
		return v.push(ctx, NewInteger(new(big.Int).Sub(a.v, b.v)))
	case MUL:
		return v.push(ctx, NewInteger(new(big.Int).Mul(a.v, b.v)))
	case DIV:
		if b.v.Sign() == 0 {
			return ErrDivideByZero
		}
		return v.push(ctx, NewInteger(new(big.Int).Quo(a.v, b.v)))
	case MOD:
		if b.v.Sign() == 0 {
			return ErrDivideByZero
		}
		return v.push(ctx, NewInteger(new(big.Int).Rem(a.v, b.v)))
	case POW:
		if !b.v.IsInt64() || b.v.Sign() < 0 {
			return ErrTypeMismatch
		}
		return v.push(ctx, NewInteger(new(big.Int).Exp(a.v, b.v, nil)))
	case SHL:
		if !b.v.IsUint64() {
			return ErrTypeMismatch
		}
		return v.push(ctx, NewInteger(new(big.Int).Lsh(a.v, uint(b.v.Uint64()))))
	case SHR:
		if !b.v.IsUint64() {
			return ErrTypeMismatch
		}
		return v.push(ctx, NewInteger(new(big.Int).Rsh(a.v, uint(b.v.Uint64()))))
	case NUMEQUAL:
		return v.push(ctx, Bool(a.v.Cmp(b.v) == 0))
	case NUMNOTEQUAL:
		return v.push(ctx, Bool(a.v.Cmp(b.v) != 0))
	case LT:
		return v.push(ctx, Bool(a.v.Cmp(b.v) < 0))
	case LE:
		return v.push(ctx, Bool(a.v.Cmp(b.v) <= 0))
	case GT:
		return v.push(ctx, Bool(a.v.Cmp(b.v) > 0))
	case GE:
		return v.push(ctx, Bool(a.v.Cmp(b.v) >= 0))
	case MIN:
		if a.v.Cmp(b.v) <= 0 {
			return v.push(ctx, a)
		}
		return v.push(ctx, b)
	case MAX:
		if a.v.Cmp(b.v) >= 0 {
			return v.push(ctx, a)
		}
		return v.push(ctx, b)
	}
	return ErrInvalidOpcode
}

func (v *VM) opModMul(ctx *Context) error {
	m, err := popInt(ctx)
	if err != nil {
		return err
	}
	b, err := popInt(ctx)
	if err != nil {
		return err
	}
	a, err := popInt(ctx)
	if err != nil {
		return err
	}
	if m.v.Sign() == 0 {
		return ErrDivideByZero
	}
	r := new(big.Int).Mul(a.v, b.v)
	r.Mod(r, m.v)
	return v.push(ctx, NewInteger(r))
}

func (v *VM) opModPow(ctx *Context) error {
	m, err := popInt(ctx)
	if err != nil {
		return err
	}
	e, err := popInt(ctx)
	if err != nil {
		return err
	}
	a, err := popInt(ctx)
	if err != nil {
		return err
	}
	if m.v.Sign() == 0 {
		return ErrDivideByZero
	}
	r := new(big.Int).Exp(a.v, e.v, m.v)
	return v.push(ctx, NewInteger(r))
}

func (v *VM) opWithin(ctx *Context) error {
	b, err := popInt(ctx)
	if err != nil {
		return err
	}
	a, err := popInt(ctx)
	if err != nil {
		return err
	}
	x, err := popInt(ctx)
	if err != nil {
		return err
	}
	return v.push(ctx, Bool(x.v.Cmp(a.v) >= 0 && x.v.Cmp(b.v) < 0))
}
