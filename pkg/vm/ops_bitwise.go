package vm

import "math/big"

func (v *VM) opBitwise(ctx *Context, op Opcode) error {
	if op == INVERT {
		a, err := popInt(ctx)
		if err != nil {
			return err
		}
		return v.push(ctx, NewInteger(new(big.Int).Not(a.v)))
	}
	b, err := popInt(ctx)
	if err != nil {
		return err
	}
	a, err := popInt(ctx)
	if err != nil {
		return err
	}
	var r big.Int
	switch op {
	case AND:
		r.And(a.v, b.v)
	case OR:
		r.Or(a.v, b.v)
	case XOR:
		r.Xor(a.v, b.v)
	}
	return v.push(ctx, NewInteger(&r))
}

func (v *VM) opEqual(ctx *Context, op Opcode) error {
	b, err := ctx.evalStack.Pop()
	if err != nil {
		return err
	}
	a, err := ctx.evalStack.Pop()
	if err != nil {
		return err
	}
	eq := a.Equals(b)
	if op == NOTEQUAL {
		eq = !eq
	}
	return v.push(ctx, Bool(eq))
}
