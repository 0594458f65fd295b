package vm

func (v *VM) opPack(ctx *Context) error {
	n, err := popUintIndex(ctx)
	if err != nil {
		return err
	}
	items := make([]Item, n)
	for i := 0; i < n; i++ {
		it, err := ctx.evalStack.Pop()
		if err != nil {
			return err
		}
		items[i] = it
	}
	return v.push(ctx, NewArray(items))
}

func (v *VM) opUnpack(ctx *Context) error {
	i, err := ctx.evalStack.Pop()
	if err != nil {
		return err
	}
	items, err := itemsOf(i)
	if err != nil {
		return err
	}
	for i := 0; i < len(items); i++ {
		if err := v.push(ctx, items[i]); err != nil {
			return err
		}
	}
	return v.push(ctx, NewIntegerInt64(int64(len(items))))
}

func (v *VM) opPackStruct(ctx *Context) error {
	n, err := popUintIndex(ctx)
	if err != nil {
		return err
	}
	items := make([]Item, n)
	for i := 0; i < n; i++ {
		it, err := ctx.evalStack.Pop()
		if err != nil {
			return err
		}
		items[i] = it
	}
	return v.push(ctx, NewStruct(items))
}

func (v *VM) opPackMap(ctx *Context) error {
	n, err := popUintIndex(ctx)
	if err != nil {
		return err
	}
	m := NewMap()
	for i := 0; i < n; i++ {
		val, err := ctx.evalStack.Pop()
		if err != nil {
			return err
		}
		key, err := ctx.evalStack.Pop()
		if err != nil {
			return err
		}
		if err := m.Set(key, val); err != nil {
			return err
		}
	}
	return v.push(ctx, m)
}

func (v *VM) opNewArray(ctx *Context) error {
	n, err := popUintIndex(ctx)
	if err != nil {
		return err
	}
	items := make([]Item, n)
	for i := range items {
		items[i] = Null{}
	}
	return v.push(ctx, NewArray(items))
}

func (v *VM) opNewStruct(ctx *Context) error {
	n, err := popUintIndex(ctx)
	if err != nil {
		return err
	}
	items := make([]Item, n)
	for i := range items {
		items[i] = Null{}
	}
	return v.push(ctx, NewStruct(items))
}

func (v *VM) opSize(ctx *Context) error {
	i, err := ctx.evalStack.Pop()
	if err != nil {
		return err
	}
	switch it := i.(type) {
	case ByteString:
		return v.push(ctx, NewIntegerInt64(int64(len(it))))
	case *Buffer:
		return v.push(ctx, NewIntegerInt64(int64(len(it.Data))))
	case *Array:
		return v.push(ctx, NewIntegerInt64(int64(len(it.Items))))
	case *Struct:
		return v.push(ctx, NewIntegerInt64(int64(len(it.Items))))
	case *Map:
		return v.push(ctx, NewIntegerInt64(int64(it.Len())))
	default:
		return ErrTypeMismatch
	}
}

func (v *VM) opHasKey(ctx *Context) error {
	keyI, err := ctx.evalStack.Pop()
	if err != nil {
		return err
	}
	i, err := ctx.evalStack.Pop()
	if err != nil {
		return err
	}
	switch it := i.(type) {
	case *Map:
		_, ok, err := it.Get(keyI)
		if err != nil {
			return err
		}
		return v.push(ctx, Bool(ok))
	case *Array:
		idx, err := indexOfItem(keyI)
		if err != nil {
			return err
		}
		return v.push(ctx, Bool(idx >= 0 && idx < len(it.Items)))
	case *Struct:
		idx, err := indexOfItem(keyI)
		if err != nil {
			return err
		}
		return v.push(ctx, Bool(idx >= 0 && idx < len(it.Items)))
	default:
		return ErrTypeMismatch
	}
}

func (v *VM) opKeys(ctx *Context) error {
	i, err := ctx.evalStack.Pop()
	if err != nil {
		return err
	}
	m, ok := i.(*Map)
	if !ok {
		return ErrTypeMismatch
	}
	keys := make([]Item, len(m.Keys()))
	copy(keys, m.Keys())
	return v.push(ctx, NewArray(keys))
}

func (v *VM) opValues(ctx *Context) error {
	i, err := ctx.evalStack.Pop()
	if err != nil {
		return err
	}
	m, ok := i.(*Map)
	if !ok {
		return ErrTypeMismatch
	}
	vals := make([]Item, 0, m.Len())
	for _, k := range m.Keys() {
		val, _, _ := m.Get(k)
		vals = append(vals, val)
	}
	return v.push(ctx, NewArray(vals))
}

func (v *VM) opPickItem(ctx *Context) error {
	keyI, err := ctx.evalStack.Pop()
	if err != nil {
		return err
	}
	i, err := ctx.evalStack.Pop()
	if err != nil {
		return err
	}
	switch it := i.(type) {
	case *Map:
		val, ok, err := it.Get(keyI)
		if err != nil {
			return err
		}
		if !ok {
			return ErrTypeMismatch
		}
		return v.push(ctx, val)
	case *Array:
		idx, err := indexOfItem(keyI)
		if err != nil || idx < 0 || idx >= len(it.Items) {
			return ErrTypeMismatch
		}
		return v.push(ctx, it.Items[idx])
	case *Struct:
		idx, err := indexOfItem(keyI)
		if err != nil || idx < 0 || idx >= len(it.Items) {
			return ErrTypeMismatch
		}
		return v.push(ctx, it.Items[idx])
	case ByteString:
		idx, err := indexOfItem(keyI)
		if err != nil || idx < 0 || idx >= len(it) {
			return ErrTypeMismatch
		}
		return v.push(ctx, NewIntegerInt64(int64(it[idx])))
	case *Buffer:
		idx, err := indexOfItem(keyI)
		if err != nil || idx < 0 || idx >= len(it.Data) {
			return ErrTypeMismatch
		}
		return v.push(ctx, NewIntegerInt64(int64(it.Data[idx])))
	default:
		return ErrTypeMismatch
	}
}

func (v *VM) opAppend(ctx *Context) error {
	val, err := ctx.evalStack.Pop()
	if err != nil {
		return err
	}
	i, err := ctx.evalStack.Pop()
	if err != nil {
		return err
	}
	switch it := i.(type) {
	case *Array:
		it.Items = append(it.Items, val)
		v.rc.addContainment(val)
		return nil
	case *Struct:
		it.Items = append(it.Items, val)
		v.rc.addContainment(val)
		return nil
	default:
		return ErrTypeMismatch
	}
}

func (v *VM) opSetItem(ctx *Context) error {
	val, err := ctx.evalStack.Pop()
	if err != nil {
		return err
	}
	keyI, err := ctx.evalStack.Pop()
	if err != nil {
		return err
	}
	i, err := ctx.evalStack.Pop()
	if err != nil {
		return err
	}
	switch it := i.(type) {
	case *Map:
		old, existed, _ := it.Get(keyI)
		if err := it.Set(keyI, val); err != nil {
			return err
		}
		if existed {
			v.rc.removeContainment(old)
		} else {
			v.rc.addContainment(keyI)
		}
		v.rc.addContainment(val)
		return nil
	case *Array:
		idx, err := indexOfItem(keyI)
		if err != nil || idx < 0 || idx >= len(it.Items) {
			return ErrTypeMismatch
		}
		old := it.Items[idx]
		it.Items[idx] = val
		v.rc.removeContainment(old)
		v.rc.addContainment(val)
		return nil
	case *Struct:
		idx, err := indexOfItem(keyI)
		if err != nil || idx < 0 || idx >= len(it.Items) {
			return ErrTypeMismatch
		}
		old := it.Items[idx]
		it.Items[idx] = val
		v.rc.removeContainment(old)
		v.rc.addContainment(val)
		return nil
	case *Buffer:
		idx, err := indexOfItem(keyI)
		n, ok := val.(Integer)
		if err != nil || !ok || idx < 0 || idx >= len(it.Data) {
			return ErrTypeMismatch
		}
		it.Data[idx] = byte(n.v.Int64())
		return nil
	default:
		return ErrTypeMismatch
	}
}

func (v *VM) opReverseItems(ctx *Context) error {
	i, err := ctx.evalStack.Pop()
	if err != nil {
		return err
	}
	items, err := itemsOfMutable(i)
	if err != nil {
		return err
	}
	for a, b := 0, len(items)-1; a < b; a, b = a+1, b-1 {
		items[a], items[b] = items[b], items[a]
	}
	return nil
}

func (v *VM) opRemove(ctx *Context) error {
	keyI, err := ctx.evalStack.Pop()
	if err != nil {
		return err
	}
	i, err := ctx.evalStack.Pop()
	if err != nil {
		return err
	}
	switch it := i.(type) {
	case *Map:
		old, existed, _ := it.Get(keyI)
		if existed {
			v.rc.removeContainment(old)
			v.rc.removeContainment(keyI)
		}
		return it.Delete(keyI)
	case *Array:
		idx, err := indexOfItem(keyI)
		if err != nil || idx < 0 || idx >= len(it.Items) {
			return ErrTypeMismatch
		}
		v.rc.removeContainment(it.Items[idx])
		it.Items = append(it.Items[:idx], it.Items[idx+1:]...)
		return nil
	default:
		return ErrTypeMismatch
	}
}

func (v *VM) opClearItems(ctx *Context) error {
	i, err := ctx.evalStack.Pop()
	if err != nil {
		return err
	}
	switch it := i.(type) {
	case *Array:
		for _, c := range it.Items {
			v.rc.removeContainment(c)
		}
		it.Items = nil
	case *Struct:
		for _, c := range it.Items {
			v.rc.removeContainment(c)
		}
		it.Items = nil
	case *Map:
		for _, k := range it.Keys() {
			val, _, _ := it.Get(k)
			v.rc.removeContainment(k)
			v.rc.removeContainment(val)
		}
		*it = *NewMap()
	default:
		return ErrTypeMismatch
	}
	return nil
}

func (v *VM) opPopItem(ctx *Context) error {
	i, err := ctx.evalStack.Pop()
	if err != nil {
		return err
	}
	arr, ok := i.(*Array)
	if !ok {
		return ErrTypeMismatch
	}
	if len(arr.Items) == 0 {
		return ErrStackUnderflow
	}
	last := arr.Items[len(arr.Items)-1]
	arr.Items = arr.Items[:len(arr.Items)-1]
	return v.push(ctx, last)
}

func itemsOf(i Item) ([]Item, error) {
	switch it := i.(type) {
	case *Array:
		return it.Items, nil
	case *Struct:
		return it.Items, nil
	default:
		return nil, ErrTypeMismatch
	}
}

func itemsOfMutable(i Item) ([]Item, error) { return itemsOf(i) }

func indexOfItem(i Item) (int, error) {
	n, ok := i.(Integer)
	if !ok || !n.v.IsInt64() {
		return -1, ErrTypeMismatch
	}
	return int(n.v.Int64()), nil
}
