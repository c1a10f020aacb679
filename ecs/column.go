package ecs

import (
	"reflect"
	"unsafe"

	"github.com/rotisserie/eris"
)

const columnBlockSize = 64

// column stores the values of one component id for every row of an archetype. Rows are owned by
// the archetype; a column only mirrors the archetype's row layout.
type column interface {
	ID() DynamicId
	// Type is the stored element type. Boxed columns report the empty interface type.
	Type() reflect.Type
	Set(row int, item any) error
	// Get returns a pointer to the stored value, or nil for an empty row.
	Get(row int) any
	// Value returns a copy of the stored value.
	Value(row int) any
	Pointer(row int) unsafe.Pointer
	Delete(row int)
	Has(row int) bool
	// Reorder rebuilds the column so that new row i holds old row order[i].
	Reorder(order []int)
	Len() int
}

// blockColumn stores values of T in fixed-size blocks so that growing a column never moves values
// already handed out by pointer within a block. Script-declared ids use blockColumn[any].
type blockColumn[T any] struct {
	id     DynamicId
	blocks []*[columnBlockSize]T
	filled []*[columnBlockSize]bool
	count  int
}

func newBlockColumn[T any](id DynamicId) *blockColumn[T] {
	return &blockColumn[T]{id: id}
}

func (c *blockColumn[T]) ID() DynamicId { return c.id }

func (c *blockColumn[T]) Type() reflect.Type { return reflect.TypeFor[T]() }

func (c *blockColumn[T]) Len() int { return c.count }

func (c *blockColumn[T]) slot(row int) (int, int, bool) {
	if row < 0 {
		return 0, 0, false
	}
	b, s := row/columnBlockSize, row%columnBlockSize
	return b, s, b < len(c.blocks)
}

func (c *blockColumn[T]) Set(row int, item any) error {
	var value T
	switch v := item.(type) {
	case *T:
		if v == nil {
			return eris.Wrapf(ErrInvalidComponent, "nil pointer for %s", c.Type())
		}
		value = *v
	case T:
		value = v
	default:
		return eris.Wrapf(ErrInvalidComponent, "%T stored in column of %s", item, c.Type())
	}

	for row/columnBlockSize >= len(c.blocks) {
		c.blocks = append(c.blocks, new([columnBlockSize]T))
		c.filled = append(c.filled, new([columnBlockSize]bool))
	}
	b, s := row/columnBlockSize, row%columnBlockSize
	if !c.filled[b][s] {
		c.count++
	}
	c.blocks[b][s] = value
	c.filled[b][s] = true
	return nil
}

func (c *blockColumn[T]) Get(row int) any {
	b, s, ok := c.slot(row)
	if !ok || !c.filled[b][s] {
		return nil
	}
	return &c.blocks[b][s]
}

func (c *blockColumn[T]) Value(row int) any {
	b, s, ok := c.slot(row)
	if !ok || !c.filled[b][s] {
		return nil
	}
	return c.blocks[b][s]
}

func (c *blockColumn[T]) Pointer(row int) unsafe.Pointer {
	b, s, ok := c.slot(row)
	if !ok || !c.filled[b][s] {
		return nil
	}
	return unsafe.Pointer(&c.blocks[b][s])
}

func (c *blockColumn[T]) Delete(row int) {
	b, s, ok := c.slot(row)
	if !ok || !c.filled[b][s] {
		return
	}
	var zero T
	c.blocks[b][s] = zero
	c.filled[b][s] = false
	c.count--
}

func (c *blockColumn[T]) Has(row int) bool {
	b, s, ok := c.slot(row)
	return ok && c.filled[b][s]
}

func (c *blockColumn[T]) Reorder(order []int) {
	n := (len(order) + columnBlockSize - 1) / columnBlockSize
	blocks := make([]*[columnBlockSize]T, n)
	filled := make([]*[columnBlockSize]bool, n)
	for i := range blocks {
		blocks[i] = new([columnBlockSize]T)
		filled[i] = new([columnBlockSize]bool)
	}

	count := 0
	for to, from := range order {
		fb, fs, ok := c.slot(from)
		if !ok || !c.filled[fb][fs] {
			continue
		}
		tb, ts := to/columnBlockSize, to%columnBlockSize
		blocks[tb][ts] = c.blocks[fb][fs]
		filled[tb][ts] = true
		count++
	}

	c.blocks = blocks
	c.filled = filled
	c.count = count
}

// reflectColumn stores a compiled type that was spawned without RegisterComponent. It keeps the
// block layout of blockColumn but builds its blocks through reflection.
type reflectColumn struct {
	id     DynamicId
	typ    reflect.Type
	blocks []reflect.Value // each a *[columnBlockSize]typ
	filled []*[columnBlockSize]bool
	count  int
}

func newReflectColumn(id DynamicId, t reflect.Type) *reflectColumn {
	return &reflectColumn{id: id, typ: t}
}

func (c *reflectColumn) ID() DynamicId { return c.id }

func (c *reflectColumn) Type() reflect.Type { return c.typ }

func (c *reflectColumn) Len() int { return c.count }

func (c *reflectColumn) newBlock() reflect.Value {
	return reflect.New(reflect.ArrayOf(columnBlockSize, c.typ))
}

func (c *reflectColumn) slot(row int) (int, int, bool) {
	if row < 0 {
		return 0, 0, false
	}
	b, s := row/columnBlockSize, row%columnBlockSize
	return b, s, b < len(c.blocks) && c.filled[b][s]
}

func (c *reflectColumn) elem(b, s int) reflect.Value {
	return c.blocks[b].Elem().Index(s)
}

func (c *reflectColumn) Set(row int, item any) error {
	v := reflect.ValueOf(item)
	if v.IsValid() && v.Kind() == reflect.Pointer && v.Type().Elem() == c.typ {
		if v.IsNil() {
			return eris.Wrapf(ErrInvalidComponent, "nil pointer for %s", c.typ)
		}
		v = v.Elem()
	}
	if !v.IsValid() || v.Type() != c.typ {
		return eris.Wrapf(ErrInvalidComponent, "%T stored in column of %s", item, c.typ)
	}

	for row/columnBlockSize >= len(c.blocks) {
		c.blocks = append(c.blocks, c.newBlock())
		c.filled = append(c.filled, new([columnBlockSize]bool))
	}
	b, s := row/columnBlockSize, row%columnBlockSize
	if !c.filled[b][s] {
		c.count++
	}
	c.elem(b, s).Set(v)
	c.filled[b][s] = true
	return nil
}

func (c *reflectColumn) Get(row int) any {
	b, s, ok := c.slot(row)
	if !ok {
		return nil
	}
	return c.elem(b, s).Addr().Interface()
}

func (c *reflectColumn) Value(row int) any {
	b, s, ok := c.slot(row)
	if !ok {
		return nil
	}
	return c.elem(b, s).Interface()
}

func (c *reflectColumn) Pointer(row int) unsafe.Pointer {
	b, s, ok := c.slot(row)
	if !ok {
		return nil
	}
	return c.elem(b, s).Addr().UnsafePointer()
}

func (c *reflectColumn) Delete(row int) {
	b, s, ok := c.slot(row)
	if !ok {
		return
	}
	c.elem(b, s).SetZero()
	c.filled[b][s] = false
	c.count--
}

func (c *reflectColumn) Has(row int) bool {
	_, _, ok := c.slot(row)
	return ok
}

func (c *reflectColumn) Reorder(order []int) {
	n := (len(order) + columnBlockSize - 1) / columnBlockSize
	blocks := make([]reflect.Value, n)
	filled := make([]*[columnBlockSize]bool, n)
	for i := range blocks {
		blocks[i] = c.newBlock()
		filled[i] = new([columnBlockSize]bool)
	}

	count := 0
	for to, from := range order {
		fb, fs, ok := c.slot(from)
		if !ok {
			continue
		}
		tb, ts := to/columnBlockSize, to%columnBlockSize
		blocks[tb].Elem().Index(ts).Set(c.elem(fb, fs))
		filled[tb][ts] = true
		count++
	}

	c.blocks = blocks
	c.filled = filled
	c.count = count
}
