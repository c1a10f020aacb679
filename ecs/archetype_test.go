package ecs

import (
	"reflect"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testPoint struct{ X, Y int }

func TestBlockColumn(t *testing.T) {
	col := newBlockColumn[testPoint](1)

	require.NoError(t, col.Set(0, testPoint{X: 1}))
	require.NoError(t, col.Set(130, &testPoint{X: 2}))
	assert.Error(t, col.Set(1, "nope"))
	assert.Equal(t, 2, col.Len())

	ptr := col.Get(0).(*testPoint)
	require.NoError(t, col.Set(200, testPoint{X: 3}))
	assert.Same(t, ptr, col.Get(0).(*testPoint), "growth keeps existing rows in place")

	assert.False(t, col.Has(1))
	assert.Nil(t, col.Get(1))
	assert.Nil(t, col.Pointer(1000))

	col.Delete(130)
	assert.False(t, col.Has(130))
	assert.Equal(t, 2, col.Len())

	col.Reorder([]int{200, 0})
	assert.Equal(t, testPoint{X: 3}, col.Value(0))
	assert.Equal(t, testPoint{X: 1}, col.Value(1))
	assert.Equal(t, 2, col.Len())
}

func TestReflectColumn(t *testing.T) {
	col := newReflectColumn(1, reflect.TypeFor[testPoint]())

	require.NoError(t, col.Set(0, testPoint{X: 1}))
	require.NoError(t, col.Set(130, &testPoint{X: 2}))
	assert.Error(t, col.Set(1, "nope"))
	assert.Error(t, col.Set(1, (*testPoint)(nil)))
	assert.Equal(t, 2, col.Len())

	ptr := col.Get(0).(*testPoint)
	require.NoError(t, col.Set(200, testPoint{X: 3}))
	assert.Same(t, ptr, col.Get(0).(*testPoint), "growth keeps existing rows in place")
	assert.Equal(t, unsafe.Pointer(ptr), col.Pointer(0))

	ptr.Y = 9
	assert.Equal(t, testPoint{X: 1, Y: 9}, col.Value(0))
	assert.Nil(t, col.Get(1))
	assert.Nil(t, col.Pointer(1000))

	col.Delete(130)
	assert.False(t, col.Has(130))
	assert.Equal(t, 2, col.Len())

	col.Reorder([]int{200, 0})
	assert.Equal(t, testPoint{X: 3}, col.Value(0))
	assert.Equal(t, testPoint{X: 1, Y: 9}, col.Value(1))
	assert.Equal(t, 2, col.Len())
}

func TestArchetype(t *testing.T) {
	r := NewRegistry()
	point := RegisterComponent[testPoint](r)
	label := r.GetNamed("Label")
	ids, err := sortedIDs([]DynamicId{label, point})
	require.NoError(t, err)

	a, err := newArchetype(0, ids, r)
	require.NoError(t, err)
	assert.True(t, a.Has(point))
	assert.True(t, a.Has(label))
	assert.Equal(t, archetypeKey(ids), a.key)

	var entities []Entity
	for i := 0; i < 5; i++ {
		e := NewEntity(uint32(i), 1)
		row, err := a.insert(e, map[DynamicId]any{point: testPoint{X: i}, label: i})
		require.NoError(t, err)
		assert.Equal(t, i, row)
		entities = append(entities, e)
	}

	_, err = a.insert(NewEntity(9, 1), map[DynamicId]any{point: "bad", label: 0})
	assert.Error(t, err)
	assert.Equal(t, 5, a.Len(), "a failed insert leaves nothing behind")

	a.remove(1)
	a.remove(3)
	assert.Equal(t, 3, a.Len())

	row, err := a.insert(NewEntity(7, 1), map[DynamicId]any{point: testPoint{X: 7}, label: 7})
	require.NoError(t, err)
	assert.Equal(t, 3, row, "the most recently freed row is reused first")

	order := a.compact()
	assert.Equal(t, []int{0, 2, 3, 4}, order)
	var got []Entity
	for _, e := range a.rows() {
		got = append(got, e)
	}
	assert.Equal(t, []Entity{entities[0], entities[2], NewEntity(7, 1), entities[4]}, got)
	assert.Equal(t, testPoint{X: 7}, a.column(point).Value(2))
	assert.Equal(t, 4, a.column(label).Value(3))

	_, err = sortedIDs([]DynamicId{point, point})
	assert.ErrorIs(t, err, ErrDuplicateComponent)
}

func TestEntityIndex(t *testing.T) {
	var ix entityIndex
	a, err := ix.allocate()
	require.NoError(t, err)
	assert.Equal(t, NewEntity(0, 1), a)

	ix.release(a)
	_, err = ix.lookup(a)
	assert.ErrorIs(t, err, ErrEntityNotFound)

	b, err := ix.allocate()
	require.NoError(t, err)
	assert.Equal(t, NewEntity(0, 2), b)
	assert.True(t, ix.alive(b))
	assert.False(t, ix.alive(NoEntity))
	assert.Equal(t, 1, ix.live)
}
