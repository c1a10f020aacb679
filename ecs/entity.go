package ecs

import (
	"fmt"
	"math"

	"github.com/rotisserie/eris"
)

// Entity is a generational handle: the generation in the upper 32 bits and the slot index in the
// lower 32 bits. A handle whose generation no longer matches its slot is stale and every world
// operation rejects it. The zero Entity never refers to a live entity.
type Entity uint64

// NoEntity is the zero handle.
const NoEntity Entity = 0

const maxEntityIndex = math.MaxUint32 - 1

// NewEntity creates an Entity from a slot index and generation.
func NewEntity(index uint32, generation uint32) Entity {
	return Entity(uint64(generation)<<32 | uint64(index))
}

// Index extracts the slot index.
func (e Entity) Index() uint32 {
	return uint32(e & 0xFFFFFFFF)
}

// Generation extracts the generation counter.
func (e Entity) Generation() uint32 {
	return uint32(e >> 32)
}

func (e Entity) String() string {
	return fmt.Sprintf("%dv%d", e.Index(), e.Generation())
}

// entityRecord locates a live entity inside its archetype.
type entityRecord struct {
	generation uint32
	alive      bool
	archetype  *Archetype
	row        int
}

// entityIndex maps slot indices to their current generation and location. Freed slots are reused
// in FIFO order; every reuse bumps the generation so older handles go stale.
type entityIndex struct {
	records []entityRecord
	free    []uint32
	live    int
}

func (ix *entityIndex) allocate() (Entity, error) {
	if len(ix.free) > 0 {
		index := ix.free[0]
		ix.free = ix.free[1:]
		rec := &ix.records[index]
		rec.alive = true
		ix.live++
		return NewEntity(index, rec.generation), nil
	}

	if len(ix.records) > maxEntityIndex {
		return NoEntity, eris.New("max number of entities exceeded")
	}
	index := uint32(len(ix.records))
	ix.records = append(ix.records, entityRecord{generation: 1, alive: true})
	ix.live++
	return NewEntity(index, 1), nil
}

// lookup returns the record for a live, current-generation handle.
func (ix *entityIndex) lookup(e Entity) (*entityRecord, error) {
	index := e.Index()
	if int(index) >= len(ix.records) {
		return nil, eris.Wrapf(ErrEntityNotFound, "entity %s", e)
	}
	rec := &ix.records[index]
	if !rec.alive || rec.generation != e.Generation() {
		return nil, eris.Wrapf(ErrEntityNotFound, "entity %s is stale", e)
	}
	return rec, nil
}

func (ix *entityIndex) release(e Entity) {
	rec := &ix.records[e.Index()]
	rec.alive = false
	rec.archetype = nil
	rec.row = -1
	rec.generation++
	if rec.generation == 0 {
		rec.generation = 1
	}
	ix.free = append(ix.free, e.Index())
	ix.live--
}

func (ix *entityIndex) alive(e Entity) bool {
	_, err := ix.lookup(e)
	return err == nil
}
