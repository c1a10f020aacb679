package ecs

import (
	"reflect"
	"sync"

	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
)

// FieldValue is one exported field of an inspected component.
type FieldValue struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value any    `json:"value"`
}

// ComponentSnapshot is a copy of one component taken under a read borrow.
type ComponentSnapshot struct {
	ID     DynamicId    `json:"id"`
	Name   string       `json:"name"`
	Value  any          `json:"value"`
	Fields []FieldValue `json:"fields,omitempty"`
}

// EntitySnapshot is a copy of every component of one entity, for tools that have no compile-time
// knowledge of the component types.
type EntitySnapshot struct {
	Entity     Entity              `json:"entity"`
	Archetype  uint32              `json:"archetype"`
	Components []ComponentSnapshot `json:"components"`
}

type fieldInfo struct {
	name  string
	index int
}

var fieldCache sync.Map // map[reflect.Type][]fieldInfo

func exportedFields(t reflect.Type) []fieldInfo {
	if cached, ok := fieldCache.Load(t); ok {
		return cached.([]fieldInfo)
	}
	var fields []fieldInfo
	if t.Kind() == reflect.Struct {
		for i := 0; i < t.NumField(); i++ {
			if f := t.Field(i); f.IsExported() {
				fields = append(fields, fieldInfo{name: f.Name, index: i})
			}
		}
	}
	fieldCache.Store(t, fields)
	return fields
}

// Components lists the component ids and names of e in ascending id order.
func (w *World) Components(e Entity) ([]ComponentInfo, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	a, _, err := w.location(e)
	if err != nil {
		return nil, err
	}
	infos := make([]ComponentInfo, len(a.ids))
	for i, id := range a.ids {
		infos[i] = ComponentInfo{ID: id, Name: w.registry.Name(id)}
	}
	return infos, nil
}

// Inspect copies every component of e. Each component is read under a borrow, so inspecting an
// entity a running system writes panics with a *BorrowError.
func (w *World) Inspect(e Entity) (EntitySnapshot, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	a, row, err := w.location(e)
	if err != nil {
		return EntitySnapshot{}, err
	}

	snap := EntitySnapshot{Entity: e, Archetype: a.id}
	for i, id := range a.ids {
		w.borrows.Acquire(e, id, Read)
		value := a.columns[i].Value(row)
		w.borrows.Release(e, id, Read)

		comp := ComponentSnapshot{ID: id, Name: w.registry.Name(id), Value: value}
		v := reflect.ValueOf(value)
		if v.IsValid() {
			for _, f := range exportedFields(v.Type()) {
				fv := v.Field(f.index)
				comp.Fields = append(comp.Fields, FieldValue{Name: f.name, Type: fv.Type().String(), Value: fv.Interface()})
			}
		}
		snap.Components = append(snap.Components, comp)
	}
	return snap, nil
}

// MarshalEntity encodes the components of e as a JSON object keyed by component name.
func (w *World) MarshalEntity(e Entity) ([]byte, error) {
	snap, err := w.Inspect(e)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(snap.Components))
	for _, c := range snap.Components {
		out[c.Name] = c.Value
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to encode entity %s", e)
	}
	return data, nil
}
