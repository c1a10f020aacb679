package ecs

import (
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// UpdateFrame is handed to a system for one run.
type UpdateFrame struct {
	Stage     Stage
	DeltaTime float64
	// Commands buffers structural changes; they are applied after the stage releases its guards.
	Commands *Commands
	World    *World
	System   string
	access   AccessSet
}

// Access returns the access the running system declared.
func (f *UpdateFrame) Access() AccessSet {
	return f.access
}

// QueryDynamic starts a dynamic query that must stay within the system's declared access.
func (f *UpdateFrame) QueryDynamic() *DynamicQueryBuilder {
	b := f.World.QueryDynamic()
	b.allowed = &f.access
	return b
}

// BorrowResource borrows a resource the system declared.
func (f *UpdateFrame) BorrowResource(id DynamicId, access Access) (*DynamicResource, error) {
	if !f.access.AllowsResource(id, access) {
		return nil, eris.Wrapf(ErrUndeclaredAccess, "%s of resource %s", access, f.World.registry.Name(id))
	}
	return f.World.BorrowResource(id, access)
}

// Logger returns the world logger annotated with the running system.
func (f *UpdateFrame) Logger() zerolog.Logger {
	return f.World.logger.With().Str("system", f.System).Stringer("stage", f.Stage).Logger()
}
