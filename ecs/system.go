package ecs

// System represents a behavior that operates on entities with specific components.
// User-defined systems implement this interface and can include Query, FilteredQuery, Res and
// ResMut fields, as well as custom state fields that persist between frames. The scheduler binds
// those fields at registration, borrows them before every run and releases them afterwards.
//
// A returned error or a panic aborts the rest of the stage.
type System interface {
	Execute(frame *UpdateFrame) error
}

// SystemParam is a system field that the scheduler binds and borrows around each run.
type SystemParam interface {
	bind(w *World) error
	Execute()
	Release()
	Access() AccessSet
}

// AccessDeclarer is implemented by systems that declare access beyond their fields, typically
// because they build dynamic queries at run time. The scheduler asks before every stage, so the
// declaration may change between runs.
type AccessDeclarer interface {
	Access() AccessSet
}

// Named is implemented by systems that report their own name.
type Named interface {
	Name() string
}

// SystemFunc adapts a plain function to System. Pair it with WithAccess to declare what it touches.
type SystemFunc func(frame *UpdateFrame) error

func (f SystemFunc) Execute(frame *UpdateFrame) error {
	return f(frame)
}

type systemOptions struct {
	name      string
	access    AccessSet
	exclusive bool
}

// SystemOption configures a system at registration.
type SystemOption func(*systemOptions)

// WithName overrides the system's name in stats and logs.
func WithName(name string) SystemOption {
	return func(o *systemOptions) { o.name = name }
}

// WithAccess declares access in addition to what the system's fields imply.
func WithAccess(access AccessSet) SystemOption {
	return func(o *systemOptions) { o.access.Merge(access) }
}

// Exclusive makes the system run alone, with no other system of its stage running concurrently.
// An exclusive system holding no guards may change the world structurally in place.
func Exclusive() SystemOption {
	return func(o *systemOptions) { o.exclusive = true }
}
