package plugin

import "context"

// Kind identifies a handler category.
type Kind string

const (
	// KindCommand is an editor command (":Name args").
	KindCommand Kind = "command"
	// KindAutocmd is an event-driven handler (buffer saved, file opened).
	KindAutocmd Kind = "autocmd"
	// KindFunction is a remote-callable function.
	KindFunction Kind = "function"
)

// Range is a 1-based inclusive line range. Single-line invocations have
// Start == End.
type Range struct {
	Start int
	End   int
}

// Context is the per-invocation execution context passed to every
// handler. It carries the invocation's Go context plus the host surface;
// handlers reach the editor only through it.
type Context struct {
	context.Context

	// Host is the surface through which handlers talk back to the editor.
	Host Host

	// Name is the registered name or event being invoked.
	Name string

	// Kind is the handler category being invoked.
	Kind Kind
}

// Notify sends a notification to the host. It returns ErrNilHost when the
// context carries no host.
func (c *Context) Notify(method string, args ...any) error {
	if c.Host == nil {
		return ErrNilHost
	}
	return c.Host.Notify(method, args...)
}
