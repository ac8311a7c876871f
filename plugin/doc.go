// Package plugin provides the registration surface for Keystorm remote
// plugins.
//
// A plugin registers named handlers in three categories (commands,
// autocommands, and functions), each in a blocking ("sync") or
// non-blocking ("async") variant:
//
//   - Blocking: the host waits for completion. The handler's outcome is
//     delivered through the host's one-shot completion callback, which
//     fires exactly once: (nil, value) on success, (err, nil) on failure.
//
//   - Non-blocking: fire-and-forget. The host hears nothing back; the
//     handler's outcome, success and failure alike, goes to the
//     diagnostic sink.
//
// Handlers return a *task.Task describing their work. Returning nil means
// the work already completed synchronously with no value. A handler that
// panics while producing its task fails the invocation; the panic never
// reaches the host.
//
// # Registration Options
//
// Options is an open string map. Every registration is merged over the
// defaults {"nargs": "*", "range": ""} and copied, so the caller's map
// can be reused or mutated freely afterwards.
//
// # Usage
//
//	p, err := plugin.New(host)
//	if err != nil {
//	    return err
//	}
//
//	err = p.FunctionSync("Double", nil, func(ctx *plugin.Context, args []string) *task.Task {
//	    return task.New(func(context.Context) (any, error) {
//	        n, err := strconv.Atoi(args[0])
//	        if err != nil {
//	            return nil, err
//	        }
//	        return n * 2, nil
//	    })
//	})
//
// The Host is the boundary to the transport; package rpc provides the
// wire implementation, and tests can supply their own.
package plugin
