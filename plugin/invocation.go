package plugin

import (
	"runtime/debug"

	"github.com/dshills/stormplug/task"
)

// Handler signatures, one per category. A handler returns the task
// describing its work; returning nil means the work already completed
// synchronously with no value.
type (
	// CommandHandler handles a command invocation.
	CommandHandler func(ctx *Context, args []string, rng Range) *task.Task

	// AutocmdHandler handles an autocommand invocation.
	AutocmdHandler func(ctx *Context, file string) *task.Task

	// FunctionHandler handles a function invocation.
	FunctionHandler func(ctx *Context, args []string) *task.Task
)

// invocation is one host-driven call of a registered handler. Each
// category renders its payload into the handler call; run contains any
// synchronous handler failure as an already-failed task.
type invocation interface {
	run(ctx *Context) *task.Task
}

type commandInvocation struct {
	handler CommandHandler
	args    []string
	rng     Range
}

func (iv commandInvocation) run(ctx *Context) *task.Task {
	return protect(func() *task.Task {
		return iv.handler(ctx, iv.args, iv.rng)
	})
}

type autocmdInvocation struct {
	handler AutocmdHandler
	file    string
}

func (iv autocmdInvocation) run(ctx *Context) *task.Task {
	return protect(func() *task.Task {
		return iv.handler(ctx, iv.file)
	})
}

type functionInvocation struct {
	handler FunctionHandler
	args    []string
}

func (iv functionInvocation) run(ctx *Context) *task.Task {
	return protect(func() *task.Task {
		return iv.handler(ctx, iv.args)
	})
}

// protect calls produce, turning a panic into a failed task and a nil
// task into an immediate success. A panic here is a failure to start the
// computation; it is delivered like any other failure, never rethrown.
func protect(produce func() *task.Task) (t *task.Task) {
	defer func() {
		if r := recover(); r != nil {
			t = task.Failed(&task.PanicError{Value: r, Stack: string(debug.Stack())})
		}
	}()
	t = produce()
	if t == nil {
		t = task.Completed(nil)
	}
	return t
}

// normalizeArgs guarantees handlers observe a non-nil argument slice.
func normalizeArgs(args []string) []string {
	if args == nil {
		return []string{}
	}
	return args
}
