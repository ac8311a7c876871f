package plugin

import "github.com/dshills/stormplug/bridge"

// Native entry point shapes. The host calls these; the plugin package
// builds them from handlers. Blocking shapes receive the completion
// callback in the category's native position: commands and autocommands
// take it first, functions take it last.
type (
	// CommandFunc is the native non-blocking command entry point.
	CommandFunc func(args []string, rng Range)

	// CommandSyncFunc is the native blocking command entry point.
	CommandSyncFunc func(done bridge.Done, args []string, rng Range)

	// AutocmdFunc is the native non-blocking autocommand entry point.
	AutocmdFunc func(file string)

	// AutocmdSyncFunc is the native blocking autocommand entry point.
	AutocmdSyncFunc func(done bridge.Done, file string)

	// FunctionFunc is the native non-blocking function entry point.
	FunctionFunc func(args []string)

	// FunctionSyncFunc is the native blocking function entry point.
	FunctionSyncFunc func(args []string, done bridge.Done)
)

// Host is the registration boundary between the plugin and its transport.
// Package rpc implements it over the wire protocol; tests implement it
// in-process.
//
// Register calls announce a handler to the editor and install the native
// entry point the editor will invoke. For blocking registrations the host
// must supply a fresh completion callback with every invocation.
type Host interface {
	RegisterCommand(name string, opts Options, fn CommandFunc) error
	RegisterCommandSync(name string, opts Options, fn CommandSyncFunc) error

	RegisterAutocmd(event string, opts Options, fn AutocmdFunc) error
	RegisterAutocmdSync(event string, opts Options, fn AutocmdSyncFunc) error

	RegisterFunction(name string, opts Options, fn FunctionFunc) error
	RegisterFunctionSync(name string, opts Options, fn FunctionSyncFunc) error

	// Notify sends a fire-and-forget notification to the editor.
	Notify(method string, args ...any) error
}
