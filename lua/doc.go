// Package lua lets plugin handlers be written in Lua.
//
// A Script wraps one sandboxed gopher-lua interpreter: only the base,
// table, string, and math libraries are opened, and every call runs
// under an execution timeout. Handler factories adapt named global Lua
// functions into plugin handlers.
//
// # Loading
//
//	script, err := lua.Load(`
//	    function Double(args)
//	        return tonumber(args[1]) * 2
//	    end
//	`)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer script.Close()
//
// # Handlers
//
// Each factory binds a global Lua function to a handler shape:
//
//	p.FunctionSync("Double", nil, script.Function("Double"))
//	p.Command("Reverse", nil, script.Command("Reverse"))
//	p.Autocmd("buffer.saved", nil, script.Autocmd("OnSave"))
//
// Command functions receive (args, range), autocommand functions
// receive (file), function functions receive (args). The single return
// value, if any, becomes the handler's result.
//
// # Conversion
//
// Arguments and results cross the boundary as plain values: booleans,
// numbers (integral numbers become int64), strings, and tables. A table
// with contiguous 1-based integer keys converts to a slice, anything
// else to a map. Circular tables are cut at the first revisit.
//
// A Script serializes all calls through one interpreter; handlers on
// separate goroutines take turns.
package lua
