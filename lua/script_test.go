package lua

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dshills/stormplug/plugin"
)

func TestLoad(t *testing.T) {
	script, err := Load(`x = 1 + 1`)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	defer script.Close()

	if script.IsClosed() {
		t.Error("Load() returned closed script")
	}
}

func TestLoad_SyntaxError(t *testing.T) {
	_, err := Load(`invalid lua code !!!`)
	if err == nil {
		t.Error("Load() with invalid code should return error")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "handlers.lua")
	src := `
		function Greet(args)
			return "hello " .. args[1]
		end
	`
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	script, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	defer script.Close()

	v, err := script.Call("Greet", []string{"world"})
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if v != "hello world" {
		t.Errorf("Greet = %v, want hello world", v)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.lua"))
	if err == nil {
		t.Error("LoadFile() on a missing file should return error")
	}
}

func TestScript_Call(t *testing.T) {
	script, err := Load(`
		function Double(args)
			return tonumber(args[1]) * 2
		end
	`)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	defer script.Close()

	v, err := script.Call("Double", []string{"42"})
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if v != int64(84) {
		t.Errorf("Double([42]) = %v (%T), want 84", v, v)
	}
}

func TestScript_CallZeroReturns(t *testing.T) {
	script, err := Load(`function Nop() end`)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	defer script.Close()

	v, err := script.Call("Nop")
	if err != nil {
		t.Errorf("Call() error = %v", err)
	}
	if v != nil {
		t.Errorf("Nop() = %v, want nil", v)
	}
}

func TestScript_CallTooManyReturns(t *testing.T) {
	script, err := Load(`
		function Two()
			return 1, 2
		end
	`)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	defer script.Close()

	_, err = script.Call("Two")
	if !errors.Is(err, ErrTooManyReturns) {
		t.Errorf("Call() error = %v, want ErrTooManyReturns", err)
	}

	// The stack must be clean for the next call.
	if _, err := script.Call("Two"); !errors.Is(err, ErrTooManyReturns) {
		t.Errorf("second Call() error = %v, want ErrTooManyReturns", err)
	}
}

func TestScript_CallMissingGlobal(t *testing.T) {
	script, err := Load(`x = 1`)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	defer script.Close()

	if _, err := script.Call("absent"); !errors.Is(err, ErrNotFunction) {
		t.Errorf("Call(absent) error = %v, want ErrNotFunction", err)
	}
	if _, err := script.Call("x"); !errors.Is(err, ErrNotFunction) {
		t.Errorf("Call(x) error = %v, want ErrNotFunction", err)
	}
}

func TestScript_CallRuntimeError(t *testing.T) {
	script, err := Load(`
		function Boom()
			error("kaput")
		end
	`)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	defer script.Close()

	_, err = script.Call("Boom")
	if err == nil {
		t.Fatal("Call() on a raising function should return error")
	}

	var serr *ScriptError
	if !errors.As(err, &serr) {
		t.Fatalf("Call() error = %T, want *ScriptError", err)
	}
	if serr.Fn != "Boom" {
		t.Errorf("ScriptError.Fn = %q, want Boom", serr.Fn)
	}
	if !strings.Contains(err.Error(), "kaput") {
		t.Errorf("error %q does not carry the lua message", err)
	}
}

func TestScript_CallTimeout(t *testing.T) {
	script, err := Load(`
		function Spin()
			while true do end
		end
	`, WithCallTimeout(100*time.Millisecond))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	defer script.Close()

	result := make(chan error, 1)
	go func() {
		_, err := script.Call("Spin")
		result <- err
	}()

	select {
	case err := <-result:
		if err == nil {
			t.Error("Call() on an infinite loop should time out")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("call deadline was not enforced")
	}
}

func TestScript_TableResults(t *testing.T) {
	script, err := Load(`
		function Arr()
			return {1, "two", true}
		end
		function Map()
			return {name = "stormplug", count = 3}
		end
	`)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	defer script.Close()

	v, err := script.Call("Arr")
	if err != nil {
		t.Fatalf("Call(Arr) error = %v", err)
	}
	arr, ok := v.([]any)
	if !ok {
		t.Fatalf("Arr() = %T, want []any", v)
	}
	if len(arr) != 3 || arr[0] != int64(1) || arr[1] != "two" || arr[2] != true {
		t.Errorf("Arr() = %v", arr)
	}

	v, err = script.Call("Map")
	if err != nil {
		t.Fatalf("Call(Map) error = %v", err)
	}
	m, ok := v.(map[string]any)
	if !ok {
		t.Fatalf("Map() = %T, want map[string]any", v)
	}
	if m["name"] != "stormplug" || m["count"] != int64(3) {
		t.Errorf("Map() = %v", m)
	}
}

func TestScript_Closed(t *testing.T) {
	script, err := Load(`x = 1`)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if err := script.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if !script.IsClosed() {
		t.Error("Close() did not close script")
	}

	// Double close should not panic.
	if err := script.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	if _, err := script.Call("anything"); !errors.Is(err, ErrClosed) {
		t.Errorf("Call() on closed script error = %v, want ErrClosed", err)
	}
}

func TestScript_DangerousFunctionsRemoved(t *testing.T) {
	script, err := Load(`
		function Probe(name)
			return _G[name] ~= nil
		end
	`)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	defer script.Close()

	for _, fn := range []string{"dofile", "loadfile", "load", "loadstring", "io", "os"} {
		v, err := script.Call("Probe", fn)
		if err != nil {
			t.Fatalf("Probe(%s) error = %v", fn, err)
		}
		if v != false {
			t.Errorf("%s should not be available to scripts", fn)
		}
	}

	for _, lib := range []string{"string", "table", "math", "pairs"} {
		v, err := script.Call("Probe", lib)
		if err != nil {
			t.Fatalf("Probe(%s) error = %v", lib, err)
		}
		if v != true {
			t.Errorf("%s should be available to scripts", lib)
		}
	}
}

func TestScript_HandlerFactories(t *testing.T) {
	script, err := Load(`
		function Double(args)
			return tonumber(args[1]) * 2
		end
		function Width(args, range)
			return range["end"] - range.start + 1
		end
		function Stamp(file)
			return file .. " saved"
		end
	`)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	defer script.Close()

	pctx := &plugin.Context{Context: context.Background()}

	v, err := script.Function("Double")(pctx, []string{"21"}).Run(context.Background())
	if err != nil {
		t.Fatalf("function handler error = %v", err)
	}
	if v != int64(42) {
		t.Errorf("Double([21]) = %v, want 42", v)
	}

	v, err = script.Command("Width")(pctx, nil, plugin.Range{Start: 3, End: 7}).Run(context.Background())
	if err != nil {
		t.Fatalf("command handler error = %v", err)
	}
	if v != int64(5) {
		t.Errorf("Width(3..7) = %v, want 5", v)
	}

	v, err = script.Autocmd("Stamp")(pctx, "a.txt").Run(context.Background())
	if err != nil {
		t.Fatalf("autocmd handler error = %v", err)
	}
	if v != "a.txt saved" {
		t.Errorf("Stamp(a.txt) = %v, want a.txt saved", v)
	}
}

func TestScript_HandlerFailureBecomesTaskFailure(t *testing.T) {
	script, err := Load(`
		function Broken()
			error("disk full")
		end
	`)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	defer script.Close()

	pctx := &plugin.Context{Context: context.Background()}
	_, err = script.Function("Broken")(pctx, nil).Run(context.Background())
	if err == nil {
		t.Fatal("failing lua handler should fail the task")
	}
	var serr *ScriptError
	if !errors.As(err, &serr) {
		t.Errorf("task error = %T, want *ScriptError", err)
	}
}
