// Package main is an interactive host for exercising stormplug plugins.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/tidwall/match"

	"github.com/dshills/stormplug/internal/protocol"
	"github.com/dshills/stormplug/rpc"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	opts := parseFlags()

	h, err := newHarness(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	// Ensure the plugin is shut down on all exit paths
	defer h.shutdown()

	// Handle signals for graceful shutdown
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-signals
		h.shutdown()
	}()

	if err := h.run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

type options struct {
	listen    string
	timeout   time.Duration
	pluginCmd []string
}

func parseFlags() options {
	var opts options
	var showVersion bool

	flag.StringVar(&opts.listen, "listen", "", "Accept the plugin over TCP on this address instead of spawning it")
	flag.DurationVar(&opts.timeout, "timeout", 5*time.Second, "How long to wait for the plugin to exit on shutdown")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showVersion, "v", false, "Show version information (shorthand)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "stormplug-dev - interactive host for stormplug plugins\n\n")
		fmt.Fprintf(os.Stderr, "Usage: stormplug-dev [options] -- plugin-command [args...]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nInteractive commands:\n")
		fmt.Fprintf(os.Stderr, "  cmd <name> [start:end] [args...]   invoke a command\n")
		fmt.Fprintf(os.Stderr, "  fn <name> [args...]                invoke a function\n")
		fmt.Fprintf(os.Stderr, "  au <event> <file>                  fire an autocommand\n")
		fmt.Fprintf(os.Stderr, "  regs                               list registrations\n")
		fmt.Fprintf(os.Stderr, "  quit                               shut the plugin down\n")
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  stormplug-dev -- ./wordcount\n")
		fmt.Fprintf(os.Stderr, "  stormplug-dev -listen 127.0.0.1:7766\n")
	}

	flag.Parse()

	if showVersion {
		fmt.Printf("stormplug-dev %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", date)
		os.Exit(0)
	}

	opts.pluginCmd = flag.Args()
	return opts
}

// registration mirrors one register line from the plugin.
type registration struct {
	kind string
	name string
	sync bool
	opts map[string]string
}

// harness drives one plugin over its transport: it prints everything
// the plugin sends and turns terminal commands into invoke lines.
type harness struct {
	fr      *protocol.Framer
	conn    io.Closer // plugin stdin or TCP conn; closing signals EOF
	proc    *exec.Cmd // nil in TCP mode
	timeout time.Duration

	mu      sync.Mutex
	regs    []registration
	pending map[int64]string

	nextID atomic.Int64

	done     chan struct{}
	stopOnce sync.Once
}

func newHarness(opts options) (*harness, error) {
	h := &harness{
		timeout: opts.timeout,
		pending: make(map[int64]string),
		done:    make(chan struct{}),
	}

	if opts.listen != "" {
		ln, err := net.Listen("tcp", opts.listen)
		if err != nil {
			return nil, fmt.Errorf("listen %s: %w", opts.listen, err)
		}
		defer ln.Close()
		fmt.Printf("waiting for plugin; start it with %s=%s\n", rpc.EnvAddr, ln.Addr())
		conn, err := ln.Accept()
		if err != nil {
			return nil, fmt.Errorf("accept: %w", err)
		}
		fmt.Printf("plugin connected from %s\n", conn.RemoteAddr())
		h.fr = protocol.NewFramer(conn, conn)
		h.conn = conn
		return h, nil
	}

	if len(opts.pluginCmd) == 0 {
		return nil, errors.New("no plugin command given (stormplug-dev [options] -- plugin-command [args...])")
	}

	cmd := exec.Command(opts.pluginCmd[0], opts.pluginCmd[1:]...)
	cmd.Stderr = os.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start plugin: %w", err)
	}
	fmt.Printf("spawned %s (pid %d)\n", opts.pluginCmd[0], cmd.Process.Pid)

	h.fr = protocol.NewFramer(stdout, stdin)
	h.conn = stdin
	h.proc = cmd
	return h, nil
}

// run reads terminal commands until quit or EOF. Plugin traffic prints
// from a separate goroutine as it arrives.
func (h *harness) run() error {
	go h.reader()

	fmt.Println("ready (cmd|fn <name> [args...], au <event> <file>, quit)")
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			break
		}
		if err := h.exec(line); err != nil {
			fmt.Printf("!! %v\n", err)
		}
	}

	h.shutdown()
	<-h.done
	return sc.Err()
}

// reader prints every line the plugin sends until the transport closes.
func (h *harness) reader() {
	defer close(h.done)
	for {
		line, err := h.fr.ReadLine()
		if err != nil {
			if err == io.EOF {
				fmt.Println("<< plugin disconnected")
			} else {
				fmt.Printf("<< transport closed: %v\n", err)
			}
			return
		}
		m, err := protocol.Decode(line)
		if err != nil {
			fmt.Printf("<< skipping malformed line: %v\n", err)
			continue
		}
		h.print(m)
	}
}

func (h *harness) print(m protocol.Message) {
	switch m.Type {
	case protocol.TypeHello:
		fmt.Printf("<< hello %s %s (proto %d)\n", m.Name, m.Version, m.Proto)

	case protocol.TypeRegister:
		h.mu.Lock()
		h.regs = append(h.regs, registration{kind: m.Kind, name: m.Name, sync: m.Sync, opts: m.Opts})
		h.mu.Unlock()
		mode := "async"
		if m.Sync {
			mode = "sync"
		}
		if len(m.Opts) > 0 {
			fmt.Printf("<< register %s %s (%s) %v\n", m.Kind, m.Name, mode, m.Opts)
		} else {
			fmt.Printf("<< register %s %s (%s)\n", m.Kind, m.Name, mode)
		}

	case protocol.TypeResponse:
		h.mu.Lock()
		label := h.pending[m.ID]
		delete(h.pending, m.ID)
		h.mu.Unlock()
		if label == "" {
			label = "?"
		}
		if m.HasError {
			fmt.Printf("<< response #%d (%s) error: %s\n", m.ID, label, m.Error)
		} else {
			fmt.Printf("<< response #%d (%s) result: %s\n", m.ID, label, m.Result)
		}

	case protocol.TypeNotify:
		fmt.Printf("<< notify %s %v\n", m.Method, m.Args)

	default:
		fmt.Printf("<< %s %+v\n", m.Type, m)
	}
}

func (h *harness) exec(line string) error {
	fields := strings.Fields(line)
	switch fields[0] {
	case "cmd":
		if len(fields) < 2 {
			return errors.New("usage: cmd <name> [start:end] [args...]")
		}
		return h.invoke(protocol.KindCommand, fields[1], fields[2:])
	case "fn":
		if len(fields) < 2 {
			return errors.New("usage: fn <name> [args...]")
		}
		return h.invoke(protocol.KindFunction, fields[1], fields[2:])
	case "au":
		if len(fields) != 3 {
			return errors.New("usage: au <event> <file>")
		}
		return h.fire(fields[1], fields[2])
	case "regs":
		h.listRegs()
		return nil
	case "help":
		flag.Usage()
		return nil
	default:
		return fmt.Errorf("unknown command %q (try help)", fields[0])
	}
}

// invoke sends one command or function invocation, correlated by a
// generated id when the registration is blocking.
func (h *harness) invoke(kind, name string, rest []string) error {
	rng, args := parseRange(rest)

	blocking := false
	if reg, ok := h.lookup(kind, name); ok {
		blocking = reg.sync
	} else {
		fmt.Printf("?? %s %q is not registered, sending anyway\n", kind, name)
	}

	var id *int64
	if blocking {
		n := h.nextID.Add(1)
		h.track(n, kind+" "+name)
		id = &n
		fmt.Printf(">> invoke #%d %s %s %v\n", n, kind, name, args)
	} else {
		fmt.Printf(">> invoke %s %s %v\n", kind, name, args)
	}
	return h.fr.WriteLine(protocol.EncodeInvoke(kind, name, id, args, rng, ""))
}

// fire dispatches one autocommand, honoring a registered pattern
// option.
func (h *harness) fire(event, file string) error {
	reg, ok := h.lookup(protocol.KindAutocmd, event)
	if !ok {
		return fmt.Errorf("no autocmd registered for %q", event)
	}
	if pat := reg.opts["pattern"]; pat != "" && !match.Match(file, pat) {
		fmt.Printf("-- %q does not match pattern %q\n", file, pat)
		return nil
	}

	var id *int64
	if reg.sync {
		n := h.nextID.Add(1)
		h.track(n, "autocmd "+event)
		id = &n
		fmt.Printf(">> invoke #%d autocmd %s %s\n", n, event, file)
	} else {
		fmt.Printf(">> invoke autocmd %s %s\n", event, file)
	}
	return h.fr.WriteLine(protocol.EncodeInvoke(protocol.KindAutocmd, event, id, nil, nil, file))
}

func (h *harness) listRegs() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.regs) == 0 {
		fmt.Println("-- no registrations yet")
		return
	}
	for _, r := range h.regs {
		mode := "async"
		if r.sync {
			mode = "sync"
		}
		fmt.Printf("-- %s %s (%s) %v\n", r.kind, r.name, mode, r.opts)
	}
}

func (h *harness) lookup(kind, name string) (registration, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, r := range h.regs {
		if r.kind == kind && r.name == name {
			return r, true
		}
	}
	return registration{}, false
}

func (h *harness) track(id int64, label string) {
	h.mu.Lock()
	h.pending[id] = label
	h.mu.Unlock()
}

// shutdown closes the plugin's input so it drains and exits, then waits
// for the process, killing it after the timeout.
func (h *harness) shutdown() {
	h.stopOnce.Do(func() {
		_ = h.conn.Close()
		if h.proc == nil {
			return
		}

		waited := make(chan error, 1)
		go func() {
			waited <- h.proc.Wait()
		}()
		select {
		case <-waited:
		case <-time.After(h.timeout):
			fmt.Fprintln(os.Stderr, "plugin did not exit, killing")
			_ = h.proc.Process.Kill()
			<-waited
		}
	})
}

// parseRange splits a leading start:end argument from the rest. A
// non-numeric first argument passes through untouched.
func parseRange(args []string) (*[2]int, []string) {
	if len(args) == 0 {
		return nil, args
	}
	s, e, ok := strings.Cut(args[0], ":")
	if !ok {
		return nil, args
	}
	start, err1 := strconv.Atoi(s)
	end, err2 := strconv.Atoi(e)
	if err1 != nil || err2 != nil {
		return nil, args
	}
	return &[2]int{start, end}, args[1:]
}
