package protocol

import (
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Version is the protocol revision announced in the hello message.
const Version = 1

// Message types.
const (
	TypeHello    = "hello"
	TypeRegister = "register"
	TypeInvoke   = "invoke"
	TypeResponse = "response"
	TypeNotify   = "notify"
)

// Handler kinds carried by register and invoke messages.
const (
	KindCommand  = "command"
	KindAutocmd  = "autocmd"
	KindFunction = "function"
)

// Message is one decoded line of wire traffic. Fields are populated
// according to Type; Has* flags distinguish absent from zero.
type Message struct {
	Type string

	// register / invoke
	Kind string
	Name string
	Sync bool
	Opts map[string]string

	// invoke / notify arguments
	Args []string

	// invoke line range, [start, end], 1-based inclusive
	Range    [2]int
	HasRange bool

	// invoke file payload (autocommands)
	File string

	// blocking correlation; HasID marks a blocking invoke
	ID    int64
	HasID bool

	// response outcome: error-first, Result is raw JSON
	Error    string
	HasError bool
	Result   []byte

	// notify
	Method string

	// hello
	Proto   int
	Version string
}

// Decode parses one wire line. It validates the fields each message type
// requires and copies everything out of the input buffer, so the line may
// be reused afterwards.
func Decode(line []byte) (Message, error) {
	if !gjson.ValidBytes(line) {
		return Message{}, ErrInvalidMessage
	}
	root := gjson.ParseBytes(line)
	if !root.IsObject() {
		return Message{}, ErrInvalidMessage
	}

	var m Message
	m.Type = root.Get("type").String()
	if m.Type == "" {
		return Message{}, ErrMissingType
	}

	switch m.Type {
	case TypeHello:
		m.Name = root.Get("name").String()
		m.Version = root.Get("version").String()
		m.Proto = int(root.Get("proto").Int())

	case TypeRegister:
		if err := decodeTarget(root, &m); err != nil {
			return Message{}, err
		}
		m.Sync = root.Get("sync").Bool()
		if opts := root.Get("opts"); opts.IsObject() {
			m.Opts = make(map[string]string)
			opts.ForEach(func(key, value gjson.Result) bool {
				m.Opts[key.String()] = value.String()
				return true
			})
		}

	case TypeInvoke:
		if err := decodeTarget(root, &m); err != nil {
			return Message{}, err
		}
		if id := root.Get("id"); id.Exists() {
			m.ID = id.Int()
			m.HasID = true
		}
		m.Args = decodeArgs(root.Get("args"))
		if rng := root.Get("range"); rng.IsArray() {
			pair := rng.Array()
			if len(pair) == 2 {
				m.Range = [2]int{int(pair[0].Int()), int(pair[1].Int())}
				m.HasRange = true
			}
		}
		m.File = root.Get("file").String()

	case TypeResponse:
		id := root.Get("id")
		if !id.Exists() {
			return Message{}, fmt.Errorf("decode response: %w", ErrMissingID)
		}
		m.ID = id.Int()
		m.HasID = true
		if e := root.Get("error"); e.Exists() && e.Type != gjson.Null {
			m.Error = e.String()
			m.HasError = true
		}
		if r := root.Get("result"); r.Exists() {
			m.Result = []byte(r.Raw)
		}

	case TypeNotify:
		m.Method = root.Get("method").String()
		if m.Method == "" {
			return Message{}, fmt.Errorf("decode notify: %w", ErrMissingMethod)
		}
		m.Args = decodeArgs(root.Get("args"))

	default:
		return Message{}, fmt.Errorf("decode %q: %w", m.Type, ErrUnknownType)
	}

	return m, nil
}

// decodeTarget pulls the kind and name shared by register and invoke.
func decodeTarget(root gjson.Result, m *Message) error {
	m.Kind = root.Get("kind").String()
	if m.Kind == "" {
		return fmt.Errorf("decode %s: %w", m.Type, ErrMissingKind)
	}
	switch m.Kind {
	case KindCommand, KindAutocmd, KindFunction:
	default:
		return fmt.Errorf("decode %s kind %q: %w", m.Type, m.Kind, ErrInvalidKind)
	}
	m.Name = root.Get("name").String()
	if m.Name == "" {
		return fmt.Errorf("decode %s: %w", m.Type, ErrMissingName)
	}
	return nil
}

func decodeArgs(res gjson.Result) []string {
	if !res.IsArray() {
		return nil
	}
	items := res.Array()
	args := make([]string, 0, len(items))
	for _, it := range items {
		args = append(args, it.String())
	}
	return args
}

// EncodeHello builds the plugin's opening announcement.
func EncodeHello(name, version string) []byte {
	b := []byte(`{}`)
	b, _ = sjson.SetBytes(b, "type", TypeHello)
	b, _ = sjson.SetBytes(b, "name", name)
	b, _ = sjson.SetBytes(b, "version", version)
	b, _ = sjson.SetBytes(b, "proto", Version)
	return b
}

// EncodeRegister builds a registration announcement.
func EncodeRegister(kind, name string, sync bool, opts map[string]string) []byte {
	b := []byte(`{}`)
	b, _ = sjson.SetBytes(b, "type", TypeRegister)
	b, _ = sjson.SetBytes(b, "kind", kind)
	b, _ = sjson.SetBytes(b, "name", name)
	b, _ = sjson.SetBytes(b, "sync", sync)
	if len(opts) > 0 {
		b, _ = sjson.SetBytes(b, "opts", opts)
	}
	return b
}

// EncodeInvoke builds a host-side invocation. A non-nil id marks the
// invocation blocking. rng may be nil; file may be empty.
func EncodeInvoke(kind, name string, id *int64, args []string, rng *[2]int, file string) []byte {
	b := []byte(`{}`)
	b, _ = sjson.SetBytes(b, "type", TypeInvoke)
	b, _ = sjson.SetBytes(b, "kind", kind)
	b, _ = sjson.SetBytes(b, "name", name)
	if id != nil {
		b, _ = sjson.SetBytes(b, "id", *id)
	}
	if args != nil {
		b, _ = sjson.SetBytes(b, "args", args)
	}
	if rng != nil {
		b, _ = sjson.SetBytes(b, "range", [2]int{rng[0], rng[1]})
	}
	if file != "" {
		b, _ = sjson.SetBytes(b, "file", file)
	}
	return b
}

// EncodeResponse builds a blocking invocation's reply. Error-first: a
// non-empty errMsg suppresses the result. An unserializable result
// degrades to an error response rather than a broken line.
func EncodeResponse(id int64, errMsg string, result any) []byte {
	b := []byte(`{}`)
	b, _ = sjson.SetBytes(b, "type", TypeResponse)
	b, _ = sjson.SetBytes(b, "id", id)
	if errMsg != "" {
		b, _ = sjson.SetBytes(b, "error", errMsg)
		return b
	}
	withResult, err := sjson.SetBytes(b, "result", result)
	if err != nil {
		b, _ = sjson.SetBytes(b, "error", fmt.Sprintf("unserializable result: %v", err))
		return b
	}
	return withResult
}

// EncodeNotify builds a plugin-to-host notification.
func EncodeNotify(method string, args []any) []byte {
	b := []byte(`{}`)
	b, _ = sjson.SetBytes(b, "type", TypeNotify)
	b, _ = sjson.SetBytes(b, "method", method)
	if args != nil {
		b, _ = sjson.SetBytes(b, "args", args)
	}
	return b
}
