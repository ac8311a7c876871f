package plugin

// Options carries registration options as an open string map. The host
// understands at least "nargs" (accepted argument count) and "range"
// (line range acceptance); autocommand registrations commonly carry
// "pattern". Unknown keys pass through to the host untouched.
type Options map[string]string

// Default option values applied to every registration.
const (
	defaultNargs = "*"
	defaultRange = ""
)

// DefaultOptions returns a fresh copy of the default registration options.
func DefaultOptions() Options {
	return Options{
		"nargs": defaultNargs,
		"range": defaultRange,
	}
}

// Clone returns a copy of o. A nil receiver yields an empty, non-nil map.
func (o Options) Clone() Options {
	out := make(Options, len(o))
	for k, v := range o {
		out[k] = v
	}
	return out
}

// withDefaults returns a new map holding o merged over the defaults.
// The receiver is never modified or retained; registered options are
// immutable once passed in.
func (o Options) withDefaults() Options {
	merged := DefaultOptions()
	for k, v := range o {
		merged[k] = v
	}
	return merged
}
