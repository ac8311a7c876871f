// Package diag provides the diagnostic sink: a best-effort side channel
// for values that have nowhere else to go.
//
// Remote plugins own neither stdout nor stderr in any useful way: stdout
// carries the wire protocol and stderr may be swallowed by the host. The
// sink writes serialized values to a file named by the STORMPLUG_LOG_FILE
// environment variable instead. When the variable is unset the sink is
// disabled and Report does nothing, so plugins can report unconditionally.
//
// Fire-and-forget invocations route both their failures and their stray
// success values here; the transport layer reports malformed traffic here.
//
// # Format
//
// One line per Report call, containing the JSON serialization of the
// value. Errors serialize as their Error() string; values that cannot be
// marshaled fall back to their fmt representation. WithTimestamps wraps
// each line in {"time":...,"value":...}.
//
// # Usage
//
//	sink, _ := diag.FromEnv()
//	defer sink.Close()
//
//	sink.Report(err)
//	sink.Report(map[string]any{"event": "connected"})
package diag
