// Package rpc implements plugin.Host over the stormplug wire protocol.
//
// A Client owns one connection to the editor: the process's standard
// streams when the host spawned the plugin, or a TCP connection when the
// host exposes an address. Registrations are announced as they happen;
// Serve then reads invocations until the host closes the connection.
//
// # Dispatch
//
// Every invocation runs on its own goroutine, so a slow handler never
// stalls the read loop and concurrent invocations proceed independently,
// in no particular order. Blocking invocations carry an id; their
// completion callback writes the correlated response, exactly once.
// Fire-and-forget invocations never produce a response.
//
// Malformed or unexpected lines are counted, reported to the diagnostic
// sink, and skipped; a broken inbound line never takes the plugin down.
//
// # Shutdown
//
// Serve returns nil when the host closes the connection, after giving
// in-flight blocking invocations a grace period to deliver their
// responses. Cancelling the context abandons them instead.
//
// # Usage
//
//	client, err := rpc.FromEnv()
//	if err != nil {
//	    return err
//	}
//	p, _ := plugin.New(client)
//	// ... registrations ...
//	return client.Serve(context.Background())
package rpc
