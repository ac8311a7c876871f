// Package bridge connects handler computations to the host's completion
// protocol.
//
// The Keystorm host drives remote plugins through two invocation styles:
//
//   - Blocking ("sync"): the host supplies a one-shot, error-first
//     completion callback and treats the invocation as pending until it
//     fires. Run guarantees the callback fires exactly once, no matter how
//     the computation ends.
//
//   - Non-blocking ("async"): fire-and-forget. The host hears nothing
//     back; Detach routes the computation's outcome, failure or stray
//     success value alike, to a diagnostic Reporter instead.
//
// # Exactly-Once Delivery
//
// Once is the single delivery guard. Every path that can complete a
// blocking invocation funnels through it, so a computation that attempts
// double delivery still reaches the host exactly once. The host-native
// callback argument orders (callback-first for commands and autocommands,
// callback-last for functions) are thin adapters in the plugin package
// over this one guard.
//
// # Containment
//
// Neither Run nor Detach lets a handler failure escape to the caller:
// failures become an error argument to the callback or a report to the
// Reporter. Run never writes to a Reporter and Detach never calls a
// completion callback; the two channels do not cross.
package bridge
