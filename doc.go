// Package herd provides the coordination runtime for a fleet of
// long-running autonomous agents working on a shared codebase.
//
// Herd is a Go library for coordinating agent fleets over a shared message
// bus. It provides:
//
//   - Address parsing for the seven addressing grammars (direct, team,
//     instance, and broadcast forms)
//   - An in-process message bus with a durable on-disk mirror
//   - A pull-based checkin protocol with staleness-aware peer context
//   - Static agent tier classification controlling message visibility
//   - Adapter ports (Store, Tickets, Notify, Repo, Agent) wired into an
//     operational store, a semantic memory, and a structural graph
//   - A tool registrar exposing the herd_* coordination operations
//
// # Quick Start
//
// Construct a Runtime, register the tools, and issue a checkin:
//
//	rt, err := runtime.New(config.FromEnv(), nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	handlers.RegisterAll(rt.Tools, rt)
//	result, err := rt.Tools.Call(ctx, "herd_checkin", map[string]any{
//	    "status": "ok",
//	    "caller": "mason",
//	})
//
// # Architecture
//
//   - Bus: the in-process queue plus durable mirror (this package)
//   - CheckinRegistry: the heartbeat map (this package)
//   - internal/opstore: the entity/event record store
//   - internal/semantic: vector-embedded memory
//   - internal/graph: the labeled property graph
//   - internal/adapters: the five capability ports and their implementations
//   - internal/handlers: the herd_* tool handlers
//   - internal/session: the subprocess pool for chat-triggered sessions
//   - internal/runtime: the single struct owning all of the above
//
// # Thread Safety
//
// Bus and CheckinRegistry are safe for concurrent use; both serialize
// state-mutating operations behind a single mutex, matching the rest of
// this module's shared-resource policy.
package herd
