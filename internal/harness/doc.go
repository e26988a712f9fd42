// Package harness runs scripted quill sessions and checks their outcome.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: publish_and_read
//	description: "What this scenario validates"
//	steps:
//	  - op: login
//	    username: alice
//	    password: secret
//	  - op: push
//	    value: "<p>Hello</p>"
//	  - op: type
//	    text: " world"
//	  - op: create
//	    title: Hello
//	  - op: list
//	    expect:
//	      ids: [post_0001]
//	assertions:
//	  - type: post_count
//	    count: 1
//	  - type: synced
//
// Steps drive the session (login, logout), the post store (create, list,
// get) and an editor bound to a draft value (push, select, type, format).
// A create without content publishes the draft.
//
// # Assertion Types
//
//   - post_count: number of posts by an author
//   - synced: the editor's markup equals the draft value
//   - surface_writes: how many times a value was written into the editor
//   - trace_contains: a step op, optionally with an outcome, appears in the trace
//   - external: the draft value
//
// # Deterministic Testing
//
// Every run uses a fresh in-memory backend, sequential post ids and a
// stepping clock starting at testutil.Epoch, so the trace of a scenario
// is identical across runs and can be compared with a golden file.
package harness
