// Package harness runs evaluation scenarios against assembled pipelines.
//
// A scenario loads pipeline definitions, drives them through a sequence of
// steps (evaluate, change a parameter, edit source data, reload a frame)
// and checks both the produced states and the journal of cache events the
// steps caused.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: scale_twice
//	description: "Second evaluation is served from the cache"
//	pipelines: ../pipelines        # CUE directory, or inline:
//	definition: |
//	  pipeline: atoms: { source: {...}, modifiers: [...] }
//	steps:
//	  - evaluate: atoms
//	    time: 0
//	    expect:
//	      status: success
//	      values: { Position: [2, 4, 6] }
//	  - set: { pipeline: atoms, modifier: 0, param: factor, value: 3 }
//	  - reload: { pipeline: frames, frame: 2 }
//	  - update: { pipeline: atoms, property: Position, values: [1, 1, 1] }
//	assertions:
//	  - type: trace_count
//	    node: Scale
//	    kind: started
//	    count: 1
//	  - type: trace_order
//	    events: ["Scale:started", "Scale:committed", "Scale:hit"]
//	  - type: final_state
//	    pipeline: atoms
//	    time: 0
//	    expect: { values: { Position: [3, 6, 9] } }
//
// # Assertion Types
//
//   - trace_contains: an event with the node and kind was journaled
//   - trace_order: events appear in the given order (not necessarily adjacent)
//   - trace_count: a node journaled exactly N events of a kind
//   - final_state: the pipeline's output after all steps matches expect
//
// # Deterministic Testing
//
// Everything runs inline on the calling goroutine with a fixed run id and a
// fresh logical clock, and the journal lives in an in-memory SQLite store.
// Two runs of the same scenario produce byte-identical traces, which is what
// the golden snapshots in testdata/golden rely on.
package harness
