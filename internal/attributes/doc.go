// Package attributes compiles and evaluates expr-lang expressions against
// thread transitions and the tracing session.
//
// Transition expressions see the following variables:
//
//	from, to            thread names
//	from_id, to_id      RTEMS object ids
//	state, status       raw state mask and its text
//	prio_current        raw current priority of the outgoing thread
//	prio_real           raw real priority of the outgoing thread
//	wait_id             object the outgoing thread waits on, 0 if none
//	event_type          record type tag
//	sub_tick            events earlier in the same tick
//
// Session expressions (trace and parent span ids) see top, prefix and
// session_id.
//
// Four evaluators:
//   - Filter: boolean expression selecting which transitions are emitted
//   - Evaluator: custom span attributes, map results expanded by key
//   - TraceIDEvaluator: trace id of the session (32 hex chars)
//   - ParentIDEvaluator: parent span id of the session (16 hex chars)
//
// Invalid trace IDs are hashed with SHA-256 to produce valid IDs.
// Invalid parent IDs result in a null parent (zero span ID).
package attributes
