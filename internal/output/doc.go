// Package output renders thread transitions.
//
// A Transition is one context switch: the outgoing thread (with its state,
// wait object and priorities at the moment it was switched out) and the
// incoming thread. Emitters consume transitions:
//   - Console: one human-readable line per transition
//   - OTELFormatter: one span per thread run interval
//   - Multi: fan-out to several emitters
//   - Filtered: drops transitions rejected by an expression filter
//
// Emitters are pure sinks. Decoding, time correlation and name resolution
// happen upstream in the correlator.
package output
