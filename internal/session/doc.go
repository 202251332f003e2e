// Package session runs one tracing session against a target.
//
// Architecture:
//
//	┌─────────────────────────────────────────┐
//	│   PV transport (pv.Client)              │
//	│   one monitor per export attribute      │
//	└─────────────────┬───────────────────────┘
//	                  │ callbacks, any goroutine
//	                  ▼
//	┌─────────────────────────────────────────┐
//	│   bounded queue                         │  ← single consumer
//	└─────────────────┬───────────────────────┘
//	                  │
//	                  ▼
//	┌─────────────────────────────────────────┐
//	│   Process                               │
//	│   - drops bad status / unknown channel  │
//	│   - dataset.Manager.OnValue             │
//	│   - stale key → invalid, warn           │
//	└─────────┬───────────────────────────────┘
//	          │ complete dataset
//	          ▼
//	    Dataset.Decode ──→ correlator ──→ output.Emitter
//
// Start queries the target capability, which fixes the record layout and
// timestamp strategy for the whole session, subscribes, starts the loop and
// enables the export. Stop disables the export, unsubscribes and stops the
// loop; updates still queued at that point are dropped.
package session
