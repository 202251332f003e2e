// Package dataset reassembles trace exports from per-attribute PV updates.
//
// The target publishes one export as a wave of attribute PVs (tick rate,
// timestamp, event count, chunk payloads, thread id/name lists, ...), all
// stamped with the same transport timestamp. That timestamp is the dataset
// Key. Updates arrive independently and in any order.
//
// State Machine (Manager):
//
//	┌─────────┐
//	│  Start  │
//	└────┬────┘
//	     │
//	     │ OnValue (unknown key)
//	     ▼
//	┌───────────┐
//	│ Buffering │ ◄──┐
//	└────┬──┬───┘    │ More attributes
//	     │  │        │
//	     │  └────────┘
//	     │
//	     │ received tags == required tags
//	     ▼
//	┌──────────┐        Expire(maxAge)        ┌─────────┐
//	│ Complete │   (from Buffering, idle) ──► │ Expired │
//	└────┬─────┘                              └────┬────┘
//	     │ returned once, evicted                  │
//	     ▼                                         ▼
//	┌──────────────────────────────────────────────────┐
//	│ Retired: later updates with this key are invalid │
//	└──────────────────────────────────────────────────┘
//
// A complete Dataset is decoded with Dataset.Decode, which concatenates the
// chunk payloads and hands the bytes to record.Decode.
package dataset
