package output

import (
	"fmt"
	"time"

	"github.com/mrzor/rtems-tracer/internal/pv"
	"github.com/mrzor/rtems-tracer/internal/sched"
)

// TimestampLayout formats transition timestamps (UTC, microseconds).
const TimestampLayout = "2006-01-02T15:04:05.000000"

// Transition is one context switch from FromID to ToID. State, WaitID,
// EventType and the priorities are those of the switch record.
type Transition struct {
	Timestamp time.Time
	FromID    uint32
	ToID      uint32
	FromName  string
	ToName    string

	PrioCurrent uint8
	PrioReal    uint8
	Priority    sched.PriorityPair

	State      uint32
	StatusText string
	WaitID     uint32
	EventType  uint8
	SubTick    int

	// Dataset identifies the dataset the incoming event came from.
	Dataset pv.Stamp
}

// StateText returns the status text, followed by the wait object when set.
func (t Transition) StateText() string {
	if t.WaitID != 0 {
		return fmt.Sprintf("%s, 0x%08x", t.StatusText, t.WaitID)
	}
	return t.StatusText
}

// FormatTimestamp renders the timestamp with TimestampLayout.
func (t Transition) FormatTimestamp() string {
	return t.Timestamp.UTC().Format(TimestampLayout)
}

// Env returns the expression environment of the transition.
func (t Transition) Env() map[string]any {
	return map[string]any{
		"from":         t.FromName,
		"to":           t.ToName,
		"from_id":      int(t.FromID),
		"to_id":        int(t.ToID),
		"state":        int(t.State),
		"status":       t.StatusText,
		"prio_current": int(t.PrioCurrent),
		"prio_real":    int(t.PrioReal),
		"wait_id":      int(t.WaitID),
		"event_type":   int(t.EventType),
		"sub_tick":     t.SubTick,
	}
}
