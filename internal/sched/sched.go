// Package sched renders RTEMS thread states and priorities.
package sched

import (
	"fmt"
	"strings"
)

// Ready is the text of the zero state, which is not a table entry.
const Ready = "READY"

// Placeholder replaces the current priority when it renders like the real one.
const Placeholder = "---"

// State is one single-bit RTEMS thread state.
type State struct {
	Mask uint32
	Text string
}

// States lists the RTEMS 4.10 thread states in display order.
// It may change across RTEMS versions.
var States = []State{
	{0x00001, "DORMANT"},
	{0x00002, "SUSPENDED"},
	{0x00004, "TRANSIENT"},
	{0x00008, "DELAYING"},
	{0x00010, "WAITING FOR TIME"},
	{0x00020, "WAITING FOR BUFFER"},
	{0x00040, "WAITING FOR SEGMENT"},
	{0x00080, "WAITING FOR MESSAGE"},
	{0x00100, "WAITING FOR EVENT"},
	{0x00200, "WAITING FOR SEMAPHORE"},
	{0x00400, "WAITING FOR MUTEX"},
	{0x00800, "WAITING FOR CONDITION VARIABLE"},
	{0x01000, "WAITING FOR JOIN AT EXIT"},
	{0x02000, "WAITING FOR RPC REPLY"},
	{0x04000, "WAITING FOR PERIOD"},
	{0x08000, "WAITING FOR SIGNAL"},
	{0x10000, "WAITING FOR BARRIER"},
	{0x20000, "WAITING FOR RW LOCK"},
}

// Tables holds the decoding configuration of a session.
// It is built once and never mutated.
type Tables struct {
	States []State
	// RTEMSPriorities renders raw RTEMS priorities instead of mapping them
	// to the 0-99 scale of the EPICS OSI layer.
	RTEMSPriorities bool
}

// DefaultTables returns tables with the RTEMS 4.10 states and mapped priorities.
func DefaultTables() Tables {
	return Tables{States: States}
}

// StatusText joins the text of every state bit set in mask, in table order.
// A mask matching no entry is READY.
func (t Tables) StatusText(mask uint32) string {
	var parts []string
	for _, s := range t.States {
		if mask&s.Mask != 0 {
			parts = append(parts, s.Text)
		}
	}
	if len(parts) == 0 {
		return Ready
	}
	return strings.Join(parts, ", ")
}

// Priority renders a raw priority byte. ok is false when the value has no
// representation on the mapped scale; the text is then the raw value
// prefixed with '*'.
func (t Tables) Priority(raw uint8) (string, bool) {
	if t.RTEMSPriorities {
		return fmt.Sprintf("%03d", raw), true
	}
	mapped := 199 - int(raw)
	if mapped >= 0 && mapped <= 99 {
		return fmt.Sprintf("%03d", mapped), true
	}
	return fmt.Sprintf("*%d", raw), false
}

// PriorityPair is the rendered current/real priority of a thread.
type PriorityPair struct {
	Current   string
	Real      string
	CurrentOK bool
	RealOK    bool
}

// Priorities renders both priorities. The current one is replaced by
// Placeholder when it renders exactly like the real one.
func (t Tables) Priorities(current, real uint8) PriorityPair {
	p := PriorityPair{}
	p.Current, p.CurrentOK = t.Priority(current)
	p.Real, p.RealOK = t.Priority(real)
	if p.Current == p.Real {
		p.Current = Placeholder
		p.CurrentOK = true
	}
	return p
}

// StatusText renders mask with the default tables.
func StatusText(mask uint32) string {
	return DefaultTables().StatusText(mask)
}

// PriorityDisplay renders a raw priority, in RTEMS mode or mapped.
func PriorityDisplay(raw uint8, rtemsMode bool) string {
	s, _ := Tables{RTEMSPriorities: rtemsMode}.Priority(raw)
	return s
}
