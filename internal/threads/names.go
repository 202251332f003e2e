package threads

import (
	"fmt"
	"strings"
)

// IdleID is the object id of the RTEMS idle thread.
const IdleID uint32 = 0x09010001

// IdleName is displayed for IdleID regardless of the published name.
const IdleName = "IDLE"

// unknownName is what the target publishes for threads it cannot name.
const unknownName = "UNKNOWN"

// Names is an immutable id to name table.
type Names struct {
	names map[uint32]string
}

// Build pairs ids with names by position. Extra entries in the longer list
// are ignored. Later duplicates of an id win.
func Build(ids []uint32, names []string) *Names {
	n := &Names{names: make(map[uint32]string, len(ids))}
	for i, id := range ids {
		if i >= len(names) {
			break
		}
		name := strings.TrimRight(names[i], "\x00 ")
		if name == "" || name == unknownName {
			continue
		}
		n.names[id] = name
	}
	return n
}

// Lookup returns the display name of id.
func (n *Names) Lookup(id uint32) string {
	if id == IdleID {
		return IdleName
	}
	if n != nil {
		if name, ok := n.names[id]; ok {
			return name
		}
	}
	return Hex(id)
}

// Len returns the number of named threads.
func (n *Names) Len() int {
	if n == nil {
		return 0
	}
	return len(n.names)
}

// Hex formats an object id the way unnamed threads are displayed.
func Hex(id uint32) string {
	return fmt.Sprintf("0x%08x", id)
}
