package output

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
)

// Console prints one line per transition:
//
//	<timestamp>: <from> -> <to> <current>/<real> (<state>)
type Console struct {
	mu        sync.Mutex
	w         io.Writer
	highlight *color.Color
}

// NewConsole writes to w. With colorize set, priorities that cannot be
// represented on the mapped scale are printed in red.
func NewConsole(w io.Writer, colorize bool) *Console {
	highlight := color.New(color.FgRed, color.Bold)
	if colorize {
		highlight.EnableColor()
	} else {
		highlight.DisableColor()
	}
	return &Console{w: w, highlight: highlight}
}

// Format renders a transition without a trailing newline.
func (c *Console) Format(t Transition) string {
	current := t.Priority.Current
	if !t.Priority.CurrentOK {
		current = c.highlight.Sprint(current)
	}
	base := t.Priority.Real
	if !t.Priority.RealOK {
		base = c.highlight.Sprint(base)
	}
	return fmt.Sprintf("%s: %-20s -> %-20s %s/%s (%s)",
		t.FormatTimestamp(), t.FromName, t.ToName, current, base, t.StateText())
}

// Emit implements Emitter.
func (c *Console) Emit(t Transition) error {
	line := c.Format(t)

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := fmt.Fprintln(c.w, line); err != nil {
		return fmt.Errorf("write transition: %w", err)
	}
	return nil
}

// Close implements Emitter. The writer is left open.
func (c *Console) Close() error {
	return nil
}
