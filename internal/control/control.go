// Package control drives the tracing session on the target.
//
// Commands are issued by writing the command name to the A field of the
// control record and then processing the record (PROC=1).
package control

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mrzor/rtems-tracer/internal/pv"
	"github.com/mrzor/rtems-tracer/internal/record"
)

// Commands understood by the target.
const (
	CommandInfo    = "INFO"
	CommandEnable  = "ENABLE"
	CommandDisable = "DISABLE"
)

// Control record fields.
const (
	FieldCommand = "A"
	FieldProcess = "PROC"
	FieldInfo    = "VALA"
)

// Capability is the flag word returned by INFO.
type Capability uint32

// CapAbsoluteTime is set when records carry absolute timestamps.
const CapAbsoluteTime Capability = 1 << 0

// Layout returns the record layout the target produces.
func (c Capability) Layout() record.Layout {
	if c&CapAbsoluteTime != 0 {
		return record.LayoutAbsolute
	}
	return record.LayoutTicks
}

// Channel issues commands to one target.
type Channel struct {
	client pv.Client
	prefix string
	logger *zap.Logger
}

// New creates a control channel for the stats record at prefix.
func New(client pv.Client, prefix string, logger *zap.Logger) *Channel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Channel{client: client, prefix: prefix, logger: logger}
}

// SendCommand writes name and triggers processing. Write failures are
// logged and not retried; the trigger is written even if the command
// write failed.
func (c *Channel) SendCommand(ctx context.Context, name string) {
	if err := c.client.Put(ctx, pv.ControlChannel(c.prefix, FieldCommand), name); err != nil {
		c.logger.Warn("control command write failed",
			zap.String("command", name),
			zap.Error(err))
	}
	if err := c.client.Put(ctx, pv.ControlChannel(c.prefix, FieldProcess), 1); err != nil {
		c.logger.Warn("control trigger write failed",
			zap.String("command", name),
			zap.Error(err))
	}
}

// QueryInfo asks the target for its capability word.
func (c *Channel) QueryInfo(ctx context.Context) (Capability, error) {
	c.SendCommand(ctx, CommandInfo)

	channel := pv.ControlChannel(c.prefix, FieldInfo)
	v, err := c.client.Get(ctx, channel)
	if err != nil {
		return 0, fmt.Errorf("query capability from %s: %w", channel, err)
	}
	flags, err := pv.AsInt64(v)
	if err != nil {
		return 0, fmt.Errorf("query capability from %s: %w", channel, err)
	}

	capability := Capability(uint32(flags))
	c.logger.Info("target capability",
		zap.Uint32("flags", uint32(capability)),
		zap.Stringer("layout", capability.Layout()))
	return capability, nil
}

// SetEnabled starts or stops the export of datasets.
func (c *Channel) SetEnabled(ctx context.Context, enabled bool) {
	command := CommandDisable
	if enabled {
		command = CommandEnable
	}
	c.logger.Info("setting session state", zap.String("command", command))
	c.SendCommand(ctx, command)
}
