// Package pv defines the process-variable transport contract the tracer consumes.
//
// A PV is a named, remotely readable, writable and subscribable value exposed
// by the monitored target. The tracer never talks to a concrete transport
// directly; it goes through Client, implemented by pv/natspv for a NATS PV
// gateway and by pv/memory for tests.
package pv

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by operations on a closed client.
	ErrClosed = errors.New("pv: client closed")
	// ErrNotFound is returned by Get when the channel holds no value.
	ErrNotFound = errors.New("pv: channel not found")
)

// Stamp is the transport timestamp attached to a value change.
// All attributes written by the target in one export share the same Stamp.
type Stamp struct {
	Sec  uint32 `json:"sec"`
	Nsec uint32 `json:"nsec"`
}

func (s Stamp) String() string {
	return fmt.Sprintf("%d.%09d", s.Sec, s.Nsec)
}

// IsZero reports whether the stamp is unset.
func (s Stamp) IsZero() bool {
	return s.Sec == 0 && s.Nsec == 0
}

// Update is one monitor callback delivered by the transport.
type Update struct {
	Channel string
	Value   any
	// Status is the transport status; anything but zero means the update
	// must be ignored.
	Status int
	Stamp  Stamp
}

// Subscription is a live monitor on one channel.
type Subscription interface {
	Unsubscribe() error
}

// Client is the transport used by the tracer.
//
// Subscribe callbacks may be invoked concurrently and out of order across
// channels. Get and Put are synchronous.
type Client interface {
	Subscribe(ctx context.Context, channel string, fn func(Update)) (Subscription, error)
	Get(ctx context.Context, channel string) (any, error)
	Put(ctx context.Context, channel string, value any) error
	Close() error
}

// ExportChannel returns the monitored attribute channel name.
func ExportChannel(prefix, attr string) string {
	return prefix + ":export." + attr
}

// ControlChannel returns the control field channel name.
func ControlChannel(prefix, field string) string {
	return prefix + ":control." + field
}
