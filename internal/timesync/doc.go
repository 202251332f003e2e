// Package timesync converts event time fields to wall-clock time.
//
// Two strategies exist, matching the two record layouts:
//
//   - TickClock: legacy records carry a free-running tick count. Each
//     dataset publishes an anchor (wall time T0 taken at tick K0, plus the
//     tick rate), and an event at tick k is placed at T0 + (k-K0)/rate.
//   - AbsoluteClock: records carry their own seconds/nanoseconds.
//
// The strategy is chosen once per session from the target's capability
// word and never changes afterwards.
package timesync
