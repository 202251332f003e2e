// Package threads maps RTEMS object ids to thread names.
//
// The target publishes two parallel lists per dataset: object ids and
// their names. Build turns them into a read-only Names table that the
// correlator consults while walking that dataset's events.
//
// Lookup rules:
//   - IdleID always resolves to "IDLE"
//   - an id with a usable name resolves to that name
//   - anything else resolves to the id in hex (0x%08x)
package threads
