// Package transport hands snapshots from the host to child extension
// processes.
//
// Three backends implement Transport. StreamTransport writes the payload
// straight into the child's stdin after the metadata line. FileTransport
// writes the payload to a file in a process-scoped temp directory and sends
// only its path. SharedMemoryTransport copies the payload into a
// shared-memory segment and sends the segment name; it keeps an active table
// bounded by eviction and disposes released segments after a grace period,
// since a child may still be reading.
//
// Send reports failure as false plus a log record and never panics. Cleanup
// is idempotent. One transport serves a host process for its lifetime and
// is released with Close.
package transport
