// Package outbox implements the transactional outbox: a writer that appends
// messages inside the caller's business transaction, a background dispatcher
// that claims pending messages and publishes them to subscribers, and the
// retry bookkeeping in between.
package outbox
