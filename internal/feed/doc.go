// Package feed fans committed log entries out to live subscribers.
//
// The log store publishes every entry to a Broadcaster while holding its
// writer lock, so Publish never blocks: a subscriber whose buffer is full
// misses the entry and the drop is counted. Subscribers that need every
// entry should reconcile against the store by id.
package feed
