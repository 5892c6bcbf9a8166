// Package notify forwards committed log entries to a Matrix room.
//
// A Notifier subscribes to the live feed for the configured levels and posts
// one text message per entry, with a deep link back to the gateway. Delivery
// is retried with exponential backoff. Failures are logged and dropped; they
// never reach the log store.
package notify
