// Package dedupe remembers recently processed queue message ids so
// redelivered mentions are dropped within a configurable window.
package dedupe
