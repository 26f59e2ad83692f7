// Package progress tracks how far a run has got through its task list and
// estimates the time remaining from the average pace so far.
package progress
