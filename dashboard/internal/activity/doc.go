// Package activity holds the bounded, newest-first log of monitor events
// shown to operators.
package activity
