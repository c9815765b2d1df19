// Package taskqueue runs asynchronous steps strictly one after another.
//
// A step starts only after the previous step has settled, and receives the
// previous step's error so it can react to it. A failing step never blocks
// the steps queued after it.
package taskqueue
