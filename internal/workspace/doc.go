// Package workspace manages the working directory of a single build run.
//
// By default each run gets a fresh, uniquely named directory
// (rommer-<timestamp>-<run id>) under the system temp dir. A directory can be
// given explicitly instead; it must be absent or empty, and is never cleared
// to make room.
package workspace
