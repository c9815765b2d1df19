// Package filelock coordinates access to files by path.
//
// Table gives in-process reader/writer locks keyed by path: any number of
// readers or one writer per path, with table entries reference counted and
// dropped when the last holder leaves. Acquire adds an advisory lock file
// next to the path so that separate processes sharing a directory are
// serialized too.
package filelock
