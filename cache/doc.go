// Package cache stores serialized responses by key.
//
// A Cache is a flat key/value store whose entries remember when they were
// written, so readers can reject entries older than a max age. Backends:
//
//   - memory: in-process map, optionally bounded by entry count
//   - file: one file per key under a directory (package cache/file)
//   - redis: go-redis with a key prefix (package cache/redis)
//
// Backends other than memory register themselves when imported:
//
//	import _ "github.com/kbukum/restkit/cache/file"
//
//	c, err := cache.New(cache.Config{Provider: cache.ProviderFile, Dir: dir}, cache.Deps{})
//
// Responses layers response encoding on top of any Cache.
package cache
