// Package controller arbitrates between the response cache and the network
// according to a request's cache policy.
//
// Policies:
//
//	IgnoreCache       network only, never cached
//	NetworkOnly       network only, successful responses written to the cache
//	CacheOnly         cache only; a miss is OBJECT_NOT_FOUND
//	CacheThenNetwork  cached response if any, then the network response
//	CacheElseNetwork  cached response, or the network on a miss
//	NetworkElseCache  network response, or the cache when the network fails
//
// Every successful network response of a cacheable method is written to the
// cache, except under IgnoreCache. A Controller built without a cache treats
// every lookup as a miss.
package controller
