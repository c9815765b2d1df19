// Package session stores session credentials for the client.
//
// A Store keeps session tokens and opaque data under identifiers and tracks
// which identifier holds the current session. MemoryStore lives only in the
// process; FileStore keeps everything in a single file encrypted with
// XChaCha20-Poly1305 under an argon2id-derived key.
//
// Tokens that are JWTs carrying an expiry in the past are treated as absent.
//
// Every Store also implements transport.TokenSource, so the HTTP transport
// can attach the current session token:
//
//	store, _ := session.Open(cfg, locks, log)
//	tr, _ := transport.NewHTTP(apiCfg, transport.WithTokenSource(store))
package session
