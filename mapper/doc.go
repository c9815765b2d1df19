// Package mapper translates between wire payloads (JSON-shaped maps) and typed
// domain objects.
//
// Types opt in explicitly: each registration names a type URI and lists the
// fields to map, built from pointer accessors. There is no struct-tag or
// reflection-driven field discovery.
//
//	mapper.Register(reg, mapper.Type[Book]{
//	    URI: mapper.MakeURI("https", "api.example.com", "v1", "Book"),
//	    Fields: []mapper.Field[Book]{
//	        mapper.String("title", func(b *Book) *string { return &b.Title }).Required(),
//	        mapper.Int("pageCount", func(b *Book) *int { return &b.Pages }).Key("page_count"),
//	        mapper.Time("published", func(b *Book) *time.Time { return &b.Published }).Format(time.DateOnly),
//	    },
//	})
//
// Decoding is all-or-nothing: a failure on any field yields an INVALID_PAYLOAD
// error and no partially built object.
package mapper
