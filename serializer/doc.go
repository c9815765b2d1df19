// Package serializer turns a raw exchange (status, headers, body) into a
// rest.Response: non-2xx statuses become taxonomy errors, JSON bodies are
// parsed, and when the request asks for object mapping the parsed data is
// decoded into registered domain types.
package serializer
