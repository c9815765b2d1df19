// Package errors defines the restkit error taxonomy.
//
// Every failure surfaced by the engine is an *AppError carrying a machine-readable
// ErrorCode. Codes map to the numeric codes used by the server contract, and a small
// set of codes (timeouts and connection failures) is classified as retryable.
package errors
