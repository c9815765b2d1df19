// Package logger provides structured logging for restkit using zerolog.
//
// Components receive a *Logger at construction and tag themselves with
// WithComponent. Fields are passed as maps built with Fields:
//
//	log := logger.New(&cfg, "restkit").WithComponent("runner")
//	log.Info("request finished", logger.Fields(logger.FieldRequestID, id, logger.FieldStatus, 200))
package logger
