// Package observability wires OpenTelemetry tracing and metrics into the
// runner, the durable queue and the controller.
//
// Without Init the global no-op providers are used and nothing is exported.
//
//	p, err := observability.Init(ctx, observability.Config{Enabled: true, Endpoint: "localhost:4318"})
//	defer p.Shutdown(ctx)
//
//	ctx, span := observability.StartSpan(ctx, observability.SpanRun)
//	defer observability.EndSpan(span, err)
package observability
