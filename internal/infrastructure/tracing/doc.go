/*
Package tracing provides lightweight request tracing for the sandbox backend.

# Overview

Each HTTP request gets a span; operations below it (preview runs, upstream
vendor fetches) open child spans from the request context. Finished spans
are written to the structured log by a buffered collector.

# Usage

	// Create tracer
	tracer := tracing.New("vibecoder", logger)
	defer tracer.Close()

	// HTTP middleware
	router.Use(tracing.HTTPMiddleware(tracer))

	// Manual span creation
	span, ctx := tracer.StartSpan(ctx, "runner.render")
	span.SetTag("workspace", wsID.String())
	err := render(ctx)
	tracer.End(span, err)

	// Outbound propagation
	req.SetHeaders(tracing.Headers(ctx))

# Trace Format

Traces use plain HTTP headers for propagation:
- X-Trace-ID: Unique identifier for entire request flow
- X-Span-ID: Identifier for current operation

# Performance

- Buffered span collection (1000 spans), dropped with a warning when full
- Async span processing
- Successful spans log at debug level
*/
package tracing
