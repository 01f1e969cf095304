// Package telemetry wires OpenTelemetry tracing and metrics export for the
// embedlife daemon.
//
// Every other package obtains its tracer and meter from the otel globals,
// so spans such as "search.Search" or "storemanager.ReindexStore" reach the
// collector once New has installed the providers:
//
//	tel, err := telemetry.New(ctx, cfg, logger)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
// Disabled or failing telemetry degrades to the otel no-op providers.
// Tests use NewTestTelemetry for in-memory span and metric capture.
package telemetry
