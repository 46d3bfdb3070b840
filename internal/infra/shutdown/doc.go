// Package shutdown ties a calibration run to process signals.
//
// SIGINT or SIGTERM cancels the run context so the engines stop at their next
// instrument call and their deferred restores run. Cleanup hooks (closing the
// journal, stopping the metrics endpoint) then run in reverse registration
// order under a timeout.
//
//	h := shutdown.NewHandler(5 * time.Second)
//	ctx, stop := h.Context(context.Background())
//	defer stop()
//	h.OnShutdown("journal", j.Close)
//	defer h.Run(ctx)
package shutdown
