package metrics

import "expvar"

var (
	TickRuns        = expvar.NewInt("tick_runs")
	TickErrors      = expvar.NewInt("tick_errors")
	OrdersSubmitted = expvar.NewInt("orders_submitted")
	OrdersDenied    = expvar.NewInt("orders_denied")
	ReconcileRuns   = expvar.NewInt("reconcile_runs")
	ReconcileErrors = expvar.NewInt("reconcile_errors")
	SnapshotSaves   = expvar.NewInt("snapshot_saves")
)
