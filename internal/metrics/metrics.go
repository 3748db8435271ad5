// Package metrics exposes runtime counters via expvar.
package metrics

import "expvar"

var (
	RunsTotal          = expvar.NewInt("runs_total")
	RunsSkipped        = expvar.NewInt("runs_skipped")
	RunsResumed        = expvar.NewInt("runs_resumed")
	PlansTotal         = expvar.NewInt("plans_total")
	PlanFailures       = expvar.NewInt("plan_failures")
	DeploysTotal       = expvar.NewInt("deploys_total")
	DeployFailures     = expvar.NewInt("deploy_failures")
	GateBlocks         = expvar.NewInt("gate_blocks")
	GateRejections     = expvar.NewInt("gate_rejections")
	ApprovalsRecorded  = expvar.NewInt("approvals_recorded")
	LockContention     = expvar.NewInt("lock_contention")
	AlertsDispatched   = expvar.NewInt("alerts_dispatched")
	AlertsFailed       = expvar.NewInt("alerts_failed")
)
