/*
Package metrics provides Prometheus metrics collection and exposition for
the scheduler. It instruments the resource view, schedule queues,
instance/group control and the underlayer transport, and exposes them
over an HTTP endpoint for scraping by Prometheus.

# Metrics Catalog

Resource view:

scheduler_resource_units_total{status}:
  - Gauge. Resource units by lifecycle status (NORMAL/EVICTING/...).

scheduler_instances_total{policy}:
  - Gauge. Placed instances by schedule policy (default/monopoly).

scheduler_bucket_occupancy{shape, kind}:
  - Gauge. Candidate unit counts per (mem/cpu ratio, mem value) shape,
    kind is monopoly or shared.

Schedule queue:

scheduler_queue_depth{resource_type}:
  - Gauge. Requests waiting for a decision, by primary/virtual queue.

scheduler_decision_duration_seconds{resource_type}:
  - Histogram. Time to produce one scheduling decision.

scheduler_conflicts_total, scheduler_retries_total{reason},
scheduler_preemptions_total:
  - Counters for conflict retries, full re-schedules, and preemptions.

Instance / group control:

scheduler_instances_scheduled_total,
scheduler_instances_failed_total{code}:
  - Counters for bound instances and terminal failures by error code.

scheduler_create_agent_total{outcome}:
  - Counter. Scale-up requests issued to the external scaler.

scheduler_groups_total{status}, scheduler_group_rollbacks_total{policy}:
  - Gauge/counter for in-flight group state and rollback events.

Underlayer transport:

scheduler_underlayer_call_duration_seconds{op},
scheduler_underlayer_calls_total{op, outcome}, scheduler_locals_healthy:
  - Latency and outcome of reserve/bind/unreserve/unbind calls, and the
    count of local proxies currently passing heartbeat.

Resource poller:

scheduler_poller_lag_revisions{local_id}, scheduler_poll_duration_seconds:
  - How far behind each local's watermark the domain's replica is, and
    how long a PullResource round trip takes.

HA:

scheduler_raft_is_leader, scheduler_raft_applied_index:
  - Whether this replica currently holds leadership and its last
    applied Raft index.

# Usage

	import "github.com/cuemby/yuanrong-scheduler/pkg/metrics"

	metrics.InstancesScheduled.Inc()
	metrics.InstancesFailed.WithLabelValues(string(schederr.CodeResourceNotEnough)).Inc()

	timer := metrics.NewTimer()
	// ... make the underlayer call ...
	timer.ObserveDurationVec(metrics.UnderlayerCallDuration, "reserve")

	http.Handle("/metrics", metrics.Handler())

A Collector (see collector.go) samples point-in-time state — queue
depth, bucket occupancy, raft leadership — on a timer, since those
cannot be updated incrementally at the call site the way counters and
histograms are.
*/
package metrics
