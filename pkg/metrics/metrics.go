package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Resource view metrics
	ResourceUnitsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scheduler_resource_units_total",
			Help: "Total number of resource units by status",
		},
		[]string{"status"},
	)

	InstancesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scheduler_instances_total",
			Help: "Total number of placed instances by schedule policy",
		},
		[]string{"policy"},
	)

	BucketOccupancy = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scheduler_bucket_occupancy",
			Help: "Candidate units per (shape, kind) bucket, kind is monopoly or shared",
		},
		[]string{"shape", "kind"},
	)

	// Schedule queue metrics
	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scheduler_queue_depth",
			Help: "Requests currently waiting for a decision, by resource type",
		},
		[]string{"resource_type"},
	)

	SchedulingLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scheduler_decision_duration_seconds",
			Help:    "Time taken to produce a scheduling decision",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"resource_type"},
	)

	ScheduleConflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scheduler_conflicts_total",
			Help: "Total number of schedule conflicts that triggered a free retry",
		},
	)

	ScheduleRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_retries_total",
			Help: "Total number of full re-schedule attempts, by reason",
		},
		[]string{"reason"},
	)

	PreemptionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scheduler_preemptions_total",
			Help: "Total number of victim instances preempted to satisfy a higher-priority request",
		},
	)

	// Instance/group control metrics
	InstancesScheduled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scheduler_instances_scheduled_total",
			Help: "Total number of instances successfully bound",
		},
	)

	InstancesFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_instances_failed_total",
			Help: "Total number of instances that failed scheduling, by error code",
		},
		[]string{"code"},
	)

	CreateAgentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_create_agent_total",
			Help: "Total number of scale-up requests issued to the scaler, by outcome",
		},
		[]string{"outcome"},
	)

	GroupsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scheduler_groups_total",
			Help: "Total number of in-flight groups by status",
		},
		[]string{"status"},
	)

	GroupRollbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_group_rollbacks_total",
			Help: "Total number of group reserve/bind rollbacks, by policy",
		},
		[]string{"policy"},
	)

	// Underlayer transport metrics
	UnderlayerCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scheduler_underlayer_call_duration_seconds",
			Help:    "Time taken for a reserve/bind/unreserve/unbind call to a local proxy",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	UnderlayerCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_underlayer_calls_total",
			Help: "Total number of underlayer calls, by op and outcome",
		},
		[]string{"op", "outcome"},
	)

	LocalsHealthy = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scheduler_locals_healthy",
			Help: "Number of local proxies currently considered healthy by heartbeat",
		},
	)

	// Resource poller metrics
	PollerLagRevisions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scheduler_poller_lag_revisions",
			Help: "Revisions behind the local's reported watermark, per local id",
		},
		[]string{"local_id"},
	)

	PollDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scheduler_poll_duration_seconds",
			Help:    "Time taken for one PullResource round trip",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Raft (HA) metrics
	RaftLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scheduler_raft_is_leader",
			Help: "Whether this domain scheduler replica is the Raft leader (1 = leader, 0 = follower)",
		},
	)

	RaftAppliedIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scheduler_raft_applied_index",
			Help: "Last applied Raft log index",
		},
	)
)

func init() {
	prometheus.MustRegister(
		ResourceUnitsTotal,
		InstancesTotal,
		BucketOccupancy,
		QueueDepth,
		SchedulingLatency,
		ScheduleConflictsTotal,
		ScheduleRetriesTotal,
		PreemptionsTotal,
		InstancesScheduled,
		InstancesFailed,
		CreateAgentTotal,
		GroupsTotal,
		GroupRollbacksTotal,
		UnderlayerCallDuration,
		UnderlayerCallsTotal,
		LocalsHealthy,
		PollerLagRevisions,
		PollDuration,
		RaftLeader,
		RaftAppliedIndex,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
