// Package metrics provides Prometheus metrics for the task dashboard core.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// planRequestsTotal records calls to the plan-generator endpoint.
	// Labels:
	//   - status: "ok", "network_error", "decode_error", "http_<code>"
	planRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plan_generator_requests_total",
			Help: "Total number of plan generator requests",
		},
		[]string{"status"},
	)

	// tasksGeneratedTotal records tasks persisted from generator output.
	// Labels:
	//   - source: "auto_fill" or "week_seed"
	tasksGeneratedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tasks_generated_total",
			Help: "Total number of generated tasks persisted",
		},
		[]string{"source"},
	)

	// taskMutationsTotal records user mutations on tasks.
	// Labels:
	//   - kind: "complete", "skip", "delete", "add", "update", "reorder", "note"
	taskMutationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "task_mutations_total",
			Help: "Total number of task mutations",
		},
		[]string{"kind"},
	)

	// pendingWrites tracks queued write-behind store writes.
	pendingWrites = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "store_pending_writes",
			Help: "Number of write-behind store writes not yet applied",
		},
	)
)

func init() {
	prometheus.MustRegister(planRequestsTotal)
	prometheus.MustRegister(tasksGeneratedTotal)
	prometheus.MustRegister(taskMutationsTotal)
	prometheus.MustRegister(pendingWrites)
}

func RecordPlanRequest(status string) {
	planRequestsTotal.WithLabelValues(status).Inc()
}

func AddTasksGenerated(source string, n int) {
	tasksGeneratedTotal.WithLabelValues(source).Add(float64(n))
}

func RecordMutation(kind string) {
	taskMutationsTotal.WithLabelValues(kind).Inc()
}

func IncPendingWrites() { pendingWrites.Inc() }
func DecPendingWrites() { pendingWrites.Dec() }
