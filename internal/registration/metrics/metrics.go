package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the registration module.
type Metrics struct {
	RegistrationsCreated  prometheus.Counter
	RegistrationsRejected *prometheus.CounterVec
	AllocationRetries     prometheus.Counter
	Admissions            prometheus.Counter
	AdmissionsRepeated    prometheus.Counter
	RegisterDuration      prometheus.Histogram
	AdmitDuration         prometheus.Histogram
}

var durationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}

// New creates a new Metrics instance with all registration metrics registered.
func New() *Metrics {
	return &Metrics{
		RegistrationsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "checkin_registrations_created_total",
			Help: "Total number of registrations created",
		}),
		RegistrationsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "checkin_registrations_rejected_total",
			Help: "Registrations rejected by reason (closed, duplicate)",
		}, []string{"reason"}),
		AllocationRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "checkin_allocation_retries_total",
			Help: "Registration code collisions that triggered another allocation",
		}),
		Admissions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "checkin_admissions_total",
			Help: "Total number of successful admissions",
		}),
		AdmissionsRepeated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "checkin_admissions_repeated_total",
			Help: "Admission attempts on already admitted registrations",
		}),
		RegisterDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "checkin_register_duration_seconds",
			Help:    "Duration of Register operations",
			Buckets: durationBuckets,
		}),
		AdmitDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "checkin_admit_duration_seconds",
			Help:    "Duration of Admit operations",
			Buckets: durationBuckets,
		}),
	}
}

func (m *Metrics) IncrementCreated() {
	m.RegistrationsCreated.Inc()
}

func (m *Metrics) IncrementRejected(reason string) {
	m.RegistrationsRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncrementAllocationRetry() {
	m.AllocationRetries.Inc()
}

func (m *Metrics) IncrementAdmitted() {
	m.Admissions.Inc()
}

func (m *Metrics) IncrementRepeated() {
	m.AdmissionsRepeated.Inc()
}

// ObserveRegister records the duration of a Register call.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveRegister(start time.Time) {
	m.RegisterDuration.Observe(time.Since(start).Seconds())
}

// ObserveAdmit records the duration of an Admit call.
func (m *Metrics) ObserveAdmit(start time.Time) {
	m.AdmitDuration.Observe(time.Since(start).Seconds())
}
