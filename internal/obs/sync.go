package obs

import "github.com/prometheus/client_golang/prometheus"

// Resolution outcomes recorded by SyncMetrics.
const (
	OutcomeAuthenticated = "authenticated"
	OutcomeAnonymous     = "anonymous"
	OutcomeError         = "error"
)

// SyncMetrics counts session resolutions performed by a synchronizer.
type SyncMetrics struct {
	resolutions *prometheus.CounterVec
	discarded   prometheus.Counter
}

// NewSyncMetrics creates the synchronizer collectors and registers them with reg.
func NewSyncMetrics(reg prometheus.Registerer) (*SyncMetrics, error) {
	m := &SyncMetrics{
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sessionsync_resolutions_total",
			Help: "Committed session resolutions by outcome.",
		}, []string{"outcome"}),
		discarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sessionsync_discarded_results_total",
			Help: "Resolution results discarded because a newer resolution was issued or the synchronizer closed.",
		}),
	}
	if err := reg.Register(m.resolutions); err != nil {
		return nil, err
	}
	if err := reg.Register(m.discarded); err != nil {
		return nil, err
	}
	return m, nil
}

// Committed records a committed resolution. Safe on a nil receiver.
func (m *SyncMetrics) Committed(outcome string) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(outcome).Inc()
}

// Discarded records a result that was dropped. Safe on a nil receiver.
func (m *SyncMetrics) Discarded() {
	if m == nil {
		return
	}
	m.discarded.Inc()
}
