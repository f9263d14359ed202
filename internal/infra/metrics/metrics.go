package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics счётчики каталога, настроек и точек заказа.
type Metrics struct {
	CatalogFetch     *prometheus.CounterVec
	CatalogStale     prometheus.Counter
	CatalogLeaves    prometheus.Gauge
	PreferenceWrites *prometheus.CounterVec
	ReorderTriggered prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CatalogFetch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_fetch_total",
			Help: "Catalog loads from the ERP by result.",
		}, []string{"result"}),
		CatalogStale: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "catalog_stale_responses_total",
			Help: "Catalog responses dropped because a newer load was issued.",
		}),
		CatalogLeaves: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "catalog_leaves",
			Help: "Materials in the latest accepted catalog tree.",
		}),
		PreferenceWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "preference_writes_total",
			Help: "Preference writes by result (ok, error, rolled_back).",
		}, []string{"result"}),
		ReorderTriggered: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "reorder_points_triggered",
			Help: "Reorder points at or below threshold.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.CatalogFetch, m.CatalogStale, m.CatalogLeaves, m.PreferenceWrites, m.ReorderTriggered)
	}
	return m
}

func (m *Metrics) FetchOK()    { m.CatalogFetch.WithLabelValues("ok").Inc() }
func (m *Metrics) FetchError() { m.CatalogFetch.WithLabelValues("error").Inc() }
func (m *Metrics) Stale()      { m.CatalogStale.Inc() }

func (m *Metrics) Leaves(n int) { m.CatalogLeaves.Set(float64(n)) }

func (m *Metrics) PreferenceWrite(result string) {
	m.PreferenceWrites.WithLabelValues(result).Inc()
}

func (m *Metrics) Triggered(n int) { m.ReorderTriggered.Set(float64(n)) }
