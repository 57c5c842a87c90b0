package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

var (
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)
)

var (
	DatabaseQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "database_queries_total",
			Help: "Total database statements by kind",
		},
		[]string{"operation"},
	)

	ClientEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "client_events_total",
			Help: "Client change events by type and outcome",
		},
		[]string{"event", "result"},
	)
)

func Init() {
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(DatabaseQueries)
	prometheus.MustRegister(ClientEventsTotal)
}

func Handler() http.Handler {
	return promhttp.Handler()
}

// InstrumentDB counts every statement gorm runs against db.
func InstrumentDB(db *gorm.DB) error {
	count := func(operation string) func(*gorm.DB) {
		return func(*gorm.DB) {
			DatabaseQueries.WithLabelValues(operation).Inc()
		}
	}

	cb := db.Callback()
	hooks := []struct {
		operation string
		register  func(string, func(*gorm.DB)) error
	}{
		{"create", cb.Create().After("gorm:create").Register},
		{"query", cb.Query().After("gorm:query").Register},
		{"update", cb.Update().After("gorm:update").Register},
		{"delete", cb.Delete().After("gorm:delete").Register},
		{"row", cb.Row().After("gorm:row").Register},
		{"raw", cb.Raw().After("gorm:raw").Register},
	}
	for _, h := range hooks {
		if err := h.register("monitoring:"+h.operation, count(h.operation)); err != nil {
			return err
		}
	}
	return nil
}
