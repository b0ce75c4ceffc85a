package gateway

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts requests, retries and token refreshes. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	Requests  *prometheus.CounterVec
	Retries   *prometheus.CounterVec
	Refreshes *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg when it is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kinopub",
			Name:      "requests_total",
			Help:      "HTTP requests sent to the service, by API, method and status code.",
		}, []string{"api", "method", "code"}),
		Retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kinopub",
			Name:      "request_retries_total",
			Help:      "Automatic retries of idempotent requests.",
		}, []string{"api"}),
		Refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kinopub",
			Name:      "token_refreshes_total",
			Help:      "Outbound token refresh exchanges, by result.",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(m.Collectors()...)
	}
	return m
}

// Collectors returns all metrics as collectors for registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	if m == nil {
		return nil
	}
	return []prometheus.Collector{m.Requests, m.Retries, m.Refreshes}
}

// ObserveRefresh records the outcome of a token refresh. It matches the
// signature expected by auth.WithRefreshObserver.
func (m *Metrics) ObserveRefresh(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Refreshes.WithLabelValues(result).Inc()
}

func (m *Metrics) onResponse(api API, method string, status int) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(api.String(), method, strconv.Itoa(status)).Inc()
}

func (m *Metrics) onRetry(api API) {
	if m == nil {
		return
	}
	m.Retries.WithLabelValues(api.String()).Inc()
}
