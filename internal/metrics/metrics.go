// metrics - Prometheus-коллекторы сервиса.
// Все методы безопасны на nil-получателе (метрики выключены).
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "chat_auth"

// Результат успешной операции в label result.
const ResultOK = "ok"

type Metrics struct {
	operations    *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	refreshPurged prometheus.Counter
}

// New создаёт коллекторы и регистрирует их в reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Auth operations by name and result code.",
		}, []string{"op", "result"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method, route pattern and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		refreshPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_purged_total",
			Help:      "Expired refresh-token records removed by the janitor.",
		}),
	}

	reg.MustRegister(m.operations, m.httpDuration, m.refreshPurged)

	return m
}

// Op учитывает завершение операции op с результатом result (ResultOK или код ошибки).
func (m *Metrics) Op(op, result string) {
	if m == nil {
		return
	}

	m.operations.WithLabelValues(op, result).Inc()
}

// HTTP учитывает длительность HTTP-запроса.
func (m *Metrics) HTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}

	m.httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}

// Purged учитывает удалённые janitor-ом записи.
func (m *Metrics) Purged(n int64) {
	if m == nil || n <= 0 {
		return
	}

	m.refreshPurged.Add(float64(n))
}
