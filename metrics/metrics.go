// Package metrics exposes prometheus metrics of the index server.
package metrics

import (
	"context"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/cpu"
)

// DefaultObservePeriod is how often Observe refreshes the system gauges.
const DefaultObservePeriod = 1 * time.Second

type Metrics struct {
	reg *prometheus.Registry

	CPU             prometheus.Gauge
	AllocatedMemory prometheus.Gauge
	RequestsNow     prometheus.Gauge
	Requests        *prometheus.CounterVec
	FileErrors      *prometheus.CounterVec
	ResponseSize    prometheus.Histogram
}

// New registers all the metrics in a fresh registry.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		CPU: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "indexserv_cpu_usage",
			Help: "CPU usage",
		}),
		AllocatedMemory: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "indexserv_allocated_memory",
			Help: "Bytes of allocated heap objects",
		}),
		RequestsNow: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "indexserv_requests_in_flight",
			Help: "How many requests are being processed",
		}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "indexserv_requests_total",
			Help: "How many requests were processed, by status code",
		}, []string{"code"}),
		FileErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "indexserv_file_errors_total",
			Help: "How many times the served file could not be read, by kind",
		}, []string{"kind"}),
		ResponseSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "indexserv_response_size_bytes",
			Help:    "Size of the response bodies",
			Buckets: prometheus.ExponentialBuckets(256, 4, 8),
		}),
	}
	m.reg.MustRegister(
		m.CPU,
		m.AllocatedMemory,
		m.RequestsNow,
		m.Requests,
		m.FileErrors,
		m.ResponseSize,
	)
	return m
}

func (m *Metrics) UpdateCPU() {
	p, err := cpu.Percent(0, false)
	if err == nil && len(p) > 0 {
		m.CPU.Set(p[0])
	}
}

func (m *Metrics) UpdateMemory() {
	ms := runtime.MemStats{}
	runtime.ReadMemStats(&ms)
	m.AllocatedMemory.Set(float64(ms.Alloc))
}

// ObserveRequest counts a finished request. Safe on a nil *Metrics.
func (m *Metrics) ObserveRequest(code int, size int64) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(strconv.Itoa(code)).Inc()
	m.ResponseSize.Observe(float64(size))
}

// FileError counts a failed read of the served file. Safe on a nil *Metrics.
func (m *Metrics) FileError(kind string) {
	if m == nil {
		return
	}
	m.FileErrors.WithLabelValues(kind).Inc()
}

// Observe refreshes the CPU and memory gauges every period until ctx is done.
func (m *Metrics) Observe(ctx context.Context, period time.Duration) {
	t := time.NewTicker(period)
	defer t.Stop()

	for {
		m.UpdateCPU()
		m.UpdateMemory()

		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}
