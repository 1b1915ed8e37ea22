// Package metrics exports message and worker figures to Prometheus.
package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/NamiraNet/handoff/internal/worker"
	prom "github.com/prometheus/client_golang/prometheus"
)

const defaultNamespace = "handoff"

// Exporter records per-message outcomes as they reach the board.
type Exporter struct {
	elapsedSeconds *prom.HistogramVec
	messagesTotal  *prom.CounterVec
}

func NewExporter(namespace string, reg prom.Registerer) (*Exporter, error) {
	if namespace == "" {
		namespace = defaultNamespace
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}

	elapsedVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "message_elapsed_seconds",
		Help:      "Time from queueing a message to its result, queue wait included.",
		Buckets:   prom.ExponentialBuckets(0.0005, 2, 14),
	}, []string{"status"})
	messagesVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "messages_total",
		Help:      "Messages that came back from the worker.",
	}, []string{"status"})

	var err error
	if elapsedVec, err = registerCollector(reg, elapsedVec); err != nil {
		return nil, err
	}
	if messagesVec, err = registerCollector(reg, messagesVec); err != nil {
		return nil, err
	}

	return &Exporter{elapsedSeconds: elapsedVec, messagesTotal: messagesVec}, nil
}

func (e *Exporter) ObserveMessage(status string, elapsed time.Duration) {
	if e == nil {
		return
	}
	if status == "" {
		status = "unknown"
	}
	e.messagesTotal.WithLabelValues(status).Inc()
	e.elapsedSeconds.WithLabelValues(status).Observe(elapsed.Seconds())
}

type StatsProvider interface {
	Stats() worker.Stats
}

// workerCollector reads a fresh Stats snapshot on every scrape.
type workerCollector struct {
	provider StatsProvider

	submitted   *prom.Desc
	executed    *prom.Desc
	failed      *prom.Desc
	discarded   *prom.Desc
	queueLength *prom.Desc
	state       *prom.Desc
	uptime      *prom.Desc
}

// RegisterWorker exposes the worker's counters under namespace.
func RegisterWorker(reg prom.Registerer, namespace string, provider StatsProvider) error {
	if namespace == "" {
		namespace = defaultNamespace
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}

	desc := func(name, help string) *prom.Desc {
		return prom.NewDesc(prom.BuildFQName(namespace, "worker", name), help, []string{"worker"}, nil)
	}
	c := &workerCollector{
		provider:    provider,
		submitted:   desc("submitted_total", "Tasks accepted by the worker."),
		executed:    desc("executed_total", "Tasks that ran to completion."),
		failed:      desc("failed_total", "Tasks that panicked."),
		discarded:   desc("discarded_total", "Queued tasks dropped by a stop."),
		queueLength: desc("queue_length", "Tasks waiting to be popped."),
		state:       desc("state", "0 created, 1 running, 2 stopping, 3 stopped."),
		uptime:      desc("uptime_seconds", "Time since the worker started."),
	}
	if err := reg.Register(c); err != nil {
		return fmt.Errorf("register worker collector: %w", err)
	}
	return nil
}

func (c *workerCollector) Describe(ch chan<- *prom.Desc) {
	ch <- c.submitted
	ch <- c.executed
	ch <- c.failed
	ch <- c.discarded
	ch <- c.queueLength
	ch <- c.state
	ch <- c.uptime
}

func (c *workerCollector) Collect(ch chan<- prom.Metric) {
	s := c.provider.Stats()
	ch <- prom.MustNewConstMetric(c.submitted, prom.CounterValue, float64(s.Submitted), s.Name)
	ch <- prom.MustNewConstMetric(c.executed, prom.CounterValue, float64(s.Executed), s.Name)
	ch <- prom.MustNewConstMetric(c.failed, prom.CounterValue, float64(s.Failed), s.Name)
	ch <- prom.MustNewConstMetric(c.discarded, prom.CounterValue, float64(s.Discarded), s.Name)
	ch <- prom.MustNewConstMetric(c.queueLength, prom.GaugeValue, float64(s.QueueLength), s.Name)
	ch <- prom.MustNewConstMetric(c.state, prom.GaugeValue, float64(s.State), s.Name)
	ch <- prom.MustNewConstMetric(c.uptime, prom.GaugeValue, s.Uptime.Seconds(), s.Name)
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
