// Copyright 2025 Nguyen Nhat Nguyen
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package command

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ngnhng/durableflow/api"
)

const metricsNamespace = "durableflow_server"

type handlerMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	inFlight prometheus.Gauge
}

func newHandlerMetrics(reg prometheus.Registerer) (*handlerMetrics, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &handlerMetrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "requests_total",
				Help:      "Total number of requests served",
			},
			[]string{"subject", "result"}, // result: ok or the failure type
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "request_duration_seconds",
				Help:      "Histogram of request handling time in seconds, long polls included",
				Buckets:   []float64{.001, .01, .1, .5, 1, 5, 10, 30, 60},
			},
			[]string{"subject"},
		),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "requests_in_flight",
			Help:      "Number of requests currently being served",
		}),
	}

	var err error
	if m.requests, err = register(reg, m.requests); err != nil {
		return nil, err
	}
	if m.latency, err = register(reg, m.latency); err != nil {
		return nil, err
	}
	if m.inFlight, err = register(reg, m.inFlight); err != nil {
		return nil, err
	}
	return m, nil
}

// register returns the collector already registered under the same
// descriptor, if any, so handlers can share a registry.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *handlerMetrics) observe(subject string, start time.Time, failure *api.Failure) {
	result := "ok"
	if failure != nil {
		result = failure.Type
		if result == "" {
			result = string(failure.Kind)
		}
	}
	m.requests.WithLabelValues(subject, result).Inc()
	m.latency.WithLabelValues(subject).Observe(time.Since(start).Seconds())
}
