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

package internal

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "durableflow_worker"

// workerMetrics are the Prometheus collectors a worker reports to.
type workerMetrics struct {
	decisionTasks    *prometheus.CounterVec
	decisionLatency  *prometheus.HistogramVec
	nonDeterminism   *prometheus.CounterVec
	activityTasks    *prometheus.CounterVec
	activityLatency  *prometheus.HistogramVec
	pollErrors       *prometheus.CounterVec
	activitiesActive prometheus.Gauge
}

func newWorkerMetrics(reg prometheus.Registerer, taskList string) (*workerMetrics, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	labels := prometheus.Labels{"task_list": taskList}
	m := &workerMetrics{
		// decisionTasks counts processed decision tasks by outcome.
		decisionTasks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   metricsNamespace,
				Name:        "decision_tasks_total",
				Help:        "Total number of decision tasks processed",
				ConstLabels: labels,
			},
			[]string{"workflow_type", "status"}, // status: completed, failed
		),
		decisionLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   metricsNamespace,
				Name:        "decision_task_duration_seconds",
				Help:        "Histogram of decision task replay duration in seconds",
				Buckets:     []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
				ConstLabels: labels,
			},
			[]string{"workflow_type"},
		),
		nonDeterminism: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   metricsNamespace,
				Name:        "non_determinism_total",
				Help:        "Total number of decision tasks failed by non-deterministic replay",
				ConstLabels: labels,
			},
			[]string{"workflow_type"},
		),
		activityTasks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   metricsNamespace,
				Name:        "activity_tasks_total",
				Help:        "Total number of activity tasks executed",
				ConstLabels: labels,
			},
			[]string{"activity_type", "status"}, // status: completed, failed, panicked
		),
		activityLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   metricsNamespace,
				Name:        "activity_duration_seconds",
				Help:        "Histogram of activity execution duration in seconds",
				Buckets:     prometheus.DefBuckets,
				ConstLabels: labels,
			},
			[]string{"activity_type"},
		),
		pollErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   metricsNamespace,
				Name:        "poll_errors_total",
				Help:        "Total number of failed task polls",
				ConstLabels: labels,
			},
			[]string{"task_type"}, // task_type: decision, activity
		),
		activitiesActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace:   metricsNamespace,
				Name:        "activities_active",
				Help:        "Number of activities currently executing",
				ConstLabels: labels,
			},
		),
	}

	var err error
	if m.decisionTasks, err = register(reg, m.decisionTasks); err != nil {
		return nil, err
	}
	if m.decisionLatency, err = register(reg, m.decisionLatency); err != nil {
		return nil, err
	}
	if m.nonDeterminism, err = register(reg, m.nonDeterminism); err != nil {
		return nil, err
	}
	if m.activityTasks, err = register(reg, m.activityTasks); err != nil {
		return nil, err
	}
	if m.activityLatency, err = register(reg, m.activityLatency); err != nil {
		return nil, err
	}
	if m.pollErrors, err = register(reg, m.pollErrors); err != nil {
		return nil, err
	}
	if m.activitiesActive, err = register(reg, m.activitiesActive); err != nil {
		return nil, err
	}
	return m, nil
}

// register adds c to reg. Workers sharing a registry and task list share the
// collector registered first.
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

func (m *workerMetrics) observeDecision(workflowType string, start time.Time, err error) {
	status := "completed"
	if err != nil {
		status = "failed"
		if errors.Is(err, ErrNonDeterministicBehavior) {
			m.nonDeterminism.WithLabelValues(workflowType).Inc()
		}
	}
	m.decisionTasks.WithLabelValues(workflowType, status).Inc()
	m.decisionLatency.WithLabelValues(workflowType).Observe(time.Since(start).Seconds())
}

func (m *workerMetrics) observeActivity(activityType, status string, start time.Time) {
	m.activityTasks.WithLabelValues(activityType, status).Inc()
	m.activityLatency.WithLabelValues(activityType).Observe(time.Since(start).Seconds())
}
