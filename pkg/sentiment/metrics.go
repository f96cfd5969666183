// Copyright 2025 Antfly, Inc.
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

package sentiment

import "github.com/prometheus/client_golang/prometheus"

var (
	predictRequestOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "antfly",
			Subsystem: "sentiment",
			Name:      "predict_request_ops_total",
			Help:      "The total number of predict requests by response status.",
		},
		[]string{"status"},
	)
	predictionOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "antfly",
			Subsystem: "sentiment",
			Name:      "prediction_ops_total",
			Help:      "The total number of texts classified, by predicted label.",
		},
		[]string{"label"},
	)
	truncatedInputs = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "antfly",
			Subsystem: "sentiment",
			Name:      "truncated_inputs_total",
			Help:      "The total number of texts cut to the maximum sequence length.",
		},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "antfly",
			Subsystem: "sentiment",
			Name:      "request_duration_seconds",
			Help:      "Duration of sentiment requests.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
		},
		[]string{"endpoint", "status"},
	)
	modelLoadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "antfly",
			Subsystem: "sentiment",
			Name:      "model_load_duration_seconds",
			Help:      "Time to load the sentiment model.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		},
		[]string{"backend"},
	)

	cacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "antfly",
			Subsystem: "sentiment",
			Name:      "cache_hits_total",
			Help:      "The total number of cache hits.",
		},
		[]string{"cache"},
	)
	cacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "antfly",
			Subsystem: "sentiment",
			Name:      "cache_misses_total",
			Help:      "The total number of cache misses.",
		},
		[]string{"cache"},
	)
)

func init() {
	prometheus.MustRegister(
		predictRequestOps,
		predictionOps,
		truncatedInputs,
		requestDuration,
		modelLoadDuration,
		cacheHits,
		cacheMisses,
	)
}

// RecordPredictRequest records a finished predict request.
func RecordPredictRequest(status string) {
	predictRequestOps.WithLabelValues(status).Inc()
}

// RecordPrediction records the label assigned to one text.
func RecordPrediction(prediction int, truncated bool) {
	label := "negative"
	if prediction == 1 {
		label = "positive"
	}
	predictionOps.WithLabelValues(label).Inc()
	if truncated {
		truncatedInputs.Inc()
	}
}

// RecordRequestDuration records the duration of a request.
func RecordRequestDuration(endpoint, status string, seconds float64) {
	requestDuration.WithLabelValues(endpoint, status).Observe(seconds)
}

// RecordModelLoadDuration records time to load the model.
func RecordModelLoadDuration(backend string, seconds float64) {
	modelLoadDuration.WithLabelValues(backend).Observe(seconds)
}

// RecordCacheHit records a cache hit.
func RecordCacheHit(cacheType string) {
	cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss records a cache miss.
func RecordCacheMiss(cacheType string) {
	cacheMisses.WithLabelValues(cacheType).Inc()
}
