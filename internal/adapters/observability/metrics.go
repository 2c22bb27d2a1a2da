package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const namespace = "appreviews"

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "HTTP requests."},
		[]string{"route", "method", "status"},
	)
	HTTPLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace, Name: "http_request_duration_seconds",
			Help:    "HTTP request duration seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
	ExternalRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "external_requests_total", Help: "Outbound requests."},
		[]string{"service", "endpoint", "status"},
	)
	ExternalLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace, Name: "external_request_duration_seconds",
			Help:    "Outbound request duration seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "endpoint"},
	)
	CacheEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "cache_events_total", Help: "Cache hits/misses/sets/dels."},
		[]string{"cache", "event"}, // event: hit|miss|set|del
	)

	// sync engine
	Polls = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "poll_total", Help: "Per-application poll runs by outcome."},
		[]string{"outcome"}, // ok|fetch_error|store_read|store_write|canceled|panic
	)
	PollLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace, Name: "poll_duration_seconds",
			Help:    "Duration of one application's poll.",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)
	FeedPages = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "feed_pages_total", Help: "Feed pages fetched by result."},
		[]string{"result"}, // ok|empty|fetch_error|decode_error
	)
	ReviewsFetched = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: namespace, Name: "reviews_fetched_total", Help: "Reviews inside the lookback window seen on the feed."},
	)
	ReviewsAdded = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: namespace, Name: "reviews_added_total", Help: "Reviews committed to the store."},
	)
	Cycles = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: namespace, Name: "cycles_total", Help: "Completed scheduler cycles."},
	)
)

// Serve exposes reg on addr/metrics in the background. Empty addr disables it.
func Serve(addr string, reg *prometheus.Registry) *http.Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", MetricsHandler(reg))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("addr", addr).Msg("metrics server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
	return srv
}

func InitRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		HTTPRequests, HTTPLatency,
		ExternalRequests, ExternalLatency,
		CacheEvents,
		Polls, PollLatency, FeedPages, ReviewsFetched, ReviewsAdded, Cycles,
	)
	return reg
}

func MetricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func ObserveHTTP(route, method string, status int, dur time.Duration) {
	HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	HTTPLatency.WithLabelValues(route, method).Observe(dur.Seconds())
}

func ObserveExternal(service, endpoint string, status int, dur time.Duration) {
	ExternalRequests.WithLabelValues(service, endpoint, strconv.Itoa(status)).Inc()
	ExternalLatency.WithLabelValues(service, endpoint).Observe(dur.Seconds())
}

func ObserveCache(cache, event string) { // event: hit|miss|set|del
	CacheEvents.WithLabelValues(cache, event).Inc()
}

func ObservePage(result string) { FeedPages.WithLabelValues(result).Inc() }

func ObservePoll(outcome string, fetched, added int, dur time.Duration) {
	Polls.WithLabelValues(outcome).Inc()
	PollLatency.Observe(dur.Seconds())
	ReviewsFetched.Add(float64(fetched))
	ReviewsAdded.Add(float64(added))
}

func ObserveCycle() { Cycles.Inc() }
