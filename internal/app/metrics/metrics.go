package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "lottery_engine",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lottery_engine",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lottery_engine",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	ticketsSold = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lottery_engine",
			Subsystem: "lottery",
			Name:      "tickets_sold_total",
			Help:      "Total number of tickets sold.",
		},
	)

	drawsCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lottery_engine",
			Subsystem: "lottery",
			Name:      "draws_completed_total",
			Help:      "Total number of completed draws.",
		},
		[]string{"outcome"},
	)

	forcedWinners = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lottery_engine",
			Subsystem: "lottery",
			Name:      "forced_winners_total",
			Help:      "Total number of progressively forced jackpot winners.",
		},
	)

	installmentsPaid = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lottery_engine",
			Subsystem: "payouts",
			Name:      "installments_paid_total",
			Help:      "Total number of installment payments settled.",
		},
	)

	jackpotAmount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "lottery_engine",
			Subsystem: "lottery",
			Name:      "jackpot_amount",
			Help:      "Current jackpot pool amount.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		ticketsSold,
		drawsCompleted,
		forcedWinners,
		installmentsPaid,
		jackpotAmount,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordTicketSold counts one sold ticket.
func RecordTicketSold() {
	ticketsSold.Inc()
}

// RecordDrawCompleted counts one completed draw by outcome
// (won, rollover, forced, held).
func RecordDrawCompleted(outcome string, forced bool) {
	if outcome == "" {
		outcome = "unknown"
	}
	drawsCompleted.WithLabelValues(outcome).Inc()
	if forced {
		forcedWinners.Inc()
	}
}

// RecordInstallmentPaid counts one settled installment payment.
func RecordInstallmentPaid() {
	installmentsPaid.Inc()
}

// SetJackpotAmount publishes the current pool size.
func SetJackpotAmount(amount float64) {
	jackpotAmount.Set(amount)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	switch parts[0] {
	case "lottery":
		if len(parts) >= 3 && parts[1] == "coinflip" {
			return "/lottery/coinflip/:id"
		}
		if len(parts) >= 2 {
			return "/lottery/" + parts[1]
		}
		return "/lottery"
	case "admin":
		if len(parts) >= 3 {
			return "/admin/" + parts[1] + "/" + parts[2]
		}
		return "/admin"
	default:
		return "/" + parts[0]
	}
}
