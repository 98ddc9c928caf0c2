package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AnnouncementsByState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "church_announcements",
		Help: "Number of announcements by lifecycle state",
	}, []string{"state"})

	AnnouncementOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "church_announcement_operations_total",
		Help: "Announcement lifecycle operations by kind and result",
	}, []string{"operation", "result"})

	NotificationDispatchRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "church_notification_dispatch_runs_total",
		Help: "Urgent announcement dispatch runs by outcome",
	}, []string{"outcome"})

	NotificationSends = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "church_notification_sends_total",
		Help: "Per-recipient notification sends by outcome",
	}, []string{"outcome"})

	NotificationBatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "church_notification_batch_duration_seconds",
		Help:    "Time for every send in a batch to settle",
		Buckets: prometheus.DefBuckets,
	})

	NotificationDispatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "church_notification_dispatch_duration_seconds",
		Help:    "Time from recipient selection to the last settled batch",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	NotificationDispatchesInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "church_notification_dispatches_in_flight",
		Help: "Dispatch runs currently executing",
	})

	StreamClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "church_announcement_stream_clients",
		Help: "Portal sessions connected to the announcement stream",
	})
)

func SetAnnouncementCount(state string, count int64) {
	label := strings.TrimSpace(state)
	if label == "" {
		label = "unknown"
	}
	if count < 0 {
		count = 0
	}
	AnnouncementsByState.WithLabelValues(label).Set(float64(count))
}

func IncAnnouncementOperation(operation string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	AnnouncementOperations.WithLabelValues(operation, result).Inc()
}

func IncDispatchRun(outcome string) {
	NotificationDispatchRuns.WithLabelValues(outcome).Inc()
}

func AddNotificationSends(sent, failed int) {
	if sent > 0 {
		NotificationSends.WithLabelValues("sent").Add(float64(sent))
	}
	if failed > 0 {
		NotificationSends.WithLabelValues("failed").Add(float64(failed))
	}
}

func ObserveBatchDuration(duration time.Duration) {
	NotificationBatchDuration.Observe(duration.Seconds())
}

func ObserveDispatchDuration(duration time.Duration) {
	NotificationDispatchDuration.Observe(duration.Seconds())
}

func DispatchStarted() {
	NotificationDispatchesInFlight.Inc()
}

func DispatchFinished() {
	NotificationDispatchesInFlight.Dec()
}

func SetStreamClients(count int) {
	StreamClients.Set(float64(count))
}
