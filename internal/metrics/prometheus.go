package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

var (
	ActivitiesTrackedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_activities_tracked_total",
		Help: "Total number of tracked request activities.",
	})
	SessionsCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_sessions_created_total",
		Help: "Total number of session records created.",
	})
	SuspiciousFlaggedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_suspicious_flagged_total",
		Help: "Total number of sessions flagged suspicious.",
	})
	TrackingErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_tracking_errors_total",
		Help: "Total number of tracking attempts abandoned on error.",
	})
	AlertsSentTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_alerts_sent_total",
		Help: "Total number of security alerts handed to the sink.",
	})
	SessionsExpiredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_sessions_expired_total",
		Help: "Total number of sessions expired by the sweeper.",
	})
	SessionsPurgedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_sessions_purged_total",
		Help: "Total number of terminated sessions purged by the sweeper.",
	})
)

// Register registers the engine's Prometheus metrics with the given
// registry. It should be called once at application startup.
func Register(reg prometheus.Registerer) {
	if reg == nil {
		log.Error().Msg("Prometheus registry is nil, cannot register custom metrics.")
		return
	}
	for _, c := range []prometheus.Collector{
		ActivitiesTrackedTotal,
		SessionsCreatedTotal,
		SuspiciousFlaggedTotal,
		TrackingErrorsTotal,
		AlertsSentTotal,
		SessionsExpiredTotal,
		SessionsPurgedTotal,
	} {
		if err := reg.Register(c); err != nil {
			log.Warn().Err(err).Msg("Failed to register metric")
		}
	}
}
