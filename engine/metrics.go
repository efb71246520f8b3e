package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name: "trustmod_job_duration_sec",
	Help: "Total duration of trust job processing",
}, []string{"job"})

var jobErrorCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "trustmod_job_errors",
	Help: "Number of trust jobs which failed processing",
}, []string{"job"})

var domainsBlockedCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "trustmod_domains_blocked",
	Help: "Number of email domains newly blocked",
})

var usersSuspendedCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "trustmod_users_suspended",
	Help: "Number of users suspended by the domain-block sweep",
})

var ringsDetectedCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "trustmod_reaction_rings_detected",
	Help: "Number of positive reaction ring detections",
})

var ringEscalationCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "trustmod_reaction_ring_escalations",
	Help: "Number of ring detections escalated to moderators",
})

var scoresRefreshedCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "trustmod_scores_refreshed",
	Help: "Number of entity score refreshes",
}, []string{"type"})
