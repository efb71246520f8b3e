package notify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var notificationSentCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "trustmod_moderator_notifications_sent",
	Help: "Number of moderator notifications delivered",
})

var notificationErrorCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "trustmod_moderator_notification_errors",
	Help: "Number of moderator notification delivery failures",
})
