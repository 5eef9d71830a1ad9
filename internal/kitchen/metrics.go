package kitchen

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	feedEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kitchen_feed_events_total",
		Help: "Push events appended to the kitchen queue",
	})
	feedDuplicates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kitchen_feed_duplicates_total",
		Help: "Push events dropped as duplicates by order id",
	})
)
