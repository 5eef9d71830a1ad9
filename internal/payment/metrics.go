package payment

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var ordersPlaced = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pos_orders_placed_total",
		Help: "Orders successfully placed, by payment method",
	},
	[]string{"method"},
)
