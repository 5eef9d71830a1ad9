package redisx

import "time"

const (
	// Cart write-through per terminal: cart:{terminal} -> JSON lines.
	// No TTL; the cart must survive a terminal restart.
	KeyCart = "cart:%s"

	// Cache status order: order_status:{order_id} -> {"status": "..."}
	KeyOrderStatus = "order_status:%s"
)

var TTLStatusCache = 5 * time.Minute
