package orders

const (
	TopicOrderPlaced = "order.placed"
)

// Partition key = order_id so all events for one order keep their order.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
