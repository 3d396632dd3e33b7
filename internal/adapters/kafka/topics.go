package kafka

// Topic definitions for event streaming
const (
	TopicPositionOpened     = "positions.opened"
	TopicPositionClosed     = "positions.closed"
	TopicPositionLiquidated = "positions.liquidated"

	TopicOrderPlaced    = "orders.placed"
	TopicOrderFilled    = "orders.filled"
	TopicOrderCancelled = "orders.cancelled"
)
