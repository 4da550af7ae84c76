// Package notify carries bid lifecycle events to the notification sink.
// Delivery is fire-and-forget: the bidding and delivery flows never block on
// or fail because of the sink.
package notify

import "time"

const (
	EventBidReceived       = "bid:received"
	EventBidAccepted       = "bid:accepted"
	EventBidRejected       = "bid:rejected"
	EventDeliveryStarted   = "delivery:started"
	EventDeliveryCompleted = "delivery:completed"
)

type Event struct {
	Type       string    `json:"type"`
	PackageID  string    `json:"package_id,omitempty"`
	BidID      string    `json:"bid_id,omitempty"`
	DriverID   string    `json:"driver_id,omitempty"`
	CustomerID string    `json:"customer_id,omitempty"`
	Amount     float64   `json:"amount,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Sink is a downstream consumer of events (message broker, webhook, ...).
type Sink interface {
	Deliver(event Event) error
}
