package ports

import (
	"github.com/eleven-am/conduit/internal/domain"
)

// Subscription is one observer's view of the fan-out. Messages arrive on C in
// publish order; C is closed once the subscription is removed.
type Subscription interface {
	ID() string
	C() <-chan domain.Message
	Dropped() int64
}

type EventBus interface {
	Subscribe() Subscription
	// SubscribeRun only delivers messages for runID.
	SubscribeRun(runID string) Subscription
	Unsubscribe(sub Subscription)
	Publish(msg domain.Message)
	Stats() BusStats
	Close()
}

type BusStats struct {
	Subscribers    int   `json:"subscribers"`
	TotalPublished int64 `json:"total_published"`
	TotalDropped   int64 `json:"total_dropped"`
}
