package notification

import (
	"context"
	"strings"
	"time"

	"funding/internal/domain"
	"funding/internal/pkg/rabbitmq"
)

const (
	DefaultExchange = "donations"

	EventStatusChanged = "donation.status_changed"
	EventSnapshot      = "donation.snapshot"
)

const publishTimeout = 5 * time.Second

// Event is the payload sent over websockets and to the broker.
type Event struct {
	Type       string                       `json:"type"`
	DonationID int64                        `json:"donation_id"`
	Status     domain.DonationStatus        `json:"status"`
	Change     *domain.DonationStatusChange `json:"change,omitempty"`
	SentAt     time.Time                    `json:"sent_at"`
}

func SnapshotEvent(d *domain.Donation) Event {
	return Event{Type: EventSnapshot, DonationID: d.ID, Status: d.Status, SentAt: time.Now().UTC()}
}

func ChangeEvent(change domain.DonationStatusChange) Event {
	return Event{
		Type:       EventStatusChanged,
		DonationID: change.DonationID,
		Status:     change.To,
		Change:     &change,
		SentAt:     time.Now().UTC(),
	}
}

// RoutingKey is donation.<status>, e.g. donation.completed.
func RoutingKey(status domain.DonationStatus) string {
	return "donation." + strings.ToLower(string(status))
}

// Notifier fans committed donation transitions out to the broker and to
// live websocket subscribers. Delivery failures are logged and never
// returned to the reconciliation path.
type Notifier struct {
	publisher rabbitmq.Publisher
	hub       *Hub
	exchange  string
	loggerf   func(format string, args ...interface{})
}

func NewNotifier(publisher rabbitmq.Publisher, hub *Hub, exchange string, loggerf func(format string, args ...interface{})) *Notifier {
	if loggerf == nil {
		loggerf = func(string, ...interface{}) {}
	}
	if publisher == nil {
		publisher = rabbitmq.Fallback{}
	}
	if exchange == "" {
		exchange = DefaultExchange
	}
	return &Notifier{publisher: publisher, hub: hub, exchange: exchange, loggerf: loggerf}
}

func (n *Notifier) DonationStatusChanged(ctx context.Context, change domain.DonationStatusChange) {
	event := ChangeEvent(change)

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	key := RoutingKey(change.To)
	if err := n.publisher.Publish(pubCtx, n.exchange, key, event); err != nil {
		n.loggerf("level=error msg=failed to publish donation event donation_id=%d routing_key=%s err=%v", change.DonationID, key, err)
	}

	if n.hub != nil {
		delivered := n.hub.Broadcast(change.DonationID, event)
		n.loggerf("level=info msg=donation status pushed donation_id=%d from=%s to=%s subscribers=%d", change.DonationID, change.From, change.To, delivered)
	}
}
