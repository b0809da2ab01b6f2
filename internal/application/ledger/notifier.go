package ledger

import (
	"context"
	"time"

	domain "github.com/Parth18062003/E-Commerce-sub000/internal/domain/ledger"
	domoutbox "github.com/Parth18062003/E-Commerce-sub000/internal/domain/outbox"
	"github.com/Parth18062003/E-Commerce-sub000/internal/observability"
)

const (
	publishPeer    = "broker"
	publishTimeout = 300 * time.Millisecond
)

// Notifier publishes ledger change events. A failed publish never undoes the
// ledger write that preceded it; callers only log the returned error.
type Notifier struct {
	publisher    domoutbox.Publisher
	timeout      time.Duration
	extCounter   observability.Counter   // external_requests_total{peer,endpoint,outcome}
	extHistogram observability.Histogram // external_request_duration_seconds{peer,endpoint}
}

func NewNotifier(publisher domoutbox.Publisher, timeout time.Duration, tel observability.Observability) *Notifier {
	if timeout <= 0 {
		timeout = publishTimeout
	}
	m := observability.OrNop(tel).Metrics()
	return &Notifier{
		publisher:    publisher,
		timeout:      timeout,
		extCounter:   m.Counter(observability.MExternalRequests),
		extHistogram: m.Histogram(observability.MExternalRequestDuration),
	}
}

// EntryChanged publishes the full per-size snapshot of entry.
func (n *Notifier) EntryChanged(ctx context.Context, entry *domain.Entry) error {
	return n.publish(ctx, domain.NewChangeEvent(entry))
}

// ProductDeleted publishes the tombstone for productID.
func (n *Notifier) ProductDeleted(ctx context.Context, productID string) error {
	return n.publish(ctx, domain.NewTombstone(productID))
}

func (n *Notifier) publish(ctx context.Context, event domoutbox.Event) error {
	if n == nil || n.publisher == nil {
		return nil
	}

	// The write is already committed; a caller that has gone away must not
	// cancel its notification.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
	start := time.Now()
	err := n.publisher.Publish(pubCtx, event)
	outcome := "success"
	if err != nil {
		outcome = "error"
	} else if pubCtx.Err() != nil {
		outcome = "canceled"
		err = pubCtx.Err()
	}
	cancel()

	n.extCounter.Add(1,
		observability.L("peer", publishPeer),
		observability.L("endpoint", event.EventName()),
		observability.L("outcome", outcome),
	)
	n.extHistogram.Observe(time.Since(start).Seconds(),
		observability.L("peer", publishPeer),
		observability.L("endpoint", event.EventName()),
	)
	return err
}
