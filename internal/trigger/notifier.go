package trigger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/popvault/pricewatch/internal/catalog"
)

// auditEvent is one pending audit write.
type auditEvent struct {
	create  *catalog.PricingUpdateRequest
	resolve *auditResolution
}

type auditResolution struct {
	id     uuid.UUID
	status catalog.RequestStatus
	notes  string
	at     time.Time
}

// Notifier writes PricingUpdateRequest audit rows off the request path.
// Writes are best-effort: a full buffer drops the event with a log line,
// and store errors are logged and swallowed. The scraping pipeline never
// waits on the audit trail.
type Notifier struct {
	store   catalog.AuditStore
	events  chan auditEvent
	done    chan struct{}
	timeout time.Duration
	logger  *zap.Logger
}

// NewNotifier starts a Notifier draining into store with the given buffer
// size.
func NewNotifier(store catalog.AuditStore, buffer int, logger *zap.Logger) *Notifier {
	if buffer <= 0 {
		buffer = 64
	}
	n := &Notifier{
		store:   store,
		events:  make(chan auditEvent, buffer),
		done:    make(chan struct{}),
		timeout: 5 * time.Second,
		logger:  logger,
	}
	go n.run()
	return n
}

// Create enqueues an audit row insert without blocking.
func (n *Notifier) Create(req catalog.PricingUpdateRequest) {
	n.enqueue(auditEvent{create: &req})
}

// Resolve enqueues a terminal status update without blocking.
func (n *Notifier) Resolve(id uuid.UUID, status catalog.RequestStatus, notes string, at time.Time) {
	n.enqueue(auditEvent{resolve: &auditResolution{id: id, status: status, notes: notes, at: at}})
}

func (n *Notifier) enqueue(ev auditEvent) {
	select {
	case n.events <- ev:
	default:
		n.logger.Warn("audit buffer full, dropping event")
	}
}

// Close drains buffered events and stops the background writer.
func (n *Notifier) Close() {
	close(n.events)
	<-n.done
}

func (n *Notifier) run() {
	defer close(n.done)
	for ev := range n.events {
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		var err error
		switch {
		case ev.create != nil:
			err = n.store.Create(ctx, *ev.create)
		case ev.resolve != nil:
			r := ev.resolve
			err = n.store.Resolve(ctx, r.id, r.status, r.notes, r.at)
		}
		cancel()
		if err != nil {
			n.logger.Warn("audit write failed", zap.Error(err))
		}
	}
}
