package worker

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/meridian-mfg/pricewatch/internal/domain/entity"
)

// Ingester processes one inbound email end to end
type Ingester interface {
	Ingest(ctx context.Context, inbound entity.InboundEmail) (*entity.EmailState, error)
}

// IngestWorker drains a bounded queue of inbound emails so the HTTP layer
// can accept deliveries without holding the connection through gate
// evaluation and the billable stages.
type IngestWorker struct {
	processor Ingester
	queue     chan entity.InboundEmail
	logger    *zap.Logger

	mu        sync.Mutex
	isRunning bool
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewIngestWorker creates an ingest worker with the given queue depth
func NewIngestWorker(processor Ingester, queueSize int, logger *zap.Logger) *IngestWorker {
	return &IngestWorker{
		processor: processor,
		queue:     make(chan entity.InboundEmail, queueSize),
		logger:    logger,
	}
}

// Enqueue submits an inbound email for processing; it fails rather than
// blocks when the queue is full.
func (w *IngestWorker) Enqueue(inbound entity.InboundEmail) error {
	select {
	case w.queue <- inbound:
		return nil
	default:
		return fmt.Errorf("ingest queue full, rejecting message %s", inbound.Record.MessageID)
	}
}

// Start begins draining the queue
func (w *IngestWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.isRunning {
		return fmt.Errorf("ingest worker is already running")
	}
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	w.isRunning = true

	go w.drain()
	return nil
}

// Stop stops the worker and waits for the in-flight email to finish
func (w *IngestWorker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.isRunning {
		return
	}
	w.isRunning = false
	w.cancel()
	<-w.done
}

// Name returns the worker name for identification
func (w *IngestWorker) Name() string {
	return "IngestWorker"
}

func (w *IngestWorker) drain() {
	defer close(w.done)
	for {
		select {
		case <-w.ctx.Done():
			return
		case inbound := <-w.queue:
			if _, err := w.processor.Ingest(w.ctx, inbound); err != nil {
				w.logger.Error("Failed to ingest email",
					zap.String("message_id", inbound.Record.MessageID),
					zap.Error(err))
			}
		}
	}
}
