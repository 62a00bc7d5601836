package notify

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log"
	"time"

	alarmapp "refundtrack/internal/alarms/application"
	alarmrepo "refundtrack/internal/alarms/infrastructure/postgres"
	"refundtrack/internal/observability/metrics"
)

const defaultMaxAttempts = 5

// OutboxNotifier enqueues notifications instead of delivering them inline,
// decoupling reconciliation from delivery latency and failures.
type OutboxNotifier struct {
	store *alarmrepo.OutboxStore
}

// NewOutboxNotifier constructs an outbox notifier.
func NewOutboxNotifier(store *alarmrepo.OutboxStore) (*OutboxNotifier, error) {
	if store == nil {
		return nil, errors.New("outbox notifier: nil store")
	}
	return &OutboxNotifier{store: store}, nil
}

// Notify queues the notification for background delivery.
func (n *OutboxNotifier) Notify(ctx context.Context, userID, templateKey string, variables map[string]string) error {
	if n == nil || n.store == nil {
		return errors.New("outbox notifier: nil")
	}
	record := &alarmrepo.OutboxRecord{
		ID:          newOutboxID(),
		UserID:      userID,
		TemplateKey: templateKey,
		Variables:   variables,
		CreatedAt:   time.Now().UTC(),
	}
	return n.store.Insert(ctx, record)
}

// Dispatcher drains the notification outbox through a delivery notifier,
// typically a ChannelNotifier or a MultiNotifier fanning out to several.
type Dispatcher struct {
	store       *alarmrepo.OutboxStore
	delegate    alarmapp.Notifier
	maxAttempts int
	interval    time.Duration
	logger      *log.Logger
}

// NewDispatcher constructs a dispatcher.
func NewDispatcher(store *alarmrepo.OutboxStore, delegate alarmapp.Notifier, interval time.Duration, logger *log.Logger) (*Dispatcher, error) {
	if store == nil {
		return nil, errors.New("dispatcher: nil store")
	}
	if delegate == nil {
		return nil, errors.New("dispatcher: nil delivery notifier")
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Dispatcher{
		store:       store,
		delegate:    delegate,
		maxAttempts: defaultMaxAttempts,
		interval:    interval,
		logger:      logger,
	}, nil
}

// Run drains pending notifications until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	if d == nil {
		return
	}
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.Dispatch(ctx, 50); err != nil && d.logger != nil {
				d.logger.Printf("event=notify_dispatch_error err=%v", err)
			}
		}
	}
}

// Dispatch delivers up to limit pending notifications. Failed deliveries
// are retried on later passes until the attempt cap dead-letters them.
func (d *Dispatcher) Dispatch(ctx context.Context, limit int) error {
	if d == nil || d.store == nil {
		return errors.New("dispatcher: nil")
	}
	records, err := d.store.ListPending(ctx, limit)
	if err != nil {
		return err
	}
	for _, record := range records {
		if err := d.delegate.Notify(ctx, record.UserID, record.TemplateKey, record.Variables); err != nil {
			metrics.IncNotifyDelivery("error")
			if markErr := d.store.MarkFailed(ctx, record.ID, err, d.maxAttempts); markErr != nil && d.logger != nil {
				d.logger.Printf("event=notify_mark_failed_error id=%s err=%v", record.ID, markErr)
			}
			continue
		}
		metrics.IncNotifyDelivery("success")
		if err := d.store.MarkSent(ctx, record.ID); err != nil && d.logger != nil {
			d.logger.Printf("event=notify_mark_sent_error id=%s err=%v", record.ID, err)
		}
	}
	if pending, err := d.store.CountPending(ctx); err == nil {
		metrics.SetOutboxPending(pending)
	}
	return nil
}

func newOutboxID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return "notif-" + hex.EncodeToString(buf)
}
