package events

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-scheduling/internal/db"
	"github.com/hackgods/clinic-appointment-scheduling/internal/metrics"
)

// Append writes ev to the event log through q, usually the transaction that
// applied the state change.
func Append(ctx context.Context, q db.DBTX, ev Event) error {
	payload := ev.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	_, err := q.Exec(ctx, `
		INSERT INTO event_logs (event_type, aggregate_id, payload, created_at)
		VALUES ($1, $2, $3, $4)
	`, string(ev.Type), ev.AggregateID, payload, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert event %s: %w", ev.Type, err)
	}
	return nil
}

// Handler emits events to a downstream transport.
type Handler interface {
	Handle(ctx context.Context, ev Event) error
}

type HandlerFunc func(ctx context.Context, ev Event) error

func (f HandlerFunc) Handle(ctx context.Context, ev Event) error { return f(ctx, ev) }

// OutboxStore reads and acknowledges unpublished events.
type OutboxStore struct {
	db db.DBTX
}

func NewOutboxStore(conn db.DBTX) *OutboxStore {
	return &OutboxStore{db: conn}
}

// FetchPending locks up to limit unpublished, live events, fewest attempts
// first, so events that keep failing do not hold back newer ones. Rows locked
// by another worker are skipped, so several workers can drain the log
// concurrently.
func FetchPending(ctx context.Context, q db.DBTX, limit int) ([]Event, error) {
	rows, err := q.Query(ctx, `
		SELECT id, event_type, aggregate_id, payload, created_at, attempts
		FROM event_logs
		WHERE published_at IS NULL AND dead_at IS NULL
		ORDER BY attempts, id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch pending events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var ev Event
		var eventType string
		var payload []byte
		if err := rows.Scan(&ev.ID, &eventType, &ev.AggregateID, &payload, &ev.CreatedAt, &ev.Attempts); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Type = Type(eventType)
		ev.Payload = append([]byte(nil), payload...)
		out = append(out, ev)
	}
	return out, rows.Err()
}

func MarkPublished(ctx context.Context, q db.DBTX, id int64) error {
	_, err := q.Exec(ctx, `
		UPDATE event_logs
		SET published_at = now()
		WHERE id = $1 AND published_at IS NULL
	`, id)
	if err != nil {
		return fmt.Errorf("mark event %d published: %w", id, err)
	}
	return nil
}

// MarkFailed records a failed delivery. Once attempts reaches maxAttempts the
// event is dead-lettered and no longer fetched. It reports whether that
// happened.
func MarkFailed(ctx context.Context, q db.DBTX, id int64, cause error, maxAttempts int) (bool, error) {
	var dead bool
	err := q.QueryRow(ctx, `
		UPDATE event_logs
		SET attempts = attempts + 1,
		    last_error = $2,
		    dead_at = CASE WHEN attempts + 1 >= $3 THEN now() END
		WHERE id = $1
		RETURNING dead_at IS NOT NULL
	`, id, cause.Error(), maxAttempts).Scan(&dead)
	if err != nil {
		return false, fmt.Errorf("mark event %d failed: %w", id, err)
	}
	return dead, nil
}

// Result is the outcome of one delivery attempt.
type Result struct {
	Event Event
	Err   error
	Dead  bool
}

// Drain publishes one batch inside a transaction. Failed events are retried
// on later runs until maxAttempts, then dead-lettered. It returns the number
// published.
func (s *OutboxStore) Drain(ctx context.Context, limit, maxAttempts int, h Handler, onResult func(Result)) (int, error) {
	published := 0
	err := db.InTx(ctx, s.db, func(tx pgx.Tx) error {
		pending, err := FetchPending(ctx, tx, limit)
		if err != nil {
			return err
		}
		for _, ev := range pending {
			res := Result{Event: ev, Err: h.Handle(ctx, ev)}
			if res.Err != nil {
				if res.Dead, err = MarkFailed(ctx, tx, ev.ID, res.Err, maxAttempts); err != nil {
					return err
				}
			} else {
				if err := MarkPublished(ctx, tx, ev.ID); err != nil {
					return err
				}
				published++
			}
			if onResult != nil {
				onResult(res)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return published, nil
}

// Deliverer polls the outbox and invokes the handler.
type Deliverer struct {
	store       *OutboxStore
	handler     Handler
	logger      *zap.Logger
	metrics     *metrics.Metrics
	batchSize   int
	maxAttempts int
	interval    time.Duration
}

func NewDeliverer(store *OutboxStore, handler Handler, logger *zap.Logger) *Deliverer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Deliverer{
		store:       store,
		handler:     handler,
		logger:      logger,
		batchSize:   25,
		maxAttempts: 10,
		interval:    2 * time.Second,
	}
}

func (d *Deliverer) WithBatchSize(size int) *Deliverer {
	if size > 0 {
		d.batchSize = size
	}
	return d
}

// WithMaxAttempts sets how many failed deliveries an event gets before it is
// dead-lettered.
func (d *Deliverer) WithMaxAttempts(n int) *Deliverer {
	if n > 0 {
		d.maxAttempts = n
	}
	return d
}

func (d *Deliverer) WithInterval(interval time.Duration) *Deliverer {
	if interval > 0 {
		d.interval = interval
	}
	return d
}

func (d *Deliverer) WithMetrics(m *metrics.Metrics) *Deliverer {
	d.metrics = m
	return d
}

// Start drains once, then on every tick until ctx is done.
func (d *Deliverer) Start(ctx context.Context) {
	if d.store == nil || d.handler == nil {
		return
	}

	d.RunOnce(ctx)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("outbox deliverer stopping")
			return
		case <-ticker.C:
			d.RunOnce(ctx)
		}
	}
}

func (d *Deliverer) RunOnce(ctx context.Context) int {
	start := time.Now()
	n, err := d.store.Drain(ctx, d.batchSize, d.maxAttempts, d.handler, func(res Result) {
		ev := res.Event
		switch {
		case res.Dead:
			d.metrics.ObserveDelivery("dead")
			d.logger.Error("outbox event dead-lettered",
				zap.Error(res.Err),
				zap.Int64("event_id", ev.ID),
				zap.String("type", string(ev.Type)),
				zap.Int("attempts", ev.Attempts+1),
			)
		case res.Err != nil:
			d.metrics.ObserveDelivery("failed")
			d.logger.Warn("outbox delivery failed",
				zap.Error(res.Err),
				zap.Int64("event_id", ev.ID),
				zap.String("type", string(ev.Type)),
				zap.Int("attempts", ev.Attempts+1),
			)
		default:
			d.metrics.ObserveDelivery("ok")
			d.logger.Debug("outbox delivered",
				zap.Int64("event_id", ev.ID),
				zap.String("type", string(ev.Type)),
			)
		}
	})
	if err != nil {
		d.logger.Error("outbox drain failed", zap.Error(err))
		return 0
	}
	if n > 0 {
		d.logger.Info("outbox batch published", zap.Int("count", n), zap.Duration("took", time.Since(start)))
	}
	return n
}
