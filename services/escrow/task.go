package escrow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"crowdfund-escrow/pkg/db"
	"crowdfund-escrow/pkg/db/option"
	"crowdfund-escrow/pkg/rediskey"
	"crowdfund-escrow/pkg/task"
	"crowdfund-escrow/pkg/taskname"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	TypeEventRelay = taskname.EventRelay
	TypeEventSweep = taskname.EventSweep

	sweepGrace = time.Minute
	sweepBatch = 100
)

type relayPayload struct {
	EventID string `json:"event_id"`
}

func NewRelayTask(eventID string) (*asynq.Task, error) {
	b, err := json.Marshal(relayPayload{EventID: eventID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeEventRelay, b), nil
}

// EventSink delivers an outbox event to observers. Delivery is at least
// once.
type EventSink interface {
	Deliver(ctx context.Context, ev *OutboxEvent) error
}

// redisSink fans events out on a redis pub/sub channel.
type redisSink struct {
	rdb     *redis.Client
	channel string
}

func NewRedisSink(rdb *redis.Client) EventSink {
	return &redisSink{rdb: rdb, channel: rediskey.EventChannel()}
}

func (r *redisSink) Deliver(ctx context.Context, ev *OutboxEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return r.rdb.Publish(ctx, r.channel, b).Err()
}

// RelayEvent delivers one event and marks it published. Published or
// unknown events are skipped.
func (s *Service) RelayEvent(ctx context.Context, eventID string, sink EventSink) (bool, error) {
	delivered := false
	err := db.Transaction(ctx, s.db, func(ctx context.Context, _ *gorm.DB) error {
		ev, err := s.events.FindOne(ctx, &OutboxEvent{ID: eventID}, option.WithLockingUpdate())
		if err != nil {
			return err
		}
		if ev == nil || ev.PublishedAt != nil {
			return nil
		}
		if err := sink.Deliver(ctx, ev); err != nil {
			return err
		}
		now := s.clock.Now().UTC()
		ev.PublishedAt = &now
		delivered = true
		return s.events.Save(ctx, ev)
	})
	return delivered, err
}

type Worker struct {
	svc      *Service
	sink     EventSink
	enqueuer task.Enqueuer
}

type WorkerParams struct {
	fx.In
	Service  *Service
	Sink     EventSink
	Enqueuer task.Enqueuer
}

func NewWorker(p WorkerParams) *Worker {
	return &Worker{svc: p.Service, sink: p.Sink, enqueuer: p.Enqueuer}
}

func (w *Worker) HandleRelay(ctx context.Context, t *asynq.Task) error {
	var p relayPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode relay payload: %v: %w", err, asynq.SkipRetry)
	}

	delivered, err := w.svc.RelayEvent(ctx, p.EventID, w.sink)
	if err != nil {
		zap.L().Warn("event relay failed", zap.String("event_id", p.EventID), zap.Error(err))
		return err
	}
	if delivered {
		eventsRelayed.Inc()
	}
	return nil
}

// HandleSweep re-enqueues events whose relay task was lost.
func (w *Worker) HandleSweep(ctx context.Context, _ *asynq.Task) error {
	cutoff := w.svc.clock.Now().UTC().Add(-sweepGrace)
	events, err := w.svc.PendingEvents(ctx, cutoff, sweepBatch)
	if err != nil {
		return err
	}

	for _, ev := range events {
		t, err := NewRelayTask(ev.ID)
		if err != nil {
			return err
		}
		_, err = w.enqueuer.Enqueue(ctx, t,
			asynq.Queue(task.QueueLow),
			asynq.TaskID("relay:"+ev.ID),
			asynq.Retention(time.Hour),
		)
		if err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
			zap.L().Warn("failed to re-enqueue event", zap.String("event_id", ev.ID), zap.Error(err))
		}
	}

	if len(events) > 0 {
		zap.L().Info("outbox sweep", zap.Int("pending", len(events)))
	}
	return nil
}

func registerWorker(mux *asynq.ServeMux, w *Worker) {
	mux.HandleFunc(TypeEventRelay, w.HandleRelay)
	mux.HandleFunc(TypeEventSweep, w.HandleSweep)
}

func registerSweep(scheduler *asynq.Scheduler) error {
	_, err := scheduler.Register("@every 1m", asynq.NewTask(TypeEventSweep, nil), asynq.Queue(task.QueueLow))
	return err
}
