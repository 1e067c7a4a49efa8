package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"saas-control-plane/backend/internal/notification/domain"
)

// Enqueuer is the asynq client surface the queue needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Queue enqueues delivery jobs.
type Queue struct {
	client    Enqueuer
	closer    func() error
	retention time.Duration
}

// NewQueue returns a Queue backed by Redis at opt.
func NewQueue(opt asynq.RedisClientOpt) *Queue {
	c := asynq.NewClient(opt)
	return &Queue{client: c, closer: c.Close, retention: 24 * time.Hour}
}

// NewQueueWithClient returns a Queue using client. Used by tests.
func NewQueueWithClient(client Enqueuer) *Queue {
	return &Queue{client: client, retention: 24 * time.Hour}
}

// Enqueue schedules job. A task with the same id that is pending, running or retained counts as success.
func (q *Queue) Enqueue(ctx context.Context, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	maxRetry := 5
	if job.Priority == domain.PriorityLow {
		maxRetry = 2
	}
	_, err = q.client.EnqueueContext(ctx, asynq.NewTask(TypeDeliver, data),
		asynq.TaskID(job.TaskID()),
		asynq.Queue(QueueName),
		asynq.MaxRetry(maxRetry),
		asynq.Timeout(30*time.Second),
		asynq.Retention(q.retention),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", TypeDeliver, err)
	}
	return nil
}

func (q *Queue) Close() error {
	if q.closer == nil {
		return nil
	}
	return q.closer()
}
