package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"saas-control-plane/backend/internal/notification/domain"
	userdomain "saas-control-plane/backend/internal/user/domain"
)

// UserLookup resolves a recipient's address.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
}

// Worker processes delivery tasks.
type Worker struct {
	sender Sender
	users  UserLookup
	logger *slog.Logger
}

// NewWorker returns a Worker sending through sender.
func NewWorker(sender Sender, users UserLookup, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{sender: sender, users: users, logger: logger}
}

// Register adds the worker's handlers to mux.
func (w *Worker) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeDeliver, w.ProcessTask)
}

func (w *Worker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var job Job
	if err := json.Unmarshal(t.Payload(), &job); err != nil {
		return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}
	if !job.Channel.External() {
		return fmt.Errorf("delivery: channel %q is not external: %w", job.Channel, asynq.SkipRetry)
	}
	to, err := w.resolve(ctx, job)
	if err != nil {
		return err
	}
	if to == "" {
		w.logger.InfoContext(ctx, "delivery: recipient has no address, skipping", "channel", job.Channel, "recipient", job.Recipient())
		return nil
	}
	data := map[string]any{}
	for k, v := range job.Data {
		data[k] = v
	}
	if len(job.Actions) > 0 {
		data["actions"] = job.Actions
	}
	data["type"] = string(job.Type)
	err = w.sender.Send(ctx, Message{
		Channel:        string(job.Channel),
		To:             to,
		Title:          job.Title,
		Body:           job.Message,
		Data:           data,
		IdempotencyKey: job.TaskID(),
	})
	if err != nil {
		return fmt.Errorf("deliver %s to %s: %w", job.Channel, job.Recipient(), err)
	}
	w.logger.InfoContext(ctx, "delivery: sent", "channel", job.Channel, "type", job.Type, "recipient", job.Recipient())
	return nil
}

func (w *Worker) resolve(ctx context.Context, job Job) (string, error) {
	if job.Channel == domain.ChannelPush {
		return job.UserID, nil
	}
	if job.Email != "" {
		return job.Email, nil
	}
	if job.UserID == "" || w.users == nil {
		return "", fmt.Errorf("delivery: job has no recipient: %w", asynq.SkipRetry)
	}
	u, err := w.users.GetByID(ctx, job.UserID)
	if err != nil {
		return "", err
	}
	if u == nil {
		return "", fmt.Errorf("delivery: user %s not found: %w", job.UserID, asynq.SkipRetry)
	}
	if u.Status != userdomain.UserStatusActive {
		return "", nil
	}
	return u.Email, nil
}
