package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"

	"saas-control-plane/backend/internal/notification/domain"
)

type mockEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (m *mockEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.tasks = append(m.tasks, task)
	return &asynq.TaskInfo{}, nil
}

func TestQueue_Enqueue(t *testing.T) {
	client := &mockEnqueuer{}
	q := NewQueueWithClient(client)
	job := Job{Channel: domain.ChannelEmail, UserID: "user-1", Type: domain.TypeInvitation, Title: "t", DedupKey: "k"}

	if err := q.Enqueue(context.Background(), job); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if len(client.tasks) != 1 || client.tasks[0].Type() != TypeDeliver {
		t.Fatalf("tasks = %+v", client.tasks)
	}
	var got Job
	if err := json.Unmarshal(client.tasks[0].Payload(), &got); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if got.UserID != "user-1" || got.Channel != domain.ChannelEmail || got.DedupKey != "k" {
		t.Errorf("payload = %+v", got)
	}
}

func TestQueue_Enqueue_DuplicateIsSuccess(t *testing.T) {
	for _, dup := range []error{asynq.ErrTaskIDConflict, asynq.ErrDuplicateTask} {
		q := NewQueueWithClient(&mockEnqueuer{err: dup})
		if err := q.Enqueue(context.Background(), Job{Channel: domain.ChannelEmail, UserID: "u"}); err != nil {
			t.Errorf("Enqueue with %v = %v, want nil", dup, err)
		}
	}
	q := NewQueueWithClient(&mockEnqueuer{err: errors.New("redis down")})
	if err := q.Enqueue(context.Background(), Job{Channel: domain.ChannelEmail, UserID: "u"}); err == nil {
		t.Error("Enqueue should surface transport errors")
	}
}

func TestJob_TaskID(t *testing.T) {
	a := Job{Channel: domain.ChannelEmail, UserID: "u1", Type: domain.TypeAnnouncement, DedupKey: "system.announcement:announcement:a1"}
	if a.TaskID() != "email:system.announcement:u1:system.announcement:announcement:a1" {
		t.Errorf("TaskID = %q", a.TaskID())
	}
	b := a
	b.UserID = "u2"
	c := a
	c.Channel = domain.ChannelPush
	if a.TaskID() == b.TaskID() || a.TaskID() == c.TaskID() {
		t.Error("task ids must differ per recipient and channel")
	}
	if (Job{Email: "x@example.com"}).Recipient() != "x@example.com" {
		t.Error("address-only job should use the email as recipient")
	}
}
