package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/nurpe/rto-permits/internal/config"
)

const (
	TypeBillPDFRender       = "bill:pdf:render"
	TypePermitStatusRefresh = "permit:status:refresh"
)

type BillPDFPayload struct {
	BillID uuid.UUID `json:"bill_id"`
}

func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

// Enqueuer is the part of *asynq.Client the queue needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Queue puts render jobs on the asynq queue.
type Queue struct {
	client Enqueuer
}

func NewQueue(client Enqueuer) *Queue {
	return &Queue{client: client}
}

func NewBillPDFTask(billID uuid.UUID) (*asynq.Task, error) {
	payload, err := json.Marshal(BillPDFPayload{BillID: billID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeBillPDFRender, payload, asynq.MaxRetry(0)), nil
}

func (q *Queue) EnqueueBillPDF(ctx context.Context, billID uuid.UUID) error {
	task, err := NewBillPDFTask(billID)
	if err != nil {
		return err
	}
	if _, err := q.client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("enqueue bill pdf %s: %w", billID, err)
	}
	return nil
}
