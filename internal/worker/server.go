package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/nurpe/rto-permits/internal/config"
	"github.com/nurpe/rto-permits/internal/service"
)

type BillRenderer interface {
	RenderBill(ctx context.Context, billID uuid.UUID) (string, error)
}

type StatusRefresher interface {
	RefreshStatuses(ctx context.Context) (*service.RefreshResult, error)
}

// Processor holds what the task handlers need.
type Processor struct {
	bills   BillRenderer
	permits StatusRefresher
	log     zerolog.Logger
}

func NewProcessor(bills BillRenderer, permits StatusRefresher, log zerolog.Logger) *Processor {
	return &Processor{bills: bills, permits: permits, log: log}
}

// HandleBillPDFTask renders one bill. Render failures are final: the bill
// stays without a pdf and the download endpoint reports it.
func (p *Processor) HandleBillPDFTask(ctx context.Context, t *asynq.Task) error {
	var payload BillPDFPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal bill pdf payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.BillID == uuid.Nil {
		return fmt.Errorf("bill pdf payload without bill id: %w", asynq.SkipRetry)
	}

	path, err := p.bills.RenderBill(ctx, payload.BillID)
	if err != nil {
		p.log.Error().Err(err).Str("bill_id", payload.BillID.String()).Msg("bill pdf render failed")
		return fmt.Errorf("render bill %s: %v: %w", payload.BillID, err, asynq.SkipRetry)
	}

	p.log.Debug().Str("bill_id", payload.BillID.String()).Str("path", path).Msg("bill pdf task done")
	return nil
}

func (p *Processor) HandleStatusRefreshTask(ctx context.Context, _ *asynq.Task) error {
	result, err := p.permits.RefreshStatuses(ctx)
	if err != nil {
		return fmt.Errorf("refresh permit statuses: %w", err)
	}
	p.log.Debug().
		Int("part_a_checked", result.PartAChecked).
		Int("part_b_checked", result.PartBChecked).
		Msg("status refresh task done")
	return nil
}

func (p *Processor) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeBillPDFRender, p.HandleBillPDFTask)
	mux.HandleFunc(TypePermitStatusRefresh, p.HandleStatusRefreshTask)
	return mux
}

func NewServer(cfg *config.Config, log zerolog.Logger) *asynq.Server {
	return asynq.NewServer(
		RedisOpt(cfg.Redis),
		asynq.Config{
			Concurrency: cfg.Worker.Concurrency,
			Queues: map[string]int{
				"default": 1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Error().
					Err(err).
					Str("task_type", task.Type()).
					Bytes("payload", task.Payload()).
					Msg("task failed")
			}),
			Logger: asynqLogger{log: log},
		},
	)
}

// NewScheduler registers the periodic status refresh.
func NewScheduler(cfg *config.Config, log zerolog.Logger) (*asynq.Scheduler, error) {
	scheduler := asynq.NewScheduler(RedisOpt(cfg.Redis), &asynq.SchedulerOpts{
		Logger: asynqLogger{log: log},
	})
	entryID, err := scheduler.Register(cfg.Worker.StatusRefreshCron, asynq.NewTask(TypePermitStatusRefresh, nil))
	if err != nil {
		return nil, fmt.Errorf("register status refresh %q: %w", cfg.Worker.StatusRefreshCron, err)
	}
	log.Info().Str("entry_id", entryID).Str("cron", cfg.Worker.StatusRefreshCron).Msg("status refresh scheduled")
	return scheduler, nil
}

type asynqLogger struct {
	log zerolog.Logger
}

func (l asynqLogger) Debug(args ...interface{}) { l.log.Debug().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...interface{})  { l.log.Info().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...interface{})  { l.log.Warn().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...interface{}) { l.log.Error().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...interface{}) { l.log.Fatal().Msg(fmt.Sprint(args...)) }
