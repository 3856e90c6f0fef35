package worker

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/settle-next/internal/logger"
	"github.com/settle-next/internal/service"

	"github.com/go-co-op/gocron/v2"
)

const defaultRetryPollInterval = 5 * time.Minute

type retryRunner interface {
	ProcessDueRetries(ctx context.Context, now time.Time) (*service.RetryRunResult, error)
}

type cascadeRunner interface {
	RunMonthlyCascade(ctx context.Context, now time.Time) (*service.CascadeResult, error)
}

// SchedulerOptions 周期任务参数
type SchedulerOptions struct {
	RetryPollInterval time.Duration
	CascadeCron       string
}

// Scheduler 进程内周期触发重试与月度返佣
type Scheduler struct {
	retries  retryRunner
	cascade  cascadeRunner
	opts     SchedulerOptions
	sched    gocron.Scheduler
	done     chan struct{}
	clock    func() time.Time
	runCtx   context.Context
	cancelFn context.CancelFunc
}

// NewScheduler 创建周期任务调度器
func NewScheduler(retries retryRunner, cascade cascadeRunner, opts SchedulerOptions) (*Scheduler, error) {
	if retries == nil && cascade == nil {
		return nil, errors.New("scheduler has no jobs")
	}
	if opts.RetryPollInterval <= 0 {
		opts.RetryPollInterval = defaultRetryPollInterval
	}
	opts.CascadeCron = strings.TrimSpace(opts.CascadeCron)
	sched, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, err
	}
	runCtx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		retries:  retries,
		cascade:  cascade,
		opts:     opts,
		sched:    sched,
		done:     make(chan struct{}),
		clock:    time.Now,
		runCtx:   runCtx,
		cancelFn: cancel,
	}
	if err := s.registerJobs(); err != nil {
		cancel()
		_ = sched.Shutdown()
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) registerJobs() error {
	singleton := gocron.WithSingletonMode(gocron.LimitModeReschedule)
	if s.retries != nil {
		if _, err := s.sched.NewJob(
			gocron.DurationJob(s.opts.RetryPollInterval),
			gocron.NewTask(s.runRetries),
			gocron.WithName("payment_retries"),
			singleton,
		); err != nil {
			return err
		}
	}
	if s.cascade != nil && s.opts.CascadeCron != "" {
		if _, err := s.sched.NewJob(
			gocron.CronJob(s.opts.CascadeCron, false),
			gocron.NewTask(s.runCascade),
			gocron.WithName("referral_cascade"),
			singleton,
		); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) runRetries() {
	result, err := s.retries.ProcessDueRetries(s.runCtx, s.clock())
	if err != nil {
		logger.Warnw("scheduler_payment_retries_failed", "error", err)
		return
	}
	if result.Total > 0 {
		logger.Infow("scheduler_payment_retries_finished",
			"total", result.Total,
			"succeeded", result.Succeeded,
			"failed", result.Failed,
			"skipped", result.Skipped,
		)
	}
}

func (s *Scheduler) runCascade() {
	result, err := s.cascade.RunMonthlyCascade(s.runCtx, s.clock())
	if err != nil {
		logger.Warnw("scheduler_referral_cascade_failed", "error", err)
		return
	}
	logger.Infow("scheduler_referral_cascade_finished",
		"processed", result.ProcessedCount,
		"skipped", result.SkippedCount,
		"capped", result.CappedCount,
		"total_amount", result.TotalAmount.String(),
	)
}

// Name 服务名称
func (s *Scheduler) Name() string {
	return "scheduler"
}

// Start 启动调度器，阻塞直至 Stop 或 ctx 结束
func (s *Scheduler) Start(ctx context.Context) error {
	s.sched.Start()
	logger.Infow("scheduler_started",
		"retry_poll_interval", s.opts.RetryPollInterval.String(),
		"cascade_cron", s.opts.CascadeCron,
	)
	select {
	case <-ctx.Done():
	case <-s.done:
	}
	return nil
}

// Stop 停止调度器，等待运行中的任务结束
func (s *Scheduler) Stop(_ context.Context) error {
	select {
	case <-s.done:
		return nil
	default:
		close(s.done)
	}
	err := s.sched.Shutdown()
	s.cancelFn()
	return err
}
