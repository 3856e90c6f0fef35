package app

import (
	"errors"
	"time"

	"github.com/settle-next/internal/config"
	"github.com/settle-next/internal/logger"
	"github.com/settle-next/internal/provider"
	"github.com/settle-next/internal/router"
	"github.com/settle-next/internal/worker"
)

// BuildRunner 按运行模式组装服务
func BuildRunner(cfg *config.Config, container *provider.Container, mode string) (*Runner, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if container == nil {
		return nil, errors.New("container is nil")
	}

	var services []Service

	if mode == ModeAll || mode == ModeAPI {
		engine := router.SetupRouter(cfg, container)
		addr := cfg.Server.Host + ":" + cfg.Server.Port
		services = append(services, NewHTTPService(addr, engine))
	}

	if mode == ModeAll || mode == ModeWorker {
		scheduler, err := worker.NewScheduler(container.RetryService, container.ReferralService, worker.SchedulerOptions{
			RetryPollInterval: time.Duration(cfg.Settlement.RetryPollIntervalSeconds) * time.Second,
			CascadeCron:       cfg.Settlement.ReferralCascadeCron,
		})
		if err != nil {
			return nil, err
		}
		services = append(services, scheduler)

		if cfg.Queue.Enabled {
			queueService, err := worker.NewService(&cfg.Queue, worker.NewConsumer(container))
			if err != nil {
				return nil, err
			}
			services = append(services, queueService)
		} else {
			logger.Warnw("app_queue_worker_disabled", "reason", "queue.enabled=false")
		}
	}

	if len(services) == 0 {
		return nil, errors.New("no services initialized (check mode and config)")
	}
	return NewRunner(services...), nil
}

// Run 应用启动入口
func Run(opts Options) error {
	opts = normalizeOptions(opts)
	if opts.Config == nil {
		return errors.New("config is nil")
	}

	container := provider.NewContainer(opts.Config)
	defer container.Close()

	runner, err := BuildRunner(opts.Config, container, opts.Mode)
	if err != nil {
		return err
	}

	addr := opts.Config.Server.Host + ":" + opts.Config.Server.Port
	opts.Logger.Infow("app_start", "addr", addr, "mode", opts.Mode)
	return RunWithOptions(runner, opts)
}
