package app

import (
	"errors"

	"github.com/sourcebridge/internal/config"
	"github.com/sourcebridge/internal/provider"
	"github.com/sourcebridge/internal/router"
	"github.com/sourcebridge/internal/worker"
)

// BuildRunner 构建服务运行器
func BuildRunner(cfg *config.Config, mode string) (*Runner, *provider.Container, error) {
	if cfg == nil {
		return nil, nil, errors.New("config is nil")
	}

	container, err := provider.NewContainer(cfg)
	if err != nil {
		return nil, nil, err
	}

	var services []Service

	if mode == ModeAll || mode == ModeAPI {
		engine := router.SetupRouter(cfg, container)
		addr := cfg.Server.Host + ":" + cfg.Server.Port
		services = append(services, NewHTTPService(addr, engine))
	}

	if mode == ModeAll || mode == ModeWorker {
		consumer := worker.NewConsumer(container)
		workerService, err := worker.NewService(&cfg.Queue, consumer)
		if err != nil {
			if mode == ModeWorker {
				return nil, nil, err
			}
			// api+worker 混合模式下队列未启用时只跑 HTTP
		} else {
			services = append(services, workerService)
		}
	}

	if len(services) == 0 {
		return nil, nil, errors.New("no services initialized (check mode and config)")
	}

	return NewRunner(services...), container, nil
}

// Run 应用启动入口
func Run(opts Options) error {
	opts = normalizeOptions(opts)
	if opts.Config == nil {
		return errors.New("config is nil")
	}

	runner, container, err := BuildRunner(opts.Config, opts.Mode)
	if err != nil {
		return err
	}
	defer container.Close()

	addr := opts.Config.Server.Host + ":" + opts.Config.Server.Port
	opts.Logger.Infow("app_start", "addr", addr, "mode", opts.Mode)
	return RunWithOptions(runner, opts)
}
