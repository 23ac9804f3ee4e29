package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	ocfg "optiq/internal/config"
	"optiq/internal/decision"
	"optiq/internal/logger"
	"optiq/internal/monitor"
	"optiq/internal/observer"
	"optiq/internal/scheduler"
	"optiq/internal/store"
	"optiq/internal/store/auditlog"
	httpapi "optiq/internal/transport/http"
)

// App 负责应用级编排：加载配置→初始化依赖→启动 HTTP 与持仓扫描。
type App struct {
	cfg     *ocfg.Config
	store   store.Store
	audit   *auditlog.AuditStore
	ledger  *observer.Ledger
	orch    *decision.Orchestrator
	monitor *monitor.Monitor
	server  *httpapi.Server

	watcher *ocfg.Watcher
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(cfg *ocfg.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(cfg)
}

// Run 启动全部服务并阻塞到 ctx 取消。
func (a *App) Run(ctx context.Context, configPath string) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}

	a.ledger.Start()
	defer a.ledger.Stop()
	defer a.closeStores()

	if configPath != "" {
		a.watcher = ocfg.NewWatcher(configPath, func(next *ocfg.Config) {
			a.orch.SetConfig(next)
			logger.SetLevel(next.App.LogLevel)
		})
		if err := a.watcher.Start(); err != nil {
			logger.Warnf("配置热加载未启用: %v", err)
		} else {
			defer a.watcher.Stop()
		}
	}

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := a.server.Start(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})

	if a.monitor != nil && a.cfg.Monitor.Enabled {
		interval := time.Duration(a.cfg.Monitor.IntervalSeconds) * time.Second
		group.Go(func() error {
			sched := scheduler.NewIntervalScheduler(ctx, "position-monitor", interval)
			sched.Start(func() {
				if _, err := a.monitor.Sweep(ctx); err != nil {
					logger.Errorf("持仓扫描失败: %v", err)
				}
			})
			return nil
		})
	}

	logger.Infof("optiq started http=%s monitor=%v", a.server.Addr(), a.cfg.Monitor.Enabled)
	return group.Wait()
}

func (a *App) closeStores() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logger.Warnf("主库关闭失败: %v", err)
		}
	}
	if a.audit != nil {
		if err := a.audit.Close(); err != nil {
			logger.Warnf("审计库关闭失败: %v", err)
		}
	}
}

// Orchestrator exposes the decision entry point (for testing/replay harnesses).
func (a *App) Orchestrator() *decision.Orchestrator {
	if a == nil {
		return nil
	}
	return a.orch
}
