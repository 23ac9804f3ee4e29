package app

import (
	"fmt"

	ocfg "optiq/internal/config"
	"optiq/internal/decision"
	"optiq/internal/market"
	"optiq/internal/monitor"
	"optiq/internal/notifier"
	"optiq/internal/observer"
	"optiq/internal/rules"
	"optiq/internal/store"
	"optiq/internal/store/auditlog"
	"optiq/internal/store/gormstore"
	httpapi "optiq/internal/transport/http"
)

// AppBuilder 分步组装依赖。每个 Fn 可在测试里替换为假实现。
type AppBuilder struct {
	cfg *ocfg.Config

	storeFn  func(ocfg.StoreConfig) (store.Store, error)
	auditFn  func(ocfg.StoreConfig) (*auditlog.AuditStore, error)
	marketFn func(ocfg.MarketConfig) (market.Client, error)
	serverFn func(httpapi.ServerConfig) (*httpapi.Server, error)

	notifyOverride notifier.TextNotifier
}

type AppBuilderOption func(*AppBuilder)

// WithNotifier 替换通知实现（测试注入）。
func WithNotifier(n notifier.TextNotifier) AppBuilderOption {
	return func(b *AppBuilder) { b.notifyOverride = n }
}

func NewAppBuilder(cfg *ocfg.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:      cfg,
		storeFn:  buildStore,
		auditFn:  buildAuditStore,
		marketFn: buildMarketClient,
		serverFn: httpapi.NewServer,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func buildStore(cfg ocfg.StoreConfig) (store.Store, error) {
	return gormstore.NewGormStore(cfg.Path)
}

func buildAuditStore(cfg ocfg.StoreConfig) (*auditlog.AuditStore, error) {
	if cfg.AuditPath == "" {
		return nil, nil
	}
	return auditlog.New(cfg.AuditPath)
}

func buildMarketClient(cfg ocfg.MarketConfig) (market.Client, error) {
	if cfg.BaseURL == "" {
		return nil, nil
	}
	return market.NewRESTClient(cfg)
}

// Build 组装完整应用。
func (b *AppBuilder) Build() (*App, error) {
	cfg := b.cfg
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}

	catalog, err := rules.Load(cfg.RulesPath)
	if err != nil {
		return nil, fmt.Errorf("加载规则目录失败: %w", err)
	}

	st, err := b.storeFn(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("初始化主库失败: %w", err)
	}
	audit, err := b.auditFn(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("初始化审计库失败: %w", err)
	}

	ledger := observer.NewLedger(st, audit)
	tuner := observer.NewTuner(catalog, cfg.Tuning)
	orch := decision.NewOrchestrator(cfg, catalog, ledger, ledger)

	var notify notifier.TextNotifier = notifier.Nop{}
	if b.notifyOverride != nil {
		notify = b.notifyOverride
	} else if cfg.Notify.Telegram.Enabled {
		notify = notifier.NewTelegram(cfg.Notify.Telegram.BotToken, cfg.Notify.Telegram.ChatID)
	}

	client, err := b.marketFn(cfg.Market)
	if err != nil {
		return nil, fmt.Errorf("初始化行情客户端失败: %w", err)
	}

	var mon *monitor.Monitor
	if client != nil {
		atr := market.NewATRService(client, cfg.Market)
		mon = monitor.New(st, client, atr, orch, notify, cfg.Monitor)
	}

	server, err := b.serverFn(httpapi.ServerConfig{
		Addr:    cfg.App.HTTPAddr,
		Orch:    orch,
		Ledger:  ledger,
		Tuner:   tuner,
		Store:   st,
		Audit:   audit,
		Monitor: mon,
		Notify:  notify,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 HTTP 服务失败: %w", err)
	}

	return &App{
		cfg:     cfg,
		store:   st,
		audit:   audit,
		ledger:  ledger,
		orch:    orch,
		monitor: mon,
		server:  server,
	}, nil
}
