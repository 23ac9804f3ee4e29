// Package observer closes the decision loop: it persists decisions,
// records outcomes, accumulates rule statistics and derives tuning
// recommendations.
//
// 中文说明：
// Ledger 是系统的记账 actor。所有对 rule_performance 与 regime 状态的
// 读改写都经由单一事件循环串行执行：两个并发 orchestration 调用命中
// 同一条规则或同一 ticker 时，更新按入队顺序依次落库，不存在
// 读到旧值再覆盖的窗口。同一决策的触发计数先于它的 outcome 入队，
// 顺序天然成立。
package observer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"optiq/internal/logger"
	"optiq/internal/store"
	"optiq/internal/store/auditlog"
)

type envelope struct {
	name    string
	run     func(ctx context.Context) error
	replyCh chan error
}

// Ledger is the single-goroutine bookkeeping actor.
type Ledger struct {
	store store.Store
	audit *auditlog.AuditStore // 可为 nil：审计流水是旁路

	msgCh  chan envelope
	stopCh chan struct{}
	wg     sync.WaitGroup

	now func() time.Time
}

func NewLedger(st store.Store, audit *auditlog.AuditStore) *Ledger {
	return &Ledger{
		store:  st,
		audit:  audit,
		msgCh:  make(chan envelope, 100),
		stopCh: make(chan struct{}),
		now:    time.Now,
	}
}

func (l *Ledger) Start() {
	l.wg.Add(1)
	go l.runLoop()
}

func (l *Ledger) Stop() {
	close(l.stopCh)
	l.wg.Wait()
}

func (l *Ledger) runLoop() {
	defer l.wg.Done()
	logger.Infof("Ledger actor started")
	for {
		select {
		case evt := <-l.msgCh:
			l.handle(evt)
		case <-l.stopCh:
			// 清空积压再退出，避免已接受的更新丢失。
			for {
				select {
				case evt := <-l.msgCh:
					l.handle(evt)
				default:
					logger.Infof("Ledger actor stopped")
					return
				}
			}
		}
	}
}

func (l *Ledger) handle(evt envelope) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("Ledger: %s panicked: %v", evt.name, r)
			if evt.replyCh != nil {
				evt.replyCh <- fmt.Errorf("ledger: %s panicked: %v", evt.name, r)
			}
		}
	}()
	err := evt.run(context.Background())
	if evt.replyCh != nil {
		evt.replyCh <- err
	}
}

// submit 同步提交一条命令并等待回执。
func (l *Ledger) submit(ctx context.Context, name string, run func(ctx context.Context) error) error {
	evt := envelope{name: name, run: run, replyCh: make(chan error, 1)}
	select {
	case l.msgCh <- evt:
	case <-l.stopCh:
		return fmt.Errorf("ledger: 已停止，拒绝 %s", name)
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-evt.replyCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
