package auditlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// AuditStore 管理决策事件的追加式审计流水，方便后续排查/可视化。
// 与主库分离：审计写入失败不应影响决策主流程的持久化。
type AuditStore struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

// Event 一条审计事件。Payload 保存事件发生时的完整 JSON 快照。
type Event struct {
	ID         int64           `json:"id"`
	DecisionID string          `json:"decision_id"`
	Ticker     string          `json:"ticker"`
	Kind       string          `json:"kind"` // decision / outcome / regime_flip / tune
	Payload    json.RawMessage `json:"payload,omitempty"`
	Timestamp  int64           `json:"ts"`
}

const (
	KindDecision   = "decision"
	KindOutcome    = "outcome"
	KindRegimeFlip = "regime_flip"
	KindTune       = "tune"
)

func New(path string) (*AuditStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("audit log: 路径不能为空")
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	s := &AuditStore{db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *AuditStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS audit_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		decision_id TEXT NOT NULL DEFAULT '',
		ticker TEXT NOT NULL DEFAULT '',
		kind TEXT NOT NULL,
		payload TEXT NOT NULL DEFAULT '',
		ts INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_audit_ticker_ts ON audit_events(ticker, ts);
	CREATE INDEX IF NOT EXISTS idx_audit_decision ON audit_events(decision_id);`)
	return err
}

func (s *AuditStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Append 追加一条事件。审计流水只增不改。
func (s *AuditStore) Append(ctx context.Context, ev Event) error {
	if ev.Kind == "" {
		return fmt.Errorf("audit log: kind 不能为空")
	}
	if ev.Timestamp == 0 {
		ev.Timestamp = time.Now().Unix()
	}
	payload := "{}"
	if len(ev.Payload) > 0 {
		payload = string(ev.Payload)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_events (decision_id, ticker, kind, payload, ts) VALUES (?, ?, ?, ?, ?)`,
		ev.DecisionID, strings.ToUpper(ev.Ticker), ev.Kind, payload, ev.Timestamp)
	if err != nil {
		return fmt.Errorf("audit log: append %s: %w", ev.Kind, err)
	}
	return nil
}

// AppendJSON 把任意载荷序列化后追加，序列化失败时仍记录事件本体。
func (s *AuditStore) AppendJSON(ctx context.Context, decisionID, ticker, kind string, payload interface{}) error {
	var raw json.RawMessage
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			raw = data
		}
	}
	return s.Append(ctx, Event{DecisionID: decisionID, Ticker: ticker, Kind: kind, Payload: raw})
}

// Recent 按时间倒序取最近 limit 条；ticker 为空时不过滤。
func (s *AuditStore) Recent(ctx context.Context, ticker string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, decision_id, ticker, kind, payload, ts FROM audit_events`
	args := []interface{}{}
	if ticker != "" {
		query += ` WHERE ticker = ?`
		args = append(args, strings.ToUpper(ticker))
	}
	query += ` ORDER BY ts DESC, id DESC LIMIT ?`
	args = append(args, limit)

	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		var payload string
		if err := rows.Scan(&ev.ID, &ev.DecisionID, &ev.Ticker, &ev.Kind, &payload, &ev.Timestamp); err != nil {
			return nil, err
		}
		if payload != "" {
			ev.Payload = json.RawMessage(payload)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
