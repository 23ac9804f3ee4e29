package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"optiq/internal/decision"
	"optiq/internal/logger"
	"optiq/internal/monitor"
	"optiq/internal/notifier"
	"optiq/internal/observer"
	"optiq/internal/store"
	"optiq/internal/store/auditlog"
)

type router struct {
	orch    *decision.Orchestrator
	ledger  *observer.Ledger
	tuner   *observer.Tuner
	store   store.Store
	audit   *auditlog.AuditStore
	monitor *monitor.Monitor
	notify  notifier.TextNotifier
}

func newRouter(cfg ServerConfig) *router {
	return &router{
		orch:    cfg.Orch,
		ledger:  cfg.Ledger,
		tuner:   cfg.Tuner,
		store:   cfg.Store,
		audit:   cfg.Audit,
		monitor: cfg.Monitor,
		notify:  cfg.Notify,
	}
}

func (r *router) register(g *gin.RouterGroup) {
	g.POST("/decide/entry", r.handleEntry)
	g.POST("/decide/hold", r.handleHold)
	g.POST("/decide/exit", r.handleExit)
	g.POST("/outcomes/:id", r.handleOutcome)
	g.GET("/decisions", r.handleDecisions)
	g.GET("/positions", r.handlePositions)
	g.GET("/regime/:ticker", r.handleRegime)
	g.GET("/rules/tuning", r.handleTuning)
	g.GET("/audit", r.handleAudit)
	g.GET("/report", r.handleReport)
	if r.monitor != nil {
		g.POST("/monitor/sweep", r.handleSweep)
	}
}

// respondError 按错误类型映射状态码：
// 语义校验失败 422，结构校验失败 400，其余 500。
func respondError(c *gin.Context, err error) {
	var verr *decision.ValidationError
	if errors.As(err, &verr) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": verr.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func (r *router) handleEntry(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "读取请求失败"})
		return
	}
	if err := decision.ValidateEntryPayload(raw); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var req decision.EntryRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rec, err := r.orch.Entry(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	if rec.Action == decision.ActionExecute {
		if nerr := r.notify.SendText(notifier.FormatDecision(rec)); nerr != nil {
			logger.Warnf("http: 入场通知发送失败: %v", nerr)
		}
	}
	c.JSON(http.StatusOK, rec)
}

func (r *router) handleHold(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "读取请求失败"})
		return
	}
	if err := decision.ValidatePositionPayload(raw); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var req decision.HoldRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rec, err := r.orch.Hold(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (r *router) handleExit(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "读取请求失败"})
		return
	}
	if err := decision.ValidatePositionPayload(raw); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var req decision.ExitRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rec, err := r.orch.Exit(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

type outcomeRequest struct {
	PnlPct     float64 `json:"pnl_pct"`
	WasCorrect bool    `json:"was_correct"`
}

func (r *router) handleOutcome(c *gin.Context) {
	var req outcomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := r.ledger.RecordOutcome(c.Request.Context(), c.Param("id"), req.PnlPct, req.WasCorrect); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "recorded"})
}

func (r *router) handleDecisions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	recs, err := r.store.ListRecentDecisions(c.Request.Context(), c.Query("ticker"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"decisions": recs})
}

func (r *router) handlePositions(c *gin.Context) {
	recs, err := r.store.ListOpenPositions(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": recs})
}

func (r *router) handleRegime(c *gin.Context) {
	rec, err := r.ledger.CurrentRegime(c.Request.Context(), c.Param("ticker"))
	if err != nil {
		respondError(c, err)
		return
	}
	if rec == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "该 ticker 尚无 regime 记录"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (r *router) handleTuning(c *gin.Context) {
	perf, err := r.ledger.RulePerformance(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"analysis":        r.tuner.Analyze(perf),
		"recommendations": r.tuner.Recommendations(perf),
	})
}

func (r *router) handleAudit(c *gin.Context) {
	if r.audit == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "审计流水未启用"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	events, err := r.audit.Recent(c.Request.Context(), c.Query("ticker"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (r *router) handleSweep(c *gin.Context) {
	sum, err := r.monitor.Sweep(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}
