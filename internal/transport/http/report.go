package httpapi

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// handleReport 渲染规则命中率报表（echarts HTML 页面）。
// 面向人工复盘：哪些规则在挡单、挡得准不准，一眼可见。
func (r *router) handleReport(c *gin.Context) {
	perf, err := r.ledger.RulePerformance(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	names := make([]string, 0, len(perf))
	accuracy := make([]opts.BarData, 0, len(perf))
	triggers := make([]opts.BarData, 0, len(perf))
	for _, p := range perf {
		acc := 0.0
		if n := p.Wins + p.Losses; n > 0 {
			acc = float64(p.Wins) / float64(n) * 100
		}
		names = append(names, p.RuleID)
		accuracy = append(accuracy, opts.BarData{
			Name:  fmt.Sprintf("%s (%dW/%dL)", p.RuleID, p.Wins, p.Losses),
			Value: acc,
		})
		triggers = append(triggers, opts.BarData{Value: p.Triggers})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Rule performance",
			Subtitle: "accuracy (%) and trigger counts per rule",
		}),
		charts.WithInitializationOpts(opts.Initialization{Width: "1200px", Height: "600px"}),
	)
	bar.SetXAxis(names).
		AddSeries("accuracy %", accuracy).
		AddSeries("triggers", triggers)

	c.Status(http.StatusOK)
	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := bar.Render(c.Writer); err != nil {
		respondError(c, err)
	}
}
