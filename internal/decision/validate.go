package decision

import (
	"fmt"
	"strings"
)

// ValidationError 请求边界校验失败。命名到具体字段，
// 上游（HTTP 422）据此直接回给调用方。
type ValidationError struct {
	Entity   string
	Field    string
	Expected string
	Actual   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s.%s 非法：期望 %s，实际 %s", e.Entity, e.Field, e.Expected, e.Actual)
}

func invalid(entity, field, expected string, actual any) *ValidationError {
	return &ValidationError{
		Entity:   entity,
		Field:    field,
		Expected: expected,
		Actual:   fmt.Sprintf("%v", actual),
	}
}

func (r *EntryRequest) validate() error {
	r.Bundle.Signal.HydrateFromRaw()
	r.Bundle.Signal.Ticker = strings.ToUpper(strings.TrimSpace(r.Bundle.Signal.Ticker))
	if r.Bundle.Signal.Ticker == "" {
		return invalid("entry", "bundle.signal.ticker", "非空 ticker", "\"\"")
	}
	if r.Bundle.Signal.Direction == "" {
		return invalid("entry", "bundle.signal.direction", "LONG/SHORT/NEUTRAL", "\"\"")
	}
	if r.Bundle.Signal.Strength < 0 || r.Bundle.Signal.Strength > 100 {
		return invalid("entry", "bundle.signal.strength", "0-100", r.Bundle.Signal.Strength)
	}
	if r.OptionPrice <= 0 {
		return invalid("entry", "option_price", ">0", r.OptionPrice)
	}
	if r.PortfolioValue <= 0 {
		return invalid("entry", "portfolio_value", ">0", r.PortfolioValue)
	}
	if r.DTE < 0 {
		return invalid("entry", "dte", ">=0", r.DTE)
	}
	return nil
}

func (p *PositionState) validate(entity string) error {
	p.Ticker = strings.ToUpper(strings.TrimSpace(p.Ticker))
	if p.Ticker == "" {
		return invalid(entity, "position.ticker", "非空 ticker", "\"\"")
	}
	if p.EntryPrice <= 0 {
		return invalid(entity, "position.entry_price", ">0", p.EntryPrice)
	}
	if p.Quantity <= 0 {
		return invalid(entity, "position.quantity", ">0", p.Quantity)
	}
	if p.PartialExitsTaken < 0 {
		return invalid(entity, "position.partial_exits_taken", ">=0", p.PartialExitsTaken)
	}
	if p.DTE < 0 {
		return invalid(entity, "position.dte", ">=0", p.DTE)
	}
	return nil
}

func (r *HoldRequest) validate() error {
	if err := r.Position.validate("hold"); err != nil {
		return err
	}
	if r.CurrentPrice <= 0 {
		return invalid("hold", "current_price", ">0", r.CurrentPrice)
	}
	return nil
}

func (r *ExitRequest) validate() error {
	if err := r.Position.validate("exit"); err != nil {
		return err
	}
	if r.CurrentPrice <= 0 {
		return invalid("exit", "current_price", ">0", r.CurrentPrice)
	}
	return nil
}
