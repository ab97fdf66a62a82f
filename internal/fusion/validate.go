package fusion

import "strings"

// Validate 在任何状态变更之前检查输入；不猜默认值，也不把缺失字段当作 EXECUTE。
func (r Request) Validate() error {
	verr := &ValidationError{}
	validateEXO(verr, r.EXO)
	validateReactor(verr, r.Reactor)
	validateMarket(verr, r.Market)
	return verr.orNil()
}

func validateEXO(verr *ValidationError, d EXODecision) {
	const src = "exo"
	if d.Command == "" {
		verr.add(src, "command", "is required")
	} else if !d.Command.Valid() {
		verr.add(src, "command", "unknown command %q", d.Command)
	}
	checkPercent(verr, src, "confidence", d.Confidence)
	if !finite(d.TargetSize) || d.TargetSize < 0 {
		verr.add(src, "target_size", "must be >= 0, got %v", d.TargetSize)
	}
	if d.Direction == "" {
		verr.add(src, "direction", "is required")
	} else if !d.Direction.Valid() {
		verr.add(src, "direction", "unknown direction %q", d.Direction)
	}
	if d.RiskScore != nil {
		checkPercent(verr, src, "risk_score", *d.RiskScore)
	}
	if d.Timestamp.IsZero() {
		verr.add(src, "timestamp", "is required")
	}
}

func validateReactor(verr *ValidationError, d ReactorDecision) {
	const src = "reactor"
	if d.Command == "" {
		verr.add(src, "command", "is required")
	} else if !d.Command.Valid() {
		verr.add(src, "command", "unknown command %q", d.Command)
	}
	if !finite(d.DelayMs) || d.DelayMs < 0 {
		verr.add(src, "delay_ms", "must be >= 0, got %v", d.DelayMs)
	}
	if !finite(d.FinalSize) || d.FinalSize < 0 {
		verr.add(src, "final_size", "must be >= 0, got %v", d.FinalSize)
	}
	if d.OrderType == "" {
		verr.add(src, "order_type", "is required")
	} else if !d.OrderType.Valid() {
		verr.add(src, "order_type", "unknown order type %q", d.OrderType)
	}
	checkPercent(verr, src, "confidence", d.Confidence)
	if d.LatencyMs != nil && (!finite(*d.LatencyMs) || *d.LatencyMs < 0) {
		verr.add(src, "latency_ms", "must be >= 0, got %v", *d.LatencyMs)
	}
	if d.PressureScore != nil {
		checkPercent(verr, src, "pressure_score", *d.PressureScore)
	}
	if d.Timestamp.IsZero() {
		verr.add(src, "timestamp", "is required")
	}
}

func validateMarket(verr *ValidationError, m MarketSnapshot) {
	const src = "market"
	if strings.TrimSpace(m.Symbol) == "" {
		verr.add(src, "symbol", "is required")
	}
	if !finite(m.Price) || m.Price <= 0 {
		verr.add(src, "price", "must be > 0, got %v", m.Price)
	}
	if !finite(m.Bid) || m.Bid < 0 {
		verr.add(src, "bid", "must be >= 0, got %v", m.Bid)
	}
	if !finite(m.Ask) || m.Ask < 0 {
		verr.add(src, "ask", "must be >= 0, got %v", m.Ask)
	}
	if m.Bid > 0 && m.Ask > 0 && m.Bid > m.Ask {
		verr.add(src, "bid", "crossed book: bid %v > ask %v", m.Bid, m.Ask)
	}
}

func checkPercent(verr *ValidationError, src, field string, v float64) {
	if !finite(v) || v < 0 || v > 100 {
		verr.add(src, field, "must be in [0,100], got %v", v)
	}
}
