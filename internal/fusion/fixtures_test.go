package fusion

import "time"

var tick = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

func f64(v float64) *float64 { return &v }

// alignedRequest 两路意见一致的标准场景。
func alignedRequest() Request {
	return Request{
		EXO: EXODecision{
			Command:    ExoExecute,
			Confidence: 90,
			TargetSize: 1.0,
			Direction:  DirectionLong,
			Reasons:    []string{"trend up"},
			Timestamp:  tick,
		},
		Reactor: ReactorDecision{
			Command:    ReactorExecute,
			DelayMs:    0,
			FinalSize:  0.98,
			OrderType:  OrderMarket,
			Confidence: 88,
			LatencyMs:  f64(15),
			Timestamp:  tick,
		},
		Market: MarketSnapshot{
			Symbol:    "BTCUSDT",
			Price:     65000,
			Bid:       64999.5,
			Ask:       65000.5,
			Timestamp: tick,
		},
	}
}

func vetoRequest() Request {
	req := alignedRequest()
	req.Reactor.Command = ReactorEmergencyAbort
	req.Reactor.Confidence = 95
	return req
}
