package notifier

import (
	"context"
	"strings"

	"bagbot/internal/fusion"
	"bagbot/internal/logger"
)

// Alerter 作为 DecisionObserver 挂在融合服务上，只关心指定指令。
// 推送在独立 goroutine 中完成，队列满时丢弃并记日志，不阻塞融合周期。
type Alerter struct {
	sender   TextNotifier
	commands map[fusion.Command]struct{}
	queue    chan fusion.FusionDecision
}

// NewAlerter commands 为空时默认只推 EMERGENCY_ABORT。
func NewAlerter(sender TextNotifier, commands []string, queueSize int) *Alerter {
	if queueSize <= 0 {
		queueSize = 64
	}
	set := make(map[fusion.Command]struct{})
	for _, c := range commands {
		cmd := fusion.Command(strings.ToUpper(strings.TrimSpace(c)))
		if cmd.Valid() {
			set[cmd] = struct{}{}
		}
	}
	if len(set) == 0 {
		set[fusion.CommandEmergencyAbort] = struct{}{}
	}
	return &Alerter{sender: sender, commands: set, queue: make(chan fusion.FusionDecision, queueSize)}
}

// Wants 判断该指令是否需要推送。
func (a *Alerter) Wants(cmd fusion.Command) bool {
	_, ok := a.commands[cmd]
	return ok
}

// AfterDecide 实现 fusion.DecisionObserver。
func (a *Alerter) AfterDecide(_ context.Context, d fusion.FusionDecision) error {
	if !a.Wants(d.FinalCommand) {
		return nil
	}
	select {
	case a.queue <- d:
	default:
		logger.Warnf("告警队列已满，丢弃 %s %s id=%s", d.Symbol, d.FinalCommand, d.ID)
	}
	return nil
}

// Run 消费队列直到 ctx 结束。
func (a *Alerter) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d := <-a.queue:
			text := DecisionMessage(d).RenderMarkdown()
			if err := a.sender.SendText(ctx, text); err != nil {
				logger.Warnf("告警推送失败 id=%s err=%v", d.ID, err)
			}
		}
	}
}
