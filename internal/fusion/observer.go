package fusion

import "context"

// DecisionObserver 在每次成功融合后被调用（审计落库、推送、指标）。
// 返回的错误只记录日志，不影响决策本身。
type DecisionObserver interface {
	AfterDecide(ctx context.Context, d FusionDecision) error
}

// RejectionObserver 可选接口：输入校验失败时回调。
type RejectionObserver interface {
	OnRejected(ctx context.Context, req Request, err error)
}

// ObserverFunc 适配普通函数。
type ObserverFunc func(ctx context.Context, d FusionDecision) error

func (f ObserverFunc) AfterDecide(ctx context.Context, d FusionDecision) error {
	if f == nil {
		return nil
	}
	return f(ctx, d)
}
