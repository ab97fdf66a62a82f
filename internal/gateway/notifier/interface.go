package notifier

import "context"

// TextNotifier 最小文本推送接口，Alerter 只依赖它，测试时可替换。
type TextNotifier interface {
	SendText(ctx context.Context, text string) error
}
