package messaging

import (
	"context"

	"github.com/gdg-garage/garage-rsvp-api/internal/metrics"
	"github.com/zeromicro/go-zero/core/logx"
)

// PublishAfterCommit publishes payload without letting a failure reach the
// caller. The state change is already committed; a lost notification is
// logged and counted.
func PublishAfterCommit(ctx context.Context, p Publisher, topic string, payload any) {
	if p == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if err := p.Publish(ctx, topic, payload); err != nil {
		metrics.PublishFailures.WithLabelValues(topic).Inc()
		logx.WithContext(ctx).Errorw("failed to publish domain event",
			logx.Field("topic", topic),
			logx.Field("error", err.Error()),
		)
	}
}
