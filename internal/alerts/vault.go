package alerts

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Notifier is the alert surface the daemon uses. The Telegram client
// satisfies it; a nil Notifier disables alerting.
type Notifier interface {
	Send(ctx context.Context, message string) error
}

// NotifyNativeSendFailure raises an operator alert for a refused native-coin
// transfer: the recipient has to restore liquidity (e.g. through the backstop
// swap) before retrying, and a human usually wants to know.
func NotifyNativeSendFailure(ctx context.Context, n Notifier, log *zap.Logger, recipient, amount string) {
	send(ctx, n, log, fmt.Sprintf("vault: native transfer of %s to %s was refused; withdrawal rolled back", amount, recipient))
}

// NotifyMigration raises an alert when a strategy migration completes.
func NotifyMigration(ctx context.Context, n Notifier, log *zap.Logger, previous, next string) {
	send(ctx, n, log, fmt.Sprintf("vault: strategy migrated %s -> %s", previous, next))
}

// NotifySnapshotFailure raises an alert when state persistence fails; the
// node keeps serving but a crash would lose the delta.
func NotifySnapshotFailure(ctx context.Context, n Notifier, log *zap.Logger, err error) {
	send(ctx, n, log, fmt.Sprintf("vault: snapshot persistence failed: %v", err))
}

func send(ctx context.Context, n Notifier, log *zap.Logger, message string) {
	if n == nil {
		return
	}
	if err := n.Send(ctx, message); err != nil && log != nil {
		log.Warn("alert delivery failed", zap.Error(err))
	}
}
