package explorer

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ListenRefresh — «живучая» подписка на сигнал обновления коллекции.
// Любое сообщение в канале запускает onSignal. После переподключения onSignal вызывается сразу:
// пока подписки не было, сигналы могли потеряться.
func ListenRefresh(
	ctx context.Context,
	rdb *redis.Client,
	logger *zap.Logger,
	channel string,
	onSignal func(ctx context.Context, payload string),
) {
	logger = logger.With(zap.String("mod", "refresh-listener"), zap.String("chan", channel))
	connected := false

	for {
		pubsub := rdb.Subscribe(ctx, channel)

		// Проверка успешности подписки
		if _, err := pubsub.Receive(ctx); err != nil {
			pubsub.Close()
			if ctx.Err() != nil {
				return
			}
			logger.Error("failed to subscribe", zap.Error(err))
			if !sleepCtx(ctx, 5*time.Second) {
				return
			}
			continue
		}

		if connected {
			logger.Info("resubscribed, refreshing to catch up")
			onSignal(ctx, "reconnect")
		}
		connected = true

		ch := pubsub.Channel()

	loop:
		for {
			select {
			case <-ctx.Done():
				pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break loop // Канал закрыт, идем на переподключение
				}
				logger.Debug("refresh signal", zap.String("payload", msg.Payload))
				onSignal(ctx, msg.Payload)
			}
		}

		pubsub.Close()
		if !sleepCtx(ctx, time.Second) {
			return
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
