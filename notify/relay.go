package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"ephemeral-core/internal/logging"

	"github.com/redis/go-redis/v9"
)

// RedisRelay espalha eventos entre instâncias via Redis Pub/Sub.
//
// Publish só publica no canal; a entrega local acontece em Run, que assina o
// mesmo canal. Assim cada instância entrega exatamente uma vez.
type RedisRelay struct {
	rdb     *redis.Client
	channel string
	hub     *Hub
	log     *slog.Logger
}

var _ Publisher = (*RedisRelay)(nil)

func NewRedisRelay(rdb *redis.Client, channel string, hub *Hub, lg *slog.Logger) *RedisRelay {
	if channel == "" {
		channel = "coordinator:notify"
	}
	return &RedisRelay{rdb: rdb, channel: channel, hub: hub, log: logging.Or(lg)}
}

func (r *RedisRelay) Publish(ctx context.Context, kind string, data any) error {
	b, err := json.Marshal(Message{Type: kind, Data: data})
	if err != nil {
		return err
	}
	if err := r.rdb.Publish(ctx, r.channel, b).Err(); err != nil {
		return fmt.Errorf("notify: publish %s: %w", r.channel, err)
	}
	return nil
}

// Run assina o canal e repassa as mensagens para o hub local até o ctx encerrar.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.rdb.Subscribe(ctx, r.channel)
	defer sub.Close()

	// confirma a assinatura antes de começar a consumir
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("notify: subscribe %s: %w", r.channel, err)
	}
	r.log.Info("notify relay subscribed", "channel", r.channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			n := r.hub.broadcast([]byte(m.Payload))
			r.log.Debug("notify relay delivered", "channel", r.channel, "clients", n)
		}
	}
}
