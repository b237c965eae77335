package notify

import (
	"context"
	"os"
	"testing"
	"time"

	"ephemeral-core/internal/logging"

	"github.com/redis/go-redis/v9"
)

func TestRedisRelay_DeliversPublishedEventsToHub(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()

	hub := NewHub(&fakeRedeemer{}, WithLogger(logging.Discard()))
	relay := NewRedisRelay(rdb, "test:notify:"+time.Now().Format("150405.000"), hub, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	// espera a assinatura valer antes de publicar
	deadline := time.Now().Add(2 * time.Second)
	for {
		n, err := rdb.PubSubNumSub(ctx, relay.channel).Result()
		if err != nil {
			t.Fatalf("numsub: %v", err)
		}
		if n[relay.channel] > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("relay did not subscribe")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := relay.Publish(ctx, "PING", nil); err != nil {
		t.Fatalf("publish: %v", err)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
}
