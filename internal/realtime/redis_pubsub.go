package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	channelPrefix = "collection:"
	eventTTL      = 5 * time.Second
)

// redisPayload is the change announcement published to Redis.
type redisPayload struct {
	Collection string `json:"collection"`
	At         int64  `json:"at"`
}

// RedisPubSub implements ChangePublisher and ChangeSubscriber using Redis pub/sub.
type RedisPubSub struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisPubSub creates a Redis pub/sub bridge for collection changes.
func NewRedisPubSub(client *redis.Client, logger *zap.Logger) *RedisPubSub {
	return &RedisPubSub{client: client, logger: logger}
}

// PublishChanged publishes a change announcement on the collection's channel.
func (r *RedisPubSub) PublishChanged(ctx context.Context, name string) error {
	body, err := json.Marshal(redisPayload{Collection: name, At: time.Now().UnixMilli()})
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, channelPrefix+name, body).Err()
}

// SubscribeCollection calls handler for every change announced on a collection.
// Returns a cancel function to stop the subscription.
func (r *RedisPubSub) SubscribeCollection(name string, handler func()) (cancel func(), err error) {
	ctx, cancelCtx := context.WithCancel(context.Background())
	pubsub := r.client.Subscribe(ctx, channelPrefix+name)
	ackCtx, ackCancel := context.WithTimeout(ctx, eventTTL)
	_, err = pubsub.Receive(ackCtx)
	ackCancel()
	if err != nil {
		cancelCtx()
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var p redisPayload
				if err := json.Unmarshal([]byte(msg.Payload), &p); err != nil {
					r.logger.Warn("invalid change payload", zap.String("channel", msg.Channel), zap.Error(err))
					continue
				}
				handler()
			}
		}
	}()
	return cancelCtx, nil
}
