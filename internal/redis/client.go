package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type Client struct {
	*redis.Client
}

func NewClient(ctx context.Context, redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{client}, nil
}

func (c *Client) Close() error {
	return c.Client.Close()
}

// SessionEventChannel carries lifecycle notifications for SSE subscribers.
func SessionEventChannel(sessionID string) string {
	return fmt.Sprintf("session-events:%s", sessionID)
}

// BridgeCommandQueue is the list the transport bridge pops commands from.
const BridgeCommandQueue = "bridge:commands"

func BridgeEventChannel(sessionID string) string {
	return fmt.Sprintf("bridge:evt:%s", sessionID)
}

func BridgeReplyKey(commandID string) string {
	return fmt.Sprintf("bridge:reply:%s", commandID)
}

func SendRateLimitKey(sessionID string) string {
	return fmt.Sprintf("ratelimit:send:%s", sessionID)
}
