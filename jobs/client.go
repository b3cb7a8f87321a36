package jobs

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
)

// Client enqueues tasks from the web process.
type Client struct {
	client *asynq.Client
}

// NewClient constructs a Client over redis.
func NewClient(redisOpts asynq.RedisClientOpt) (*Client, error) {
	return &Client{client: asynq.NewClient(redisOpts)}, nil
}

// EnqueueNotificationFanout queues a notification fan-out on the
// notifications queue.
func (c *Client) EnqueueNotificationFanout(ctx context.Context, payload NotificationFanoutPayload) (*asynq.TaskInfo, error) {
	task, err := NewNotificationFanoutTask(payload)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueNotifications),
		asynq.MaxRetry(5),
		asynq.Timeout(time.Minute),
	)
}

// Close releases the redis connection.
func (c *Client) Close() error {
	return c.client.Close()
}
