package storage

import (
	"context"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"
)

// notificationRequest is read by the notification scheduler. The notification
// id is opaque here.
type notificationRequest struct {
	Action         string `json:"action"`
	NotificationID string `json:"notificationId"`
	TaskID         string `json:"taskId,omitempty"`
	RequestedAt    int64  `json:"requestedAt"`
}

// QueueNotifications hands cancel requests to the notification scheduler
// through an Azure storage queue.
type QueueNotifications struct {
	queue *azqueue.QueueClient
	now   func() time.Time
}

func NewQueueNotifications(connStr, queueName string) (*QueueNotifications, error) {
	opts := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute,
				RetryDelay:    time.Second,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	q, err := azqueue.NewQueueClientFromConnectionString(connStr, queueName, &opts)
	if err != nil {
		return nil, err
	}
	return &QueueNotifications{queue: q, now: time.Now}, nil
}

func encodeCancel(taskID, notificationID string, at time.Time) (string, error) {
	data, err := sonic.Marshal(notificationRequest{
		Action:         "cancel",
		NotificationID: notificationID,
		TaskID:         taskID,
		RequestedAt:    at.UnixMilli(),
	})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// CancelNotification asks the scheduler to drop a scheduled notification.
func (q *QueueNotifications) CancelNotification(ctx context.Context, taskID, notificationID string) error {
	msg, err := encodeCancel(taskID, notificationID, q.now())
	if err != nil {
		return err
	}
	_, err = q.queue.EnqueueMessage(ctx, msg, nil)
	return err
}
