// Package push publishes best-effort push events to an SNS topic. The
// mobile/web push pipeline downstream of the topic is outside this
// service; failures here are logged and never surfaced to the
// notification creation path.
package push

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"go.uber.org/zap"

	"github.com/lokalkafe/lokal-notify/internal/db"
)

// Message is the payload published per notification.
type Message struct {
	NotificationID string `json:"notification_id"`
	UserID         string `json:"user_id"`
	Title          string `json:"title"`
	Message        string `json:"message"`
	Category       string `json:"category"`
	ActionURL      string `json:"action_url,omitempty"`
}

// Publisher sends push events to an SNS topic.
type Publisher struct {
	client   *sns.Client
	topicARN string
	logger   *zap.Logger
}

// NewPublisher creates an SNS publisher for the given topic.
func NewPublisher(ctx context.Context, region, topicARN string, logger *zap.Logger) (*Publisher, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	logger.Info("push publisher initialized",
		zap.String("topic_arn", topicARN),
	)

	return &Publisher{
		client:   sns.NewFromConfig(awsCfg),
		topicARN: topicARN,
		logger:   logger,
	}, nil
}

// Publish sends one push event for a notification. The user_id message
// attribute lets per-user subscription filters route the event.
func (p *Publisher) Publish(ctx context.Context, notif *db.Notification) error {
	msg := Message{
		NotificationID: notif.ID.String(),
		UserID:         notif.UserID.String(),
		Title:          notif.Title,
		Message:        notif.Message,
		Category:       string(notif.Category),
	}
	if notif.ActionURL != nil {
		msg.ActionURL = *notif.ActionURL
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal push message: %w", err)
	}

	input := &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Message:  aws.String(string(payload)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"user_id": {
				DataType:    aws.String("String"),
				StringValue: aws.String(msg.UserID),
			},
			"category": {
				DataType:    aws.String("String"),
				StringValue: aws.String(msg.Category),
			},
		},
	}

	result, err := p.client.Publish(ctx, input)
	if err != nil {
		return fmt.Errorf("publish to sns: %w", err)
	}

	p.logger.Debug("push event published",
		zap.String("notification_id", msg.NotificationID),
		zap.String("sns_message_id", aws.ToString(result.MessageId)),
	)

	return nil
}
