package sns

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/go-guestlist/internal/config"
	"github.com/go-guestlist/internal/domain"
	"github.com/go-guestlist/internal/infrastructure/awscfg"
)

// PushPublisher hands push notifications to the delivery transport.
type PushPublisher interface {
	PublishPush(ctx context.Context, n *domain.Notification) error
}

type publisher struct {
	client   *sns.Client
	topicARN string
}

// NewPublisher returns a publisher for the configured topic. Delivery to
// devices is the subscriber's concern; the topic fans out by the
// recipient_id message attribute.
func NewPublisher(ctx context.Context, cfg *config.Config) (PushPublisher, error) {
	if cfg.SNSTopicARN == "" {
		return nil, fmt.Errorf("SNS_TOPIC_ARN not set")
	}
	awsCfg, err := awscfg.Load(ctx, cfg, cfg.SNSRegion)
	if err != nil {
		return nil, err
	}
	client := sns.NewFromConfig(awsCfg, func(o *sns.Options) {
		if cfg.AWSEndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWSEndpointURL)
		}
	})
	return &publisher{client: client, topicARN: cfg.SNSTopicARN}, nil
}

type pushPayload struct {
	NotificationID string `json:"notification_id"`
	Type           string `json:"type"`
	Headline       string `json:"headline"`
	ActorID        string `json:"actor_id"`
	EventID        string `json:"event_id,omitempty"`
	ImageURL       string `json:"image_url,omitempty"`
}

func (p *publisher) PublishPush(ctx context.Context, n *domain.Notification) error {
	body, err := json.Marshal(pushPayload{
		NotificationID: n.NotificationID,
		Type:           string(n.Type),
		Headline:       n.Headline,
		ActorID:        n.ActorID,
		EventID:        n.EventIDValue(),
		ImageURL:       n.ImageURL,
	})
	if err != nil {
		return fmt.Errorf("encode push: %w", err)
	}
	_, err = p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"recipient_id": {DataType: aws.String("String"), StringValue: aws.String(n.UserID)},
			"type":         {DataType: aws.String("String"), StringValue: aws.String(string(n.Type))},
		},
	})
	return err
}
