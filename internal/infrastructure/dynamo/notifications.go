package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-guestlist/internal/domain"
)

// batchWriteLimit is DynamoDB's per-request item cap for BatchWriteItem.
const batchWriteLimit = 25

// NotificationRepo provides typed DynamoDB operations for the notifications table.
type NotificationRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewNotificationRepo(client *dynamodb.Client, tableName string) *NotificationRepo {
	return &NotificationRepo{client: client, tableName: tableName}
}

func (r *NotificationRepo) Put(ctx context.Context, n *domain.Notification) error {
	if n.ExpiresAt != nil {
		n.ExpiresTTL = n.ExpiresAt.Unix()
	}
	item, err := attributevalue.MarshalMap(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w: %v", domain.ErrEncoding, err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

// ListByUser queries the user_id-created_at GSI newest first.
func (r *NotificationRepo) ListByUser(ctx context.Context, userID string) ([]domain.Notification, error) {
	input := &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String(indexUserCreatedAt),
		KeyConditionExpression:    aws.String("#u = :uid"),
		ExpressionAttributeNames:  map[string]string{"#u": fieldUserID},
		ExpressionAttributeValues: map[string]types.AttributeValue{":uid": &types.AttributeValueMemberS{Value: userID}},
		ScanIndexForward:          aws.Bool(false),
	}
	var notifications []domain.Notification
	p := dynamodb.NewQueryPaginator(r.client, input)
	for p.HasMorePages() {
		out, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		var page []domain.Notification
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, err
		}
		notifications = append(notifications, page...)
	}
	return notifications, nil
}

// BatchDelete removes every notification in ids, 25 per request, retrying
// unprocessed items until the table accepts them.
func (r *NotificationRepo) BatchDelete(ctx context.Context, ids []string) error {
	for _, part := range chunk(ids, batchWriteLimit) {
		reqs := make([]types.WriteRequest, 0, len(part))
		for _, id := range part {
			reqs = append(reqs, types.WriteRequest{
				DeleteRequest: &types.DeleteRequest{Key: strKey(fieldNotificationID, id)},
			})
		}
		pending := map[string][]types.WriteRequest{r.tableName: reqs}
		for len(pending) > 0 {
			out, err := r.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
			if err != nil {
				return err
			}
			pending = out.UnprocessedItems
		}
	}
	return nil
}

// WatermarkRepo stores the per-user "notifications last viewed" watermark.
type WatermarkRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewWatermarkRepo(client *dynamodb.Client, tableName string) *WatermarkRepo {
	return &WatermarkRepo{client: client, tableName: tableName}
}

type watermarkItem struct {
	UserID       string `dynamodbav:"user_id"`
	LastViewedAt int64  `dynamodbav:"last_viewed_at"`
}

// Get returns the watermark, or nil when the user has never viewed notifications.
func (r *WatermarkRepo) Get(ctx context.Context, userID string) (*time.Time, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey(fieldUserID, userID),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, nil
	}
	var w watermarkItem
	if err := attributevalue.UnmarshalMap(out.Item, &w); err != nil {
		return nil, err
	}
	t := time.Unix(w.LastViewedAt, 0).UTC()
	return &t, nil
}

// Advance moves the watermark to at, never backwards.
func (r *WatermarkRepo) Advance(ctx context.Context, userID string, at time.Time) error {
	ue, err := buildUpdateExpr(map[string]interface{}{fieldLastViewedAt: at.Unix()})
	if err != nil {
		return err
	}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey(fieldUserID, userID),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String("attribute_not_exists(#f0) OR #f0 < :v0"),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	if isConditionFailed(err) {
		return nil
	}
	return err
}
