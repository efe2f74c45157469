package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/go-guestlist/internal/domain"
)

// EventRepo reads events. Events are owned elsewhere; nothing here writes them.
type EventRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewEventRepo(client *dynamodb.Client, tableName string) *EventRepo {
	return &EventRepo{client: client, tableName: tableName}
}

func (r *EventRepo) Get(ctx context.Context, eventID string) (*domain.Event, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey(fieldEventID, eventID),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("event %s: %w", eventID, domain.ErrNotFound)
	}
	var e domain.Event
	if err := attributevalue.UnmarshalMap(out.Item, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// AccessRepo stores the accessible-events side collection, keyed by
// (user_id, event_id).
type AccessRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewAccessRepo(client *dynamodb.Client, tableName string) *AccessRepo {
	return &AccessRepo{client: client, tableName: tableName}
}

// Grant records that userID may see eventID. Granting twice overwrites.
func (r *AccessRepo) Grant(ctx context.Context, userID, eventID, grantedBy string) error {
	item, err := attributevalue.MarshalMap(domain.AccessibleEvent{
		UserID:    userID,
		EventID:   eventID,
		GrantedBy: grantedBy,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal accessible event: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}
