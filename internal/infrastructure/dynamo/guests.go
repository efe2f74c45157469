package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-guestlist/internal/domain"
)

// GuestRepo provides typed DynamoDB operations for the guests table.
// Items are keyed by (event_id, guest_id).
type GuestRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewGuestRepo(client *dynamodb.Client, tableName string) *GuestRepo {
	return &GuestRepo{client: client, tableName: tableName}
}

// ListByEvent returns the full guestlist of an event, following pagination.
func (r *GuestRepo) ListByEvent(ctx context.Context, eventID string) ([]domain.Guest, error) {
	input := &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		KeyConditionExpression:    aws.String("#e = :e"),
		ExpressionAttributeNames:  map[string]string{"#e": fieldEventID},
		ExpressionAttributeValues: map[string]types.AttributeValue{":e": &types.AttributeValueMemberS{Value: eventID}},
	}
	var guests []domain.Guest
	p := dynamodb.NewQueryPaginator(r.client, input)
	for p.HasMorePages() {
		out, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		var page []domain.Guest
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, fmt.Errorf("unmarshal guests: %w", err)
		}
		guests = append(guests, page...)
	}
	return guests, nil
}

func (r *GuestRepo) Get(ctx context.Context, eventID, guestID string) (*domain.Guest, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            compositeKey(fieldEventID, eventID, fieldGuestID, guestID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("guest %s: %w", guestID, domain.ErrNotFound)
	}
	var g domain.Guest
	if err := attributevalue.UnmarshalMap(out.Item, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// GetByUsername looks a guest up through the event_id-username GSI.
func (r *GuestRepo) GetByUsername(ctx context.Context, eventID, username string) (*domain.Guest, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String(indexGuestUsername),
		KeyConditionExpression: aws.String("#e = :e AND #u = :u"),
		ExpressionAttributeNames: map[string]string{
			"#e": fieldEventID,
			"#u": fieldUsername,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":e": &types.AttributeValueMemberS{Value: eventID},
			":u": &types.AttributeValueMemberS{Value: username},
		},
		Limit: aws.Int32(1),
	})
	if err != nil {
		return nil, err
	}
	if len(out.Items) == 0 {
		return nil, fmt.Errorf("guest @%s: %w", username, domain.ErrNotFound)
	}
	var g domain.Guest
	if err := attributevalue.UnmarshalMap(out.Items[0], &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// Create writes a new guest. It fails with domain.ErrConflict when a guest
// with the same id already exists on the event.
func (r *GuestRepo) Create(ctx context.Context, g *domain.Guest) error {
	item, err := attributevalue.MarshalMap(g)
	if err != nil {
		return fmt.Errorf("marshal guest: %w: %v", domain.ErrEncoding, err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(r.tableName),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#g)"),
		ExpressionAttributeNames: map[string]string{"#g": fieldGuestID},
	})
	if isConditionFailed(err) {
		return fmt.Errorf("guest %s exists: %w", g.ID, domain.ErrConflict)
	}
	return err
}

// Transition moves a guest to status `to` and applies updates, but only if
// its stored status is one of from. A guest in any other status (including
// one moved concurrently by another writer) yields domain.ErrConflict and
// no fields are written.
func (r *GuestRepo) Transition(ctx context.Context, eventID, guestID string, from []domain.GuestStatus, to domain.GuestStatus, updates map[string]interface{}) error {
	fields := make(map[string]interface{}, len(updates)+1)
	for k, v := range updates {
		fields[k] = v
	}
	fields[fieldStatus] = string(to)
	ue, err := buildUpdateExpr(fields)
	if err != nil {
		return err
	}

	cond := "attribute_exists(#cg) AND #cs IN ("
	ue.Names["#cg"] = fieldGuestID
	ue.Names["#cs"] = fieldStatus
	for i, s := range from {
		key := fmt.Sprintf(":c%d", i)
		if i > 0 {
			cond += ", "
		}
		cond += key
		ue.Values[key] = &types.AttributeValueMemberS{Value: string(s)}
	}
	cond += ")"

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       compositeKey(fieldEventID, eventID, fieldGuestID, guestID),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String(cond),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	if isConditionFailed(err) {
		return fmt.Errorf("guest %s not in %v: %w", guestID, from, domain.ErrConflict)
	}
	return err
}

// Delete hard-deletes a guest. Removing a missing guest is not an error.
func (r *GuestRepo) Delete(ctx context.Context, eventID, guestID string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key:       compositeKey(fieldEventID, eventID, fieldGuestID, guestID),
	})
	return err
}
