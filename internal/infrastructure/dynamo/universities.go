package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-guestlist/internal/domain"
)

// batchGetLimit is DynamoDB's per-request key cap for BatchGetItem.
const batchGetLimit = 100

// UniversityRepo reads the university reference table.
type UniversityRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewUniversityRepo(client *dynamodb.Client, tableName string) *UniversityRepo {
	return &UniversityRepo{client: client, tableName: tableName}
}

// BatchGet fetches the universities for ids. Unknown ids are simply absent
// from the result.
func (r *UniversityRepo) BatchGet(ctx context.Context, ids []string) ([]domain.University, error) {
	var out []domain.University
	for _, part := range chunk(ids, batchGetLimit) {
		keys := make([]map[string]types.AttributeValue, 0, len(part))
		for _, id := range part {
			keys = append(keys, strKey(fieldUniversityID, id))
		}
		request := map[string]types.KeysAndAttributes{r.tableName: {Keys: keys}}
		for len(request) > 0 {
			resp, err := r.client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{RequestItems: request})
			if err != nil {
				return nil, err
			}
			var page []domain.University
			if err := attributevalue.UnmarshalListOfMaps(resp.Responses[r.tableName], &page); err != nil {
				return nil, fmt.Errorf("unmarshal universities: %w", err)
			}
			out = append(out, page...)
			request = resp.UnprocessedKeys
		}
	}
	return out, nil
}
