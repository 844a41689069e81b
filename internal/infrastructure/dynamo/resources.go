package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-auth-nosql/internal/domain"
)

// ResourceRepo reads anonymous_resources. Ownership changes go through the
// transactor.
type ResourceRepo struct {
	client    API
	tableName string
}

func NewResourceRepo(client API, tableName string) *ResourceRepo {
	return &ResourceRepo{client: client, tableName: tableName}
}

func (r *ResourceRepo) Put(ctx context.Context, res *domain.AnonymousResource) error {
	item, err := attributevalue.MarshalMap(res)
	if err != nil {
		return fmt.Errorf("marshal resource: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

func (r *ResourceRepo) Get(ctx context.Context, resourceID string) (*domain.AnonymousResource, error) {
	var res domain.AnonymousResource
	if err := getItem(ctx, r.client, r.tableName, strKey(fieldResourceID, resourceID), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ListUnclaimed returns up to limit resources tagged anonID that have no
// owner. The index is eventually consistent; the claim itself is conditional.
func (r *ResourceRepo) ListUnclaimed(ctx context.Context, anonID string, limit int) ([]domain.AnonymousResource, error) {
	input := &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String(indexResourceAnon),
		KeyConditionExpression:    aws.String("#a = :a"),
		FilterExpression:          aws.String("attribute_not_exists(#o)"),
		ExpressionAttributeNames:  map[string]string{"#a": fieldAnonID, "#o": fieldOwnerID},
		ExpressionAttributeValues: map[string]types.AttributeValue{":a": str(anonID)},
	}
	var out []domain.AnonymousResource
	for {
		res, err := r.client.Query(ctx, input)
		if err != nil {
			return nil, err
		}
		var page []domain.AnonymousResource
		if err := attributevalue.UnmarshalListOfMaps(res.Items, &page); err != nil {
			return nil, err
		}
		out = append(out, page...)
		if (limit > 0 && len(out) >= limit) || len(res.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = res.LastEvaluatedKey
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
