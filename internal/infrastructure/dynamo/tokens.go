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

// VerificationRepo reads the verification_tokens table (PK identifier, SK token).
// Writes go through the transactor.
type VerificationRepo struct {
	client    API
	tableName string
}

func NewVerificationRepo(client API, tableName string) *VerificationRepo {
	return &VerificationRepo{client: client, tableName: tableName}
}

func (r *VerificationRepo) Get(ctx context.Context, identifier, token string) (*domain.VerificationToken, error) {
	var v domain.VerificationToken
	if err := getItem(ctx, r.client, r.tableName, compositeKey(fieldIdentifier, identifier, fieldToken, token), &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *VerificationRepo) ListByIdentifier(ctx context.Context, identifier string) ([]domain.VerificationToken, error) {
	var out []domain.VerificationToken
	if err := queryPartition(ctx, r.client, r.tableName, fieldIdentifier, identifier, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ResetRepo reads the password_reset_tokens table (PK email, SK token).
type ResetRepo struct {
	client    API
	tableName string
}

func NewResetRepo(client API, tableName string) *ResetRepo {
	return &ResetRepo{client: client, tableName: tableName}
}

func (r *ResetRepo) Get(ctx context.Context, email, token string) (*domain.PasswordResetToken, error) {
	var t domain.PasswordResetToken
	if err := getItem(ctx, r.client, r.tableName, compositeKey(fieldEmail, email, fieldToken, token), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *ResetRepo) ListByEmail(ctx context.Context, email string) ([]domain.PasswordResetToken, error) {
	var out []domain.PasswordResetToken
	if err := queryPartition(ctx, r.client, r.tableName, fieldEmail, email, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// getItem reads one item with a consistent read into out.
func getItem(ctx context.Context, client API, table string, key map[string]types.AttributeValue, out interface{}) error {
	res, err := client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(table),
		Key:            key,
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return err
	}
	if res.Item == nil {
		return fmt.Errorf("%s item not found: %w", table, domain.ErrNotFound)
	}
	return attributevalue.UnmarshalMap(res.Item, out)
}

// queryPartition reads every item under one partition key, following pages.
func queryPartition(ctx context.Context, client API, table, pkName, pkValue string, out interface{}) error {
	var items []map[string]types.AttributeValue
	input := &dynamodb.QueryInput{
		TableName:                 aws.String(table),
		KeyConditionExpression:    aws.String("#pk = :pk"),
		ExpressionAttributeNames:  map[string]string{"#pk": pkName},
		ExpressionAttributeValues: map[string]types.AttributeValue{":pk": str(pkValue)},
		ConsistentRead:            aws.Bool(true),
	}
	for {
		res, err := client.Query(ctx, input)
		if err != nil {
			return err
		}
		items = append(items, res.Items...)
		if len(res.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = res.LastEvaluatedKey
	}
	return attributevalue.UnmarshalListOfMaps(items, out)
}
