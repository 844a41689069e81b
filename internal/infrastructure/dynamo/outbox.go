package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-auth-nosql/internal/domain"
)

// OutboxRepo leases and settles outbox messages. Messages are written by the
// transactor.
type OutboxRepo struct {
	client    API
	tableName string
}

func NewOutboxRepo(client API, tableName string) *OutboxRepo {
	return &OutboxRepo{client: client, tableName: tableName}
}

// ClaimDue leases up to limit due messages until now+lease. Pending messages
// are taken first, then processing messages whose lease lapsed. Each lease is
// a conditional write so concurrent workers never claim the same message.
func (r *OutboxRepo) ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]domain.OutboxMessage, error) {
	var claimed []domain.OutboxMessage
	for _, status := range []domain.OutboxStatus{domain.OutboxPending, domain.OutboxProcessing} {
		if len(claimed) >= limit {
			break
		}
		due, err := r.queryDue(ctx, status, now, limit-len(claimed))
		if err != nil {
			return claimed, err
		}
		for _, m := range due {
			got, err := r.lease(ctx, m, now, lease)
			if err != nil {
				if isConditionFailed(err) {
					continue
				}
				return claimed, err
			}
			claimed = append(claimed, *got)
		}
	}
	return claimed, nil
}

func (r *OutboxRepo) queryDue(ctx context.Context, status domain.OutboxStatus, now time.Time, limit int) ([]domain.OutboxMessage, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                aws.String(r.tableName),
		IndexName:                aws.String(indexOutboxDue),
		KeyConditionExpression:   aws.String("#s = :s AND #n <= :now"),
		ExpressionAttributeNames: map[string]string{"#s": fieldStatus, "#n": fieldNextAttemptAt},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":s":   str(string(status)),
			":now": num(now.Unix()),
		},
		Limit: aws.Int32(int32(limit)),
	})
	if err != nil {
		return nil, err
	}
	var msgs []domain.OutboxMessage
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (r *OutboxRepo) lease(ctx context.Context, m domain.OutboxMessage, now time.Time, lease time.Duration) (*domain.OutboxMessage, error) {
	ue, err := buildUpdateExpr(map[string]interface{}{
		fieldStatus:        domain.OutboxProcessing,
		fieldNextAttemptAt: now.Add(lease).Unix(),
		fieldUpdatedAt:     now.UTC(),
	})
	if err != nil {
		return nil, err
	}
	ue.with(map[string]string{"#cs": fieldStatus, "#cn": fieldNextAttemptAt}, map[string]types.AttributeValue{
		":cs": str(string(m.Status)),
		":cn": num(now.Unix()),
	})
	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey(fieldMessageID, m.MessageID),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String("#cs = :cs AND #cn <= :cn"),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		return nil, err
	}
	var got domain.OutboxMessage
	if err := attributevalue.UnmarshalMap(out.Attributes, &got); err != nil {
		return nil, err
	}
	return &got, nil
}

func (r *OutboxRepo) MarkSent(ctx context.Context, messageID string, now time.Time) error {
	return r.update(ctx, messageID, map[string]interface{}{
		fieldStatus:    domain.OutboxSent,
		fieldUpdatedAt: now.UTC(),
	})
}

func (r *OutboxRepo) Reschedule(ctx context.Context, messageID string, attempts int, next time.Time, lastErr string) error {
	return r.update(ctx, messageID, map[string]interface{}{
		fieldStatus:        domain.OutboxPending,
		fieldAttempts:      attempts,
		fieldNextAttemptAt: next.Unix(),
		fieldLastError:     lastErr,
		fieldUpdatedAt:     time.Now().UTC(),
	})
}

func (r *OutboxRepo) MarkFailed(ctx context.Context, messageID string, attempts int, lastErr string) error {
	return r.update(ctx, messageID, map[string]interface{}{
		fieldStatus:    domain.OutboxFailed,
		fieldAttempts:  attempts,
		fieldLastError: lastErr,
		fieldUpdatedAt: time.Now().UTC(),
	})
}

func (r *OutboxRepo) update(ctx context.Context, messageID string, set map[string]interface{}) error {
	ue, err := buildUpdateExpr(set)
	if err != nil {
		return err
	}
	ue.with(map[string]string{"#pk": fieldMessageID}, nil)
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey(fieldMessageID, messageID),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String("attribute_exists(#pk)"),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return fmt.Errorf("outbox message not found: %w", domain.ErrNotFound)
	}
	return err
}
