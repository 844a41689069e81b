package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-auth-nosql/internal/domain"
)

// consumeRounds bounds how often ConsumeAttempt re-reads after losing a race
// with a concurrent window reset.
const consumeRounds = 3

// RateLimitRepo stores fixed-window counters keyed by "ip#operation".
type RateLimitRepo struct {
	client    API
	tableName string
}

func NewRateLimitRepo(client API, tableName string) *RateLimitRepo {
	return &RateLimitRepo{client: client, tableName: tableName}
}

// ConsumeAttempt increments the bucket only when the window is current and
// under budget, or starts a new window when the old one lapsed. Both are
// single conditional writes, so two concurrent callers can never both take
// the last slot.
func (r *RateLimitRepo) ConsumeAttempt(ctx context.Context, key string, budget domain.Budget, now time.Time) (domain.Decision, error) {
	nowMs := now.UnixMilli()
	cutoff := nowMs - budget.Window.Milliseconds()
	ttl := now.Add(budget.Window).Unix()

	for round := 0; round < consumeRounds; round++ {
		out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:                aws.String(r.tableName),
			Key:                      strKey(fieldBucketKey, key),
			UpdateExpression:         aws.String("ADD #n :one"),
			ConditionExpression:      aws.String("#w > :cutoff AND #n < :max"),
			ExpressionAttributeNames: map[string]string{"#n": fieldAttempts, "#w": fieldWindowStart},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":one":    num(1),
				":cutoff": num(cutoff),
				":max":    num(int64(budget.MaxAttempts)),
			},
			ReturnValues: types.ReturnValueAllNew,
		})
		if err == nil {
			n, err := attemptsOf(out.Attributes)
			if err != nil {
				return domain.Decision{}, err
			}
			return domain.Decision{Allowed: true, Remaining: budget.MaxAttempts - n}, nil
		}
		if !isConditionFailed(err) {
			return domain.Decision{}, fmt.Errorf("increment %s: %w", key, err)
		}

		_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:                aws.String(r.tableName),
			Key:                      strKey(fieldBucketKey, key),
			UpdateExpression:         aws.String("SET #n = :one, #w = :now, #e = :ttl"),
			ConditionExpression:      aws.String("attribute_not_exists(#k) OR #w <= :cutoff"),
			ExpressionAttributeNames: map[string]string{"#n": fieldAttempts, "#w": fieldWindowStart, "#e": fieldExpiresAt, "#k": fieldBucketKey},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":one":    num(1),
				":now":    num(nowMs),
				":ttl":    num(ttl),
				":cutoff": num(cutoff),
			},
		})
		if err == nil {
			return domain.Decision{Allowed: true, Remaining: budget.MaxAttempts - 1}, nil
		}
		if !isConditionFailed(err) {
			return domain.Decision{}, fmt.Errorf("reset window %s: %w", key, err)
		}

		c, err := r.get(ctx, key)
		if err != nil {
			return domain.Decision{}, err
		}
		if c.WindowStart > cutoff && c.Attempts >= budget.MaxAttempts {
			retryAfter := time.Duration(c.WindowStart+budget.Window.Milliseconds()-nowMs) * time.Millisecond
			if retryAfter < time.Second {
				retryAfter = time.Second
			}
			return domain.Decision{Allowed: false, RetryAfter: retryAfter}, nil
		}
		// The window changed between the two writes; try again.
	}
	return domain.Decision{Allowed: false, RetryAfter: time.Second}, nil
}

func (r *RateLimitRepo) get(ctx context.Context, key string) (*domain.RateLimitCounter, error) {
	var c domain.RateLimitCounter
	if err := getItem(ctx, r.client, r.tableName, strKey(fieldBucketKey, key), &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func attemptsOf(attrs map[string]types.AttributeValue) (int, error) {
	n, ok := attrs[fieldAttempts].(*types.AttributeValueMemberN)
	if !ok {
		return 0, errors.New("rate limit counter missing attempts")
	}
	return strconv.Atoi(n.Value)
}

// BlockRepo stores the IP block list. Expired blocks are removed by TTL.
type BlockRepo struct {
	client    API
	tableName string
}

func NewBlockRepo(client API, tableName string) *BlockRepo {
	return &BlockRepo{client: client, tableName: tableName}
}

func (r *BlockRepo) GetBlock(ctx context.Context, ip string) (*domain.IPBlock, error) {
	var b domain.IPBlock
	if err := getItem(ctx, r.client, r.tableName, strKey(fieldIP, ip), &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *BlockRepo) PutBlock(ctx context.Context, b *domain.IPBlock) error {
	item, err := attributevalue.MarshalMap(b)
	if err != nil {
		return fmt.Errorf("marshal ip block: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

func (r *BlockRepo) DeleteBlock(ctx context.Context, ip string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey(fieldIP, ip),
	})
	return err
}
