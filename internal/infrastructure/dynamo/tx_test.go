package dynamo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-auth-nosql/internal/config"
	"github.com/go-auth-nosql/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTables() config.DynamoTables {
	return config.DynamoTables{
		Users:              "users",
		UserEmails:         "user_emails",
		VerificationTokens: "verification_tokens",
		ResetTokens:        "password_reset_tokens",
		Resources:          "anonymous_resources",
		Outbox:             "outbox",
		RateLimits:         "rate_limits",
	}
}

func TestWithTx_SignupWritesCommitTogether(t *testing.T) {
	var got *dynamodb.TransactWriteItemsInput
	api := &fakeAPI{transact: func(in *dynamodb.TransactWriteItemsInput) (*dynamodb.TransactWriteItemsOutput, error) {
		got = in
		return &dynamodb.TransactWriteItemsOutput{}, nil
	}}
	tr := NewTransactor(api, testTables())
	now := time.Now()

	err := tr.WithTx(context.Background(), func(tx domain.Tx) error {
		tx.CreateUser(&domain.User{UserID: "u1", Email: "a@x.com", CreatedAt: now, UpdatedAt: now})
		tx.PutVerificationToken(&domain.VerificationToken{Identifier: "a@x.com", Token: "t", ExpiresAt: now.Add(time.Hour).Unix()})
		tx.ClaimResource("r1", "u1", now)
		tx.Enqueue(&domain.OutboxMessage{MessageID: "m1", Kind: domain.OutboxVerificationEmail, Status: domain.OutboxPending})
		return nil
	})
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Len(t, got.TransactItems, 5)

	users := got.TransactItems[0].Put
	require.NotNil(t, users)
	assert.Equal(t, "users", aws.ToString(users.TableName))
	assert.Equal(t, "attribute_not_exists(#pk)", aws.ToString(users.ConditionExpression))

	guard := got.TransactItems[1].Put
	require.NotNil(t, guard)
	assert.Equal(t, "user_emails", aws.ToString(guard.TableName))
	assert.Equal(t, &types.AttributeValueMemberS{Value: "a@x.com"}, guard.Item[fieldEmail])

	claim := got.TransactItems[3].Update
	require.NotNil(t, claim)
	assert.Contains(t, aws.ToString(claim.ConditionExpression), "attribute_not_exists(#o)")
}

func TestWithTx_ReserveIssueIsConditionalOnGap(t *testing.T) {
	var got *dynamodb.TransactWriteItemsInput
	api := &fakeAPI{transact: func(in *dynamodb.TransactWriteItemsInput) (*dynamodb.TransactWriteItemsOutput, error) {
		got = in
		return &dynamodb.TransactWriteItemsOutput{}, nil
	}}
	now := time.Unix(1_700_000_000, 0)

	err := NewTransactor(api, testTables()).WithTx(context.Background(), func(tx domain.Tx) error {
		tx.ReserveIssue(domain.TokenPasswordReset, "a@x.com", now, 5*time.Minute)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got.TransactItems, 1)

	put := got.TransactItems[0].Put
	require.NotNil(t, put)
	assert.Equal(t, "rate_limits", aws.ToString(put.TableName))
	assert.Equal(t, &types.AttributeValueMemberS{Value: "issue#password_reset#a@x.com"}, put.Item[fieldBucketKey])
	assert.Equal(t, &types.AttributeValueMemberN{Value: "1700000000"}, put.Item[fieldIssuedAt])
	assert.Equal(t, &types.AttributeValueMemberN{Value: "1700000300"}, put.Item[fieldExpiresAt])
	assert.Equal(t, "attribute_not_exists(#k) OR #i <= :cutoff", aws.ToString(put.ConditionExpression))
	assert.Equal(t, &types.AttributeValueMemberN{Value: "1699999700"}, put.ExpressionAttributeValues[":cutoff"])
}

func TestWithTx_NoWritesSkipsCall(t *testing.T) {
	api := &fakeAPI{transact: func(*dynamodb.TransactWriteItemsInput) (*dynamodb.TransactWriteItemsOutput, error) {
		t.Fatal("unexpected TransactWriteItems")
		return nil, nil
	}}
	err := NewTransactor(api, testTables()).WithTx(context.Background(), func(domain.Tx) error { return nil })
	assert.NoError(t, err)
}

func TestWithTx_FnErrorCommitsNothing(t *testing.T) {
	api := &fakeAPI{transact: func(*dynamodb.TransactWriteItemsInput) (*dynamodb.TransactWriteItemsOutput, error) {
		t.Fatal("unexpected TransactWriteItems")
		return nil, nil
	}}
	boom := errors.New("boom")
	err := NewTransactor(api, testTables()).WithTx(context.Background(), func(tx domain.Tx) error {
		tx.DeleteResetToken("a@x.com", "t")
		return boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestWithTx_CancelledIsConflict(t *testing.T) {
	api := &fakeAPI{transact: func(*dynamodb.TransactWriteItemsInput) (*dynamodb.TransactWriteItemsOutput, error) {
		return nil, &types.TransactionCanceledException{
			Message: aws.String("cancelled"),
			CancellationReasons: []types.CancellationReason{
				{Code: aws.String("None")},
				{Code: aws.String("ConditionalCheckFailed")},
			},
		}
	}}
	err := NewTransactor(api, testTables()).WithTx(context.Background(), func(tx domain.Tx) error {
		tx.DeleteVerificationToken("a@x.com", "old")
		tx.ConsumeVerificationToken("a@x.com", "t", time.Now())
		return nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Contains(t, err.Error(), "item 1: ConditionalCheckFailed")
}

func TestWithTx_TooManyItems(t *testing.T) {
	api := &fakeAPI{transact: func(*dynamodb.TransactWriteItemsInput) (*dynamodb.TransactWriteItemsOutput, error) {
		t.Fatal("unexpected TransactWriteItems")
		return nil, nil
	}}
	err := NewTransactor(api, testTables()).WithTx(context.Background(), func(tx domain.Tx) error {
		for i := 0; i <= maxTransactItems; i++ {
			tx.DeleteResetToken("a@x.com", "t")
		}
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "limit is 100")
}

func TestWithTx_ConsumeResetTokenRequiresUnused(t *testing.T) {
	var got *dynamodb.TransactWriteItemsInput
	api := &fakeAPI{transact: func(in *dynamodb.TransactWriteItemsInput) (*dynamodb.TransactWriteItemsOutput, error) {
		got = in
		return &dynamodb.TransactWriteItemsOutput{}, nil
	}}
	err := NewTransactor(api, testTables()).WithTx(context.Background(), func(tx domain.Tx) error {
		tx.ConsumeResetToken("a@x.com", "t", time.Unix(1000, 0))
		return nil
	})
	require.NoError(t, err)
	upd := got.TransactItems[0].Update
	require.NotNil(t, upd)
	assert.Equal(t, "attribute_exists(#t) AND #u = :false AND #e > :now", aws.ToString(upd.ConditionExpression))
	assert.Equal(t, &types.AttributeValueMemberN{Value: "1000"}, upd.ExpressionAttributeValues[":now"])
}
