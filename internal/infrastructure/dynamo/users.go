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

// emailGuard is the user_emails item. Its primary key makes email unique and
// gives a strongly consistent lookup by email.
type emailGuard struct {
	Email  string `dynamodbav:"email"`
	UserID string `dynamodbav:"user_id"`
}

// UserRepo provides typed DynamoDB operations for the users and user_emails tables.
type UserRepo struct {
	client      API
	tableName   string
	emailsTable string
}

func NewUserRepo(client API, tableName, emailsTable string) *UserRepo {
	return &UserRepo{client: client, tableName: tableName, emailsTable: emailsTable}
}

func (r *UserRepo) Get(ctx context.Context, userID string) (*domain.User, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey(fieldUserID, userID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	var u domain.User
	if err := attributevalue.UnmarshalMap(out.Item, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.emailsTable),
		Key:            strKey(fieldEmail, email),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	var g emailGuard
	if err := attributevalue.UnmarshalMap(out.Item, &g); err != nil {
		return nil, err
	}
	return r.Get(ctx, g.UserID)
}

// Patch applies p outside a transaction. A missing user yields ErrNotFound;
// a failed RequireNoPassword condition yields ErrConflict.
func (r *UserRepo) Patch(ctx context.Context, userID string, p domain.UserPatch) error {
	upd, err := r.patchUpdate(userID, p, time.Now().UTC())
	if err != nil {
		return err
	}
	upd.ReturnValuesOnConditionCheckFailure = types.ReturnValuesOnConditionCheckFailureAllOld
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                           upd.TableName,
		Key:                                 upd.Key,
		UpdateExpression:                    upd.UpdateExpression,
		ConditionExpression:                 upd.ConditionExpression,
		ExpressionAttributeNames:            upd.ExpressionAttributeNames,
		ExpressionAttributeValues:           upd.ExpressionAttributeValues,
		ReturnValuesOnConditionCheckFailure: upd.ReturnValuesOnConditionCheckFailure,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			if len(ccf.Item) == 0 {
				return fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
			}
			return fmt.Errorf("user %s already has a password: %w", userID, domain.ErrConflict)
		}
		return err
	}
	return nil
}

// patchUpdate renders p as a conditional update usable both standalone and
// inside TransactWriteItems.
func (r *UserRepo) patchUpdate(userID string, p domain.UserPatch, now time.Time) (*types.Update, error) {
	set := map[string]interface{}{fieldUpdatedAt: now}
	add := map[string]int{}
	if p.PasswordHash != nil {
		set[fieldPasswordHash] = *p.PasswordHash
	}
	if p.EmailVerified != nil {
		set[fieldEmailVerified] = *p.EmailVerified
	}
	if p.SignupMethod != nil {
		set[fieldSignupMethod] = *p.SignupMethod
	}
	if p.LastLoginAt != nil {
		set[fieldLastLoginAt] = *p.LastLoginAt
	}
	if p.BillingCustomerID != nil {
		set[fieldBillingCustomerID] = *p.BillingCustomerID
	}
	if p.ResetFailedLoginAttempts {
		set[fieldFailedLoginAttempts] = 0
	}
	if p.IncrementFailedAttempts && !p.ResetFailedLoginAttempts {
		add[fieldFailedLoginAttempts] = 1
	}
	if p.IncrementLoginCount {
		add[fieldLoginCount] = 1
	}
	ue, err := buildUpdate(set, add)
	if err != nil {
		return nil, err
	}
	cond := "attribute_exists(#pk)"
	names := map[string]string{"#pk": fieldUserID}
	if p.RequireNoPassword {
		cond += " AND attribute_not_exists(#pw)"
		names["#pw"] = fieldPasswordHash
	}
	ue.with(names, nil)
	return &types.Update{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey(fieldUserID, userID),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String(cond),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	}, nil
}
