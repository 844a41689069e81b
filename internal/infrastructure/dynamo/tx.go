package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-auth-nosql/internal/config"
	"github.com/go-auth-nosql/internal/domain"
)

// maxTransactItems is the TransactWriteItems limit.
const maxTransactItems = 100

// Transactor commits domain.Tx writes with one TransactWriteItems call.
type Transactor struct {
	client API
	tables config.DynamoTables
	users  *UserRepo
}

func NewTransactor(client API, tables config.DynamoTables) *Transactor {
	return &Transactor{
		client: client,
		tables: tables,
		users:  NewUserRepo(client, tables.Users, tables.UserEmails),
	}
}

type tx struct {
	t     *Transactor
	now   time.Time
	items []types.TransactWriteItem
	err   error
}

// WithTx runs fn and commits the buffered writes atomically. A cancelled
// transaction (any condition failed) is reported as domain.ErrConflict.
func (t *Transactor) WithTx(ctx context.Context, fn func(domain.Tx) error) error {
	w := &tx{t: t, now: time.Now().UTC()}
	if err := fn(w); err != nil {
		return err
	}
	if w.err != nil {
		return w.err
	}
	if len(w.items) == 0 {
		return nil
	}
	if len(w.items) > maxTransactItems {
		return fmt.Errorf("transaction has %d items, limit is %d", len(w.items), maxTransactItems)
	}
	_, err := t.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: w.items})
	if err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) {
			return fmt.Errorf("transaction cancelled (%s): %w", cancellationReasons(tce), domain.ErrConflict)
		}
		return fmt.Errorf("transact write: %w", err)
	}
	return nil
}

func cancellationReasons(tce *types.TransactionCanceledException) string {
	var reasons []string
	for i, r := range tce.CancellationReasons {
		code := aws.ToString(r.Code)
		if code == "" || code == "None" {
			continue
		}
		reasons = append(reasons, fmt.Sprintf("item %d: %s", i, code))
	}
	return strings.Join(reasons, ", ")
}

func (w *tx) fail(err error) {
	if w.err == nil {
		w.err = err
	}
}

func (w *tx) put(table string, v interface{}, cond string, names map[string]string) {
	item, err := attributevalue.MarshalMap(v)
	if err != nil {
		w.fail(fmt.Errorf("marshal %s item: %w", table, err))
		return
	}
	p := &types.Put{TableName: aws.String(table), Item: item}
	if cond != "" {
		p.ConditionExpression = aws.String(cond)
		p.ExpressionAttributeNames = names
	}
	w.items = append(w.items, types.TransactWriteItem{Put: p})
}

func (w *tx) CreateUser(u *domain.User) {
	w.put(w.t.tables.Users, u, "attribute_not_exists(#pk)", map[string]string{"#pk": fieldUserID})
	w.put(w.t.tables.UserEmails, emailGuard{Email: u.Email, UserID: u.UserID},
		"attribute_not_exists(#pk)", map[string]string{"#pk": fieldEmail})
}

func (w *tx) PatchUser(userID string, p domain.UserPatch) {
	upd, err := w.t.users.patchUpdate(userID, p, w.now)
	if err != nil {
		w.fail(err)
		return
	}
	w.items = append(w.items, types.TransactWriteItem{Update: upd})
}

func (w *tx) PutVerificationToken(v *domain.VerificationToken) {
	w.put(w.t.tables.VerificationTokens, v, "", nil)
}

func (w *tx) ConsumeVerificationToken(identifier, token string, now time.Time) {
	w.items = append(w.items, types.TransactWriteItem{Delete: &types.Delete{
		TableName:                 aws.String(w.t.tables.VerificationTokens),
		Key:                       compositeKey(fieldIdentifier, identifier, fieldToken, token),
		ConditionExpression:       aws.String("attribute_exists(#t) AND #e > :now"),
		ExpressionAttributeNames:  map[string]string{"#t": fieldToken, "#e": fieldExpiresAt},
		ExpressionAttributeValues: map[string]types.AttributeValue{":now": num(now.Unix())},
	}})
}

func (w *tx) DeleteVerificationToken(identifier, token string) {
	w.items = append(w.items, types.TransactWriteItem{Delete: &types.Delete{
		TableName: aws.String(w.t.tables.VerificationTokens),
		Key:       compositeKey(fieldIdentifier, identifier, fieldToken, token),
	}})
}

func (w *tx) PutResetToken(r *domain.PasswordResetToken) {
	w.put(w.t.tables.ResetTokens, r, "", nil)
}

func (w *tx) ConsumeResetToken(email, token string, now time.Time) {
	w.items = append(w.items, types.TransactWriteItem{Update: &types.Update{
		TableName:                aws.String(w.t.tables.ResetTokens),
		Key:                      compositeKey(fieldEmail, email, fieldToken, token),
		UpdateExpression:         aws.String("SET #u = :true, #ua = :now"),
		ConditionExpression:      aws.String("attribute_exists(#t) AND #u = :false AND #e > :now"),
		ExpressionAttributeNames: map[string]string{"#t": fieldToken, "#u": fieldUsed, "#ua": fieldUsedAt, "#e": fieldExpiresAt},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":true":  &types.AttributeValueMemberBOOL{Value: true},
			":false": &types.AttributeValueMemberBOOL{Value: false},
			":now":   num(now.Unix()),
		},
	}})
}

func (w *tx) DeleteResetToken(email, token string) {
	w.items = append(w.items, types.TransactWriteItem{Delete: &types.Delete{
		TableName: aws.String(w.t.tables.ResetTokens),
		Key:       compositeKey(fieldEmail, email, fieldToken, token),
	}})
}

// issueGuard lives in the rate limit table next to the request counters and
// expires with the throttle gap.
type issueGuard struct {
	Key       string `dynamodbav:"key"`
	IssuedAt  int64  `dynamodbav:"issued_at"`
	ExpiresAt int64  `dynamodbav:"expires_at"`
}

func issueGuardKey(kind domain.TokenKind, email string) string {
	return "issue#" + string(kind) + "#" + email
}

func (w *tx) ReserveIssue(kind domain.TokenKind, email string, now time.Time, gap time.Duration) {
	item, err := attributevalue.MarshalMap(issueGuard{
		Key:       issueGuardKey(kind, email),
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(gap).Unix(),
	})
	if err != nil {
		w.fail(fmt.Errorf("marshal issue guard: %w", err))
		return
	}
	w.items = append(w.items, types.TransactWriteItem{Put: &types.Put{
		TableName:                 aws.String(w.t.tables.RateLimits),
		Item:                      item,
		ConditionExpression:       aws.String("attribute_not_exists(#k) OR #i <= :cutoff"),
		ExpressionAttributeNames:  map[string]string{"#k": fieldBucketKey, "#i": fieldIssuedAt},
		ExpressionAttributeValues: map[string]types.AttributeValue{":cutoff": num(now.Add(-gap).Unix())},
	}})
}

func (w *tx) ClaimResource(resourceID, userID string, now time.Time) {
	claimedAt, err := attributevalue.Marshal(now.UTC())
	if err != nil {
		w.fail(err)
		return
	}
	w.items = append(w.items, types.TransactWriteItem{Update: &types.Update{
		TableName:                aws.String(w.t.tables.Resources),
		Key:                      strKey(fieldResourceID, resourceID),
		UpdateExpression:         aws.String("SET #o = :o, #c = :c"),
		ConditionExpression:      aws.String("attribute_exists(#pk) AND attribute_not_exists(#o)"),
		ExpressionAttributeNames: map[string]string{"#pk": fieldResourceID, "#o": fieldOwnerID, "#c": fieldClaimedAt},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":o": str(userID),
			":c": claimedAt,
		},
	}})
}

func (w *tx) Enqueue(m *domain.OutboxMessage) {
	w.put(w.t.tables.Outbox, m, "", nil)
}
