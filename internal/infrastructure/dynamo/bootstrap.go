package dynamo

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-auth-nosql/internal/config"
)

// Bootstrap creates all DynamoDB tables and GSIs if they don't already exist.
// Safe to call on every startup; existing tables are skipped.
func Bootstrap(ctx context.Context, client *dynamodb.Client, tables config.DynamoTables) {
	createTable(ctx, client, &dynamodb.CreateTableInput{
		TableName:   aws.String(tables.Users),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			attr(fieldUserID, types.ScalarAttributeTypeS),
		},
		KeySchema: keys(fieldUserID, ""),
	})

	createTable(ctx, client, &dynamodb.CreateTableInput{
		TableName:   aws.String(tables.UserEmails),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			attr(fieldEmail, types.ScalarAttributeTypeS),
		},
		KeySchema: keys(fieldEmail, ""),
	})

	createTable(ctx, client, &dynamodb.CreateTableInput{
		TableName:   aws.String(tables.Sessions),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			attr(fieldSessionID, types.ScalarAttributeTypeS),
		},
		KeySchema: keys(fieldSessionID, ""),
	})
	enableTTL(ctx, client, tables.Sessions, fieldExpiresAt)

	createTable(ctx, client, &dynamodb.CreateTableInput{
		TableName:   aws.String(tables.VerificationTokens),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			attr(fieldIdentifier, types.ScalarAttributeTypeS),
			attr(fieldToken, types.ScalarAttributeTypeS),
		},
		KeySchema: keys(fieldIdentifier, fieldToken),
	})
	enableTTL(ctx, client, tables.VerificationTokens, fieldExpiresAt)

	createTable(ctx, client, &dynamodb.CreateTableInput{
		TableName:   aws.String(tables.ResetTokens),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			attr(fieldEmail, types.ScalarAttributeTypeS),
			attr(fieldToken, types.ScalarAttributeTypeS),
		},
		KeySchema: keys(fieldEmail, fieldToken),
	})
	enableTTL(ctx, client, tables.ResetTokens, fieldExpiresAt)

	createTable(ctx, client, &dynamodb.CreateTableInput{
		TableName:   aws.String(tables.AuditLogs),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			attr(fieldLogID, types.ScalarAttributeTypeS),
			attr(fieldUserID, types.ScalarAttributeTypeS),
			attr("created_at", types.ScalarAttributeTypeS),
		},
		KeySchema: keys(fieldLogID, ""),
		GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
			gsi(indexAuditByUser, fieldUserID, "created_at"),
		},
	})

	createTable(ctx, client, &dynamodb.CreateTableInput{
		TableName:   aws.String(tables.RateLimits),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			attr(fieldBucketKey, types.ScalarAttributeTypeS),
		},
		KeySchema: keys(fieldBucketKey, ""),
	})
	enableTTL(ctx, client, tables.RateLimits, fieldExpiresAt)

	createTable(ctx, client, &dynamodb.CreateTableInput{
		TableName:   aws.String(tables.IPBlocks),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			attr(fieldIP, types.ScalarAttributeTypeS),
		},
		KeySchema: keys(fieldIP, ""),
	})
	enableTTL(ctx, client, tables.IPBlocks, fieldExpiresAt)

	createTable(ctx, client, &dynamodb.CreateTableInput{
		TableName:   aws.String(tables.Resources),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			attr(fieldResourceID, types.ScalarAttributeTypeS),
			attr(fieldAnonID, types.ScalarAttributeTypeS),
		},
		KeySchema: keys(fieldResourceID, ""),
		GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
			gsi(indexResourceAnon, fieldAnonID, ""),
		},
	})

	createTable(ctx, client, &dynamodb.CreateTableInput{
		TableName:   aws.String(tables.Outbox),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			attr(fieldMessageID, types.ScalarAttributeTypeS),
			attr(fieldStatus, types.ScalarAttributeTypeS),
			attr(fieldNextAttemptAt, types.ScalarAttributeTypeN),
		},
		KeySchema: keys(fieldMessageID, ""),
		GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
			gsi(indexOutboxDue, fieldStatus, fieldNextAttemptAt),
		},
	})
}

func attr(name string, t types.ScalarAttributeType) types.AttributeDefinition {
	return types.AttributeDefinition{AttributeName: aws.String(name), AttributeType: t}
}

// keys builds a key schema. If sortKey is empty, only a hash key is added.
func keys(hashKey, sortKey string) []types.KeySchemaElement {
	ks := []types.KeySchemaElement{
		{AttributeName: aws.String(hashKey), KeyType: types.KeyTypeHash},
	}
	if sortKey != "" {
		ks = append(ks, types.KeySchemaElement{
			AttributeName: aws.String(sortKey), KeyType: types.KeyTypeRange,
		})
	}
	return ks
}

func gsi(indexName, hashKey, sortKey string) types.GlobalSecondaryIndex {
	return types.GlobalSecondaryIndex{
		IndexName:  aws.String(indexName),
		KeySchema:  keys(hashKey, sortKey),
		Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
	}
}

func createTable(ctx context.Context, client *dynamodb.Client, input *dynamodb.CreateTableInput) {
	_, err := client.CreateTable(ctx, input)
	if err != nil {
		// ResourceInUseException means the table already exists.
		var riue *types.ResourceInUseException
		if !errors.As(err, &riue) {
			slog.Warn("could not create table", "table", *input.TableName, "err", err)
		}
	} else {
		slog.Info("created table", "table", *input.TableName)
	}
}

func enableTTL(ctx context.Context, client *dynamodb.Client, tableName, ttlAttr string) {
	_, err := client.UpdateTimeToLive(ctx, &dynamodb.UpdateTimeToLiveInput{
		TableName: aws.String(tableName),
		TimeToLiveSpecification: &types.TimeToLiveSpecification{
			Enabled:       aws.Bool(true),
			AttributeName: aws.String(ttlAttr),
		},
	})
	if err != nil {
		slog.Warn("could not enable TTL", "table", tableName, "err", err)
	}
}
