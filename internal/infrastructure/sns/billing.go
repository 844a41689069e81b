package sns

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/go-auth-nosql/internal/config"
)

// EventCustomerCreate is the event type the billing service subscribes to.
const EventCustomerCreate = "customer.create"

// BillingPublisher asks the billing provider to create a customer for a new
// account. The provider creates it asynchronously, so no customer id is
// known at publish time and the returned id is empty.
type BillingPublisher interface {
	CreateCustomer(ctx context.Context, userID, email, name string) (string, error)
}

type publishAPI interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type customerEvent struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name,omitempty"`
}

type billingPublisher struct {
	client   publishAPI
	topicARN string
}

// NewBillingPublisher returns a publisher for cfg.BillingTopicARN. With no
// topic configured it returns a publisher that only logs.
func NewBillingPublisher(ctx context.Context, cfg *config.Config) (BillingPublisher, error) {
	if cfg.BillingTopicARN == "" {
		return noopPublisher{}, nil
	}
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.AWSRegion),
	}
	if cfg.AWSAccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	var clientOpts []func(*sns.Options)
	if cfg.AWSEndpointURL != "" {
		clientOpts = append(clientOpts, func(o *sns.Options) {
			o.BaseEndpoint = aws.String(cfg.AWSEndpointURL)
		})
	}
	return newBillingPublisher(sns.NewFromConfig(awsCfg, clientOpts...), cfg.BillingTopicARN), nil
}

func newBillingPublisher(client publishAPI, topicARN string) *billingPublisher {
	return &billingPublisher{client: client, topicARN: topicARN}
}

func (p *billingPublisher) CreateCustomer(ctx context.Context, userID, email, name string) (string, error) {
	body, err := json.Marshal(customerEvent{Type: EventCustomerCreate, UserID: userID, Email: email, Name: name})
	if err != nil {
		return "", err
	}
	_, err = p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event": {DataType: aws.String("String"), StringValue: aws.String(EventCustomerCreate)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("publish %s for %s: %w", EventCustomerCreate, userID, err)
	}
	return "", nil
}

type noopPublisher struct{}

func (noopPublisher) CreateCustomer(_ context.Context, userID, _, _ string) (string, error) {
	slog.Info("billing disabled, skipping customer creation", "user_id", userID)
	return "", nil
}
