package sns

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/go-auth-nosql/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockPublishAPI struct{ mock.Mock }

func (m *mockPublishAPI) Publish(ctx context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*sns.PublishOutput)
	return out, args.Error(1)
}

func TestCreateCustomer_PublishesEvent(t *testing.T) {
	api := &mockPublishAPI{}
	api.On("Publish", mock.Anything, mock.MatchedBy(func(in *sns.PublishInput) bool {
		var ev customerEvent
		if err := json.Unmarshal([]byte(*in.Message), &ev); err != nil {
			return false
		}
		return *in.TopicArn == "arn:aws:sns:us-east-1:1:billing" &&
			ev.Type == EventCustomerCreate && ev.UserID == "u1" && ev.Email == "a@x.com" &&
			*in.MessageAttributes["event"].StringValue == EventCustomerCreate
	})).Return(&sns.PublishOutput{}, nil)

	id, err := newBillingPublisher(api, "arn:aws:sns:us-east-1:1:billing").CreateCustomer(context.Background(), "u1", "a@x.com", "Ada")

	require.NoError(t, err)
	assert.Empty(t, id)
	api.AssertExpectations(t)
}

func TestCreateCustomer_PublishError(t *testing.T) {
	api := &mockPublishAPI{}
	api.On("Publish", mock.Anything, mock.Anything).Return(nil, errors.New("throttled"))

	_, err := newBillingPublisher(api, "arn").CreateCustomer(context.Background(), "u1", "a@x.com", "")

	assert.Error(t, err)
}

func TestNewBillingPublisher_NoTopicIsNoop(t *testing.T) {
	p, err := NewBillingPublisher(context.Background(), &config.Config{})
	require.NoError(t, err)

	id, err := p.CreateCustomer(context.Background(), "u1", "a@x.com", "")
	assert.NoError(t, err)
	assert.Empty(t, id)
}
