package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

type sqsAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSDispatcher publishes lead alerts as JSON onto a queue for CRM consumers.
type SQSDispatcher struct {
	client   sqsAPI
	queueURL string
}

// NewSQSDispatcher returns nil when the client or queue URL is missing.
func NewSQSDispatcher(client *sqs.Client, queueURL string) *SQSDispatcher {
	if client == nil || queueURL == "" {
		return nil
	}
	return &SQSDispatcher{client: client, queueURL: queueURL}
}

func (d *SQSDispatcher) Dispatch(ctx context.Context, alert LeadAlert) error {
	if d == nil || d.client == nil {
		return errors.New("notify: SQS dispatcher not configured")
	}
	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("notify: encode lead alert: %w", err)
	}
	attrs := map[string]types.MessageAttributeValue{
		"event_type": stringAttribute("lead.high_intent"),
	}
	if alert.BotID != "" {
		attrs["bot_id"] = stringAttribute(alert.BotID)
	}
	_, err = d.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:          aws.String(d.queueURL),
		MessageBody:       aws.String(string(body)),
		MessageAttributes: attrs,
	})
	if err != nil {
		return fmt.Errorf("notify: send SQS message: %w", err)
	}
	return nil
}

func stringAttribute(v string) types.MessageAttributeValue {
	return types.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(v)}
}
