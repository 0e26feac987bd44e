package audit

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Publisher delivers a single audit event
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// SQSClient is the subset of the AWS SQS API used for publishing
type SQSClient interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

type SQSPublisher struct {
	client   SQSClient
	queueURL string
}

func NewSQSPublisher(client SQSClient, queueURL string) *SQSPublisher {
	return &SQSPublisher{client: client, queueURL: queueURL}
}

func (p *SQSPublisher) Publish(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "failed to marshal audit event")
	}
	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return errors.Wrapf(err, "failed to send %s to audit queue", event.EventName)
	}
	return nil
}

// LogPublisher writes events to the application log, for environments
// without an audit queue.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, event Event) error {
	log.Info().
		Str("event_name", event.EventName).
		Str("session_id", event.User.SessionID).
		Str("journey_id", event.User.GovukSigninJourneyID).
		Interface("extensions", event.Extensions).
		Msg("audit event")
	return nil
}
