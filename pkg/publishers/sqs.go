package publishers

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/samvad-hq/samvad-article-pipeline/internal/logger"
)

// sqsClient is the part of the SQS API the publisher uses.
type sqsClient interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// sqsPublisher sends each event as one or more SQS messages. Article batches
// larger than the message limit are split; FIFO queues get a per-source
// message group and the event ID as deduplication ID.
type sqsPublisher struct {
	id       string
	queueURL string
	maxBytes int
	client   sqsClient
	log      logger.Logger
}

func newSQSPublisher(ctx context.Context, cfg PublisherConfig, log logger.Logger) (Publisher, error) {
	if cfg.SQS == nil {
		return nil, fmt.Errorf("publisher %q missing sqs configuration", cfg.ID)
	}

	awsCfg, err := loadAWSConfig(ctx, cfg.SQS.Region, cfg.SQS.Credentials)
	if err != nil {
		return nil, err
	}
	endpoint := cfg.SQS.Endpoint
	client := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	return &sqsPublisher{
		id:       cfg.ID,
		queueURL: cfg.SQS.QueueURL,
		maxBytes: maxAWSMessageBytes,
		client:   client,
		log:      logger.Ensure(log),
	}, nil
}

func (s *sqsPublisher) ID() string   { return s.id }
func (s *sqsPublisher) Type() string { return TypeSQS }

func (s *sqsPublisher) Publish(ctx context.Context, evt Event) error {
	parts, err := encodeWithin(evt, s.maxBytes)
	if err != nil {
		return err
	}

	for i, part := range parts {
		input := &sqs.SendMessageInput{
			QueueUrl:          aws.String(s.queueURL),
			MessageBody:       aws.String(string(part.Body)),
			MessageAttributes: sqsAttributes(part.Event),
		}
		if isFIFO(s.queueURL) {
			input.MessageGroupId = aws.String(messageGroup(part.Event))
			input.MessageDeduplicationId = aws.String(part.Event.ID)
		}

		out, err := s.client.SendMessage(ctx, input)
		if err != nil {
			s.log.ErrorObj("sqs publisher send failed", "publisher_sqs_error", map[string]any{
				"publisher_id": s.id,
				"event_type":   evt.Type,
				"source":       evt.SourceName,
				"part":         i + 1,
				"parts":        len(parts),
				"error":        err.Error(),
			})
			return fmt.Errorf("send message %d/%d to sqs: %w", i+1, len(parts), err)
		}
		s.log.DebugObj("sqs publisher delivered event", "publisher_sqs_delivery", map[string]any{
			"publisher_id": s.id,
			"event_type":   evt.Type,
			"part":         i + 1,
			"message_id":   aws.ToString(out.MessageId),
		})
	}
	return nil
}

func sqsAttributes(evt Event) map[string]types.MessageAttributeValue {
	attrs := make(map[string]types.MessageAttributeValue)
	for k, v := range evt.Attributes() {
		attrs[k] = types.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(v)}
	}
	return attrs
}
