package publishers

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/samvad-hq/samvad-article-pipeline/internal/logger"
)

type snsClient interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// snsPublisher publishes events to an SNS topic, splitting and grouping the
// same way as sqsPublisher.
type snsPublisher struct {
	id       string
	topicARN string
	maxBytes int
	client   snsClient
	log      logger.Logger
}

func newSNSPublisher(ctx context.Context, cfg PublisherConfig, log logger.Logger) (Publisher, error) {
	if cfg.SNS == nil {
		return nil, fmt.Errorf("publisher %q missing sns configuration", cfg.ID)
	}

	awsCfg, err := loadAWSConfig(ctx, cfg.SNS.Region, cfg.SNS.Credentials)
	if err != nil {
		return nil, err
	}
	endpoint := cfg.SNS.Endpoint
	client := sns.NewFromConfig(awsCfg, func(o *sns.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	return &snsPublisher{
		id:       cfg.ID,
		topicARN: cfg.SNS.TopicARN,
		maxBytes: maxAWSMessageBytes,
		client:   client,
		log:      logger.Ensure(log),
	}, nil
}

func (s *snsPublisher) ID() string   { return s.id }
func (s *snsPublisher) Type() string { return TypeSNS }

func (s *snsPublisher) Publish(ctx context.Context, evt Event) error {
	parts, err := encodeWithin(evt, s.maxBytes)
	if err != nil {
		return err
	}

	for i, part := range parts {
		input := &sns.PublishInput{
			TopicArn:          aws.String(s.topicARN),
			Message:           aws.String(string(part.Body)),
			MessageAttributes: snsAttributes(part.Event),
		}
		if isFIFO(s.topicARN) {
			input.MessageGroupId = aws.String(messageGroup(part.Event))
			input.MessageDeduplicationId = aws.String(part.Event.ID)
		}

		out, err := s.client.Publish(ctx, input)
		if err != nil {
			s.log.ErrorObj("sns publisher send failed", "publisher_sns_error", map[string]any{
				"publisher_id": s.id,
				"event_type":   evt.Type,
				"source":       evt.SourceName,
				"part":         i + 1,
				"parts":        len(parts),
				"error":        err.Error(),
			})
			return fmt.Errorf("publish %d/%d to sns: %w", i+1, len(parts), err)
		}
		s.log.DebugObj("sns publisher delivered event", "publisher_sns_delivery", map[string]any{
			"publisher_id": s.id,
			"event_type":   evt.Type,
			"part":         i + 1,
			"message_id":   aws.ToString(out.MessageId),
		})
	}
	return nil
}

func snsAttributes(evt Event) map[string]types.MessageAttributeValue {
	attrs := make(map[string]types.MessageAttributeValue)
	for k, v := range evt.Attributes() {
		attrs[k] = types.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(v)}
	}
	return attrs
}
