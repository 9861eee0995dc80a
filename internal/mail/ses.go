package mail

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// SESConfig configures the Amazon SES transport. Empty keys fall back to
// the default AWS credential chain.
type SESConfig struct {
	Region           string
	AccessKeyID      string
	SecretAccessKey  string
	Endpoint         string
	ConfigurationSet string
}

// SESTransport sends through the SES v2 API
type SESTransport struct {
	client           *sesv2.Client
	configurationSet string
}

// NewSESTransport loads AWS configuration and creates an SES transport
func NewSESTransport(ctx context.Context, cfg SESConfig) (*SESTransport, error) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := sesv2.NewFromConfig(awsCfg, func(o *sesv2.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return &SESTransport{client: client, configurationSet: cfg.ConfigurationSet}, nil
}

// Name returns the provider name
func (t *SESTransport) Name() string {
	return "ses"
}

// Send sends one message
func (t *SESTransport) Send(ctx context.Context, msg *Message) (*Result, error) {
	body := &types.Body{}
	if msg.HTML != "" {
		body.Html = &types.Content{Data: aws.String(msg.HTML), Charset: aws.String("UTF-8")}
	}
	if msg.Text != "" {
		body.Text = &types.Content{Data: aws.String(msg.Text), Charset: aws.String("UTF-8")}
	}

	simple := &types.Message{
		Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
		Body:    body,
	}
	for k, v := range msg.Headers {
		simple.Headers = append(simple.Headers, types.MessageHeader{Name: aws.String(k), Value: aws.String(v)})
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(FormatAddress(msg.FromName, msg.From)),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content:          &types.EmailContent{Simple: simple},
	}
	if msg.ReplyTo != "" {
		input.ReplyToAddresses = []string{msg.ReplyTo}
	}
	if t.configurationSet != "" {
		input.ConfigurationSetName = aws.String(t.configurationSet)
	}

	output, err := t.client.SendEmail(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("%w: ses: %v", ErrDispatchFailure, err)
	}

	return &Result{Success: true, MessageID: aws.ToString(output.MessageId)}, nil
}
