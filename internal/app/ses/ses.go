// Package ses delivers composed messages through the AWS SES v2 API.
package ses

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/hickar/mailsend/internal/app/config"
	"github.com/hickar/mailsend/internal/app/mailer"
)

// SendEmailAPI is the subset of the SES v2 client used by Transport.
type SendEmailAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// Transport sends the composed document unchanged as an SES raw message.
type Transport struct {
	client SendEmailAPI
	logger *slog.Logger
}

// New builds an SES client for cfg.Region. Static credentials are used when
// both keys are set, the default AWS credential chain otherwise.
func New(ctx context.Context, cfg config.SESConfig, logger *slog.Logger) (*Transport, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	return NewWithClient(sesv2.NewFromConfig(awsCfg), logger), nil
}

func NewWithClient(client SendEmailAPI, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}

	return &Transport{
		client: client,
		logger: logger,
	}
}

// Send hands msg to SES with the envelope recipients as the destination, so
// that blind recipients are delivered without appearing in the headers.
// SES accepts or rejects the request as a whole.
func (t *Transport) Send(ctx context.Context, env mailer.Envelope, msg []byte) (mailer.Result, error) {
	var res mailer.Result

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(env.From),
		Destination: &types.Destination{
			ToAddresses: env.Recipients,
		},
		Content: &types.EmailContent{
			Raw: &types.RawMessage{Data: msg},
		},
	}

	out, err := t.client.SendEmail(ctx, input)
	if err != nil {
		return res, &mailer.TransportError{Op: "ses send", Err: err}
	}

	res.Accepted = append(res.Accepted, env.Recipients...)
	res.MessageID = aws.ToString(out.MessageId)

	t.logger.DebugContext(ctx, "message accepted by SES", slog.String("message_id", res.MessageID))

	return res, nil
}
