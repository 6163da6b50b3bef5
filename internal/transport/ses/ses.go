// Package ses implements a Transport that relays each mailbox delivery
// through AWS SES v2 to <mailbox>@<domain>.
package ses

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/jkim10/SecureMailer2/internal/email"
)

// maxRetries is the maximum number of retry attempts for transient failures.
const maxRetries = 3

// baseRetryDelay is the initial delay for exponential backoff.
const baseRetryDelay = 1 * time.Second

// Config holds the configuration for creating a SES Transport.
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string

	// Sender is the verified SES identity used as the From address.
	Sender string

	// Domain is appended to mailbox names to form recipient addresses.
	Domain string
}

// SendEmailAPI is the interface for the SES v2 SendEmail operation.
// Used for testing with mock implementations.
type SendEmailAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// Transport relays messages via the AWS SES v2 API.
type Transport struct {
	sender    string
	domain    string
	client    SendEmailAPI
	baseDelay time.Duration
}

// New creates a SES Transport with the given configuration.
func New(ctx context.Context, cfg Config) (*Transport, error) {
	var opts []func(*awsconfig.LoadOptions) error

	opts = append(opts, awsconfig.WithRegion(cfg.Region))

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewWithClient(cfg.Sender, cfg.Domain, sesv2.NewFromConfig(awsCfg)), nil
}

// NewWithClient creates a Transport with a custom client, used for testing.
func NewWithClient(sender, domain string, client SendEmailAPI) *Transport {
	return &Transport{
		sender:    sender,
		domain:    domain,
		client:    client,
		baseDelay: baseRetryDelay,
	}
}

// Deliver relays one serialized message to recipient@domain.
func (t *Transport) Deliver(ctx context.Context, recipient string, data []byte) error {
	msg, err := email.Decode(data)
	if err != nil {
		return fmt.Errorf("failed to decode message: %w", err)
	}

	to := t.address(recipient)
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(t.sender),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Content: &types.EmailContent{
			Raw: &types.RawMessage{
				Data: buildRawMessage(t.sender, to, msg),
			},
		},
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			slog.Debug("retrying SES API request",
				"attempt", attempt,
				"max_retries", maxRetries,
			)
			if err := sleepWithContext(ctx, backoffDelay(t.baseDelay, attempt)); err != nil {
				return fmt.Errorf("context cancelled during retry wait: %w", err)
			}
		}

		_, err := t.client.SendEmail(ctx, input)
		if err == nil {
			return nil
		}

		lastErr = err
		slog.Warn("SES API error",
			"attempt", attempt,
			"recipient", to,
			"error", err,
		)
	}

	return fmt.Errorf("SES API request failed after %d retries: %w", maxRetries, lastErr)
}

// Name returns the transport name.
func (t *Transport) Name() string {
	return "ses"
}

func (t *Transport) address(mailbox string) string {
	return mailbox + "@" + t.domain
}

// buildRawMessage renders msg as a plain-text RFC 5322 message. The local
// envelope is kept in X-Original-From and X-Original-To.
func buildRawMessage(sender, to string, msg *email.Message) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "From: %s\r\n", sender)
	fmt.Fprintf(&buf, "To: %s\r\n", to)
	fmt.Fprintf(&buf, "Subject: Message from %s\r\n", msg.Sender())
	fmt.Fprintf(&buf, "X-Original-From: %s\r\n", msg.Sender())
	fmt.Fprintf(&buf, "X-Original-To: %s\r\n", strings.Join(msg.Recipients(), ", "))
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: text/plain; charset=UTF-8\r\n")
	fmt.Fprintf(&buf, "\r\n")

	for _, line := range msg.Body() {
		buf.WriteString(line)
		buf.WriteString("\r\n")
	}

	return buf.Bytes()
}

// backoffDelay returns the exponential backoff delay for the given attempt number.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
	}
	return delay
}

// sleepWithContext waits for the specified duration or until the context is cancelled.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
