package ses

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"

	"github.com/jkim10/SecureMailer2/internal/email"
	"github.com/jkim10/SecureMailer2/internal/transport"
)

// mockSESClient implements SendEmailAPI for testing.
type mockSESClient struct {
	sendFn    func(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
	callCount int
	lastInput *sesv2.SendEmailInput
}

func (m *mockSESClient) SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	m.callCount++
	m.lastInput = params
	if m.sendFn != nil {
		return m.sendFn(ctx, params, optFns...)
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("test-message-id")}, nil
}

// newTestTransport returns a Transport with millisecond backoff.
func newTestTransport(client SendEmailAPI) *Transport {
	tr := NewWithClient("relay@example.com", "example.com", client)
	tr.baseDelay = time.Millisecond
	return tr
}

// serialized returns the pipe form of a small test message.
func serialized(t *testing.T) []byte {
	t.Helper()
	msg, err := email.New("alice", []string{"bob", "carol"}, []string{"hello", "", "bye"})
	if err != nil {
		t.Fatalf("failed to build message: %v", err)
	}
	return msg.Bytes()
}

func TestName(t *testing.T) {
	t.Parallel()
	p := NewWithClient("relay@example.com", "example.com", &mockSESClient{})
	if got := p.Name(); got != "ses" {
		t.Errorf("Name(): got %q, want %q", got, "ses")
	}
}

func TestDeliver_SendsRawMessage(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{}
	tr := newTestTransport(mock)

	if err := tr.Deliver(context.Background(), "bob", serialized(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if mock.callCount != 1 {
		t.Errorf("call count: got %d, want 1", mock.callCount)
	}

	input := mock.lastInput
	if got := *input.FromEmailAddress; got != "relay@example.com" {
		t.Errorf("FromEmailAddress: got %q, want %q", got, "relay@example.com")
	}
	if len(input.Destination.ToAddresses) != 1 || input.Destination.ToAddresses[0] != "bob@example.com" {
		t.Errorf("ToAddresses: got %v, want [bob@example.com]", input.Destination.ToAddresses)
	}
	if input.Content.Raw == nil {
		t.Fatal("expected raw email content, got nil")
	}

	raw := string(input.Content.Raw.Data)
	checks := []struct {
		name     string
		contains string
	}{
		{"From header", "From: relay@example.com\r\n"},
		{"To header", "To: bob@example.com\r\n"},
		{"Subject header", "Subject: Message from alice\r\n"},
		{"original sender", "X-Original-From: alice\r\n"},
		{"original recipients", "X-Original-To: bob, carol\r\n"},
		{"content type", "Content-Type: text/plain; charset=UTF-8\r\n"},
		{"body", "\r\n\r\nhello\r\n\r\nbye\r\n"},
	}
	for _, check := range checks {
		if !strings.Contains(raw, check.contains) {
			t.Errorf("raw message missing %s: expected to contain %q", check.name, check.contains)
		}
	}
}

func TestDeliver_UndecodableData(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{}
	tr := newTestTransport(mock)

	err := tr.Deliver(context.Background(), "bob", []byte("garbage"))
	if err == nil {
		t.Fatal("expected error for undecodable data")
	}
	if errors.Is(err, transport.ErrSpawn) {
		t.Error("decode failure must not be fatal")
	}
	if mock.callCount != 0 {
		t.Errorf("call count: got %d, want 0", mock.callCount)
	}
}

func TestDeliver_RetryOnError(t *testing.T) {
	t.Parallel()

	callCount := 0
	mock := &mockSESClient{
		sendFn: func(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
			callCount++
			if callCount <= 2 {
				return nil, errors.New("transient error")
			}
			return &sesv2.SendEmailOutput{MessageId: aws.String("ok")}, nil
		},
	}
	tr := newTestTransport(mock)

	if err := tr.Deliver(context.Background(), "bob", serialized(t)); err != nil {
		t.Fatalf("expected success after retry, got: %v", err)
	}
	if callCount != 3 {
		t.Errorf("call count: got %d, want 3", callCount)
	}
}

func TestDeliver_AllRetriesExhausted(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{
		sendFn: func(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
			return nil, errors.New("persistent error")
		},
	}
	tr := newTestTransport(mock)

	err := tr.Deliver(context.Background(), "bob", serialized(t))
	if err == nil {
		t.Fatal("expected error after all retries exhausted")
	}
	if !strings.Contains(err.Error(), "after 3 retries") {
		t.Errorf("error message: got %q, want to contain 'after 3 retries'", err.Error())
	}
	// 1 initial + 3 retries = 4 total
	if mock.callCount != 4 {
		t.Errorf("call count: got %d, want 4", mock.callCount)
	}
}

func TestDeliver_ContextCancelled(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{
		sendFn: func(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
			return nil, errors.New("error")
		},
	}
	tr := NewWithClient("relay@example.com", "example.com", mock)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := tr.Deliver(ctx, "bob", serialized(t))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}

func TestBackoffDelay(t *testing.T) {
	t.Parallel()

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
	}

	for _, tt := range tests {
		if got := backoffDelay(baseRetryDelay, tt.attempt); got != tt.want {
			t.Errorf("backoffDelay(%d): got %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestTransportInterface(t *testing.T) {
	t.Parallel()
	var _ transport.Transport = (*Transport)(nil)
}
