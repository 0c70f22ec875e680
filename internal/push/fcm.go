package push

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/errorutils"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// FCMProvider delivers messages through Firebase Cloud Messaging.
type FCMProvider struct {
	client *messaging.Client
}

func NewFCMProvider(ctx context.Context, credentialsFile string) (*FCMProvider, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase messaging: %w", err)
	}

	return &FCMProvider{client: client}, nil
}

func (p *FCMProvider) Send(ctx context.Context, token string, msg Message) error {
	_, err := p.client.Send(ctx, &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Data: msg.Data,
	})
	if err != nil {
		return &SendError{Kind: classifyFCMError(err), Err: err}
	}
	return nil
}

func classifyFCMError(err error) ErrorKind {
	switch {
	case messaging.IsUnregistered(err),
		messaging.IsSenderIDMismatch(err),
		errorutils.IsInvalidArgument(err):
		return KindInvalidToken
	case messaging.IsQuotaExceeded(err),
		errorutils.IsUnavailable(err),
		errorutils.IsInternal(err),
		errorutils.IsDeadlineExceeded(err):
		return KindTransient
	default:
		return KindUnknown
	}
}
