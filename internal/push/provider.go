// Package push sends notification messages to device tokens through a
// pluggable provider and fans one message out to many tokens.
package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrorKind classifies a failed send for cleanup and retry decisions.
type ErrorKind string

const (
	KindInvalidToken ErrorKind = "invalid-token"
	KindTransient    ErrorKind = "transient"
	KindUnknown      ErrorKind = "unknown"
)

type Message struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// Provider delivers one message to one device token.
type Provider interface {
	Send(ctx context.Context, token string, msg Message) error
}

// SendError is returned by providers to classify a failed send.
type SendError struct {
	Kind ErrorKind
	Err  error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// KindOf classifies err. Context deadlines and cancellations are transient;
// anything not wrapped in a SendError is unknown.
func KindOf(err error) ErrorKind {
	var sendErr *SendError
	if errors.As(err, &sendErr) {
		return sendErr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTransient
	}
	return KindUnknown
}

// LogProvider only logs messages. It stands in for a real transport in local
// development.
type LogProvider struct{}

func (LogProvider) Send(ctx context.Context, token string, msg Message) error {
	slog.InfoContext(ctx, "push: log provider send",
		"token", TokenSuffix(token),
		"title", msg.Title,
		"body", msg.Body,
	)
	return nil
}

// TokenSuffix shortens a token for logs.
func TokenSuffix(token string) string {
	if len(token) <= 8 {
		return token
	}
	return "..." + token[len(token)-8:]
}
