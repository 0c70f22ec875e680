package push

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"houmetna-service/internal/apperror"
)

const DefaultSendTimeout = 5 * time.Second

// Failure is one token the message could not be delivered to. Err carries
// the apperror DeliveryFailure kind and wraps the provider error.
type Failure struct {
	Token string
	Kind  ErrorKind
	Err   error
}

// FanoutResult aggregates the outcome of one Dispatch call.
// SuccessCount + len(Failures) equals the number of distinct tokens dispatched to.
type FanoutResult struct {
	SuccessCount int
	Failures     []Failure
}

func (r FanoutResult) Attempts() int {
	return r.SuccessCount + len(r.Failures)
}

// InvalidTokens returns the tokens the provider rejected as invalid.
func (r FanoutResult) InvalidTokens() []string {
	var tokens []string
	for _, f := range r.Failures {
		if f.Kind == KindInvalidToken {
			tokens = append(tokens, f.Token)
		}
	}
	return tokens
}

// Dispatcher sends one message to a set of tokens concurrently. Every send is
// bounded by its own timeout and a failing token never affects the others.
type Dispatcher struct {
	provider Provider
	timeout  time.Duration
}

func NewDispatcher(provider Provider, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	return &Dispatcher{
		provider: provider,
		timeout:  timeout,
	}
}

// Dispatch sends msg to every distinct token and waits for all outcomes.
// It only returns an error when the message or a token is malformed, in which
// case nothing is sent.
func (d *Dispatcher) Dispatch(ctx context.Context, tokens []string, msg Message) (FanoutResult, error) {
	if len(tokens) == 0 {
		return FanoutResult{}, nil
	}
	if strings.TrimSpace(msg.Title) == "" || strings.TrimSpace(msg.Body) == "" {
		return FanoutResult{}, apperror.InvalidArgument("push.dispatch", "message title and body are required")
	}

	unique := make([]string, 0, len(tokens))
	seen := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		if strings.TrimSpace(token) == "" {
			return FanoutResult{}, apperror.InvalidArgument("push.dispatch", "blank device token")
		}
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		unique = append(unique, token)
	}

	errs := make([]error, len(unique))
	var wg sync.WaitGroup
	wg.Add(len(unique))
	for i, token := range unique {
		go func(i int, token string) {
			defer wg.Done()
			errs[i] = d.send(ctx, token, msg)
		}(i, token)
	}
	wg.Wait()

	var result FanoutResult
	for i, err := range errs {
		if err == nil {
			result.SuccessCount++
			continue
		}
		kind := KindOf(err)
		result.Failures = append(result.Failures, Failure{
			Token: unique[i],
			Kind:  kind,
			Err:   apperror.DeliveryFailure("push.send", err),
		})
		slog.WarnContext(ctx, "push: send failed",
			"token", TokenSuffix(unique[i]),
			"kind", string(kind),
			"error", err,
		)
	}

	return result, nil
}

// send runs one provider call under the per-send timeout. The provider runs in
// its own goroutine so a provider that ignores ctx cannot hold up the fan-out.
func (d *Dispatcher) send(ctx context.Context, token string, msg Message) error {
	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- &SendError{Kind: KindUnknown, Err: fmt.Errorf("provider panic: %v", r)}
			}
		}()
		done <- d.provider.Send(sendCtx, token, msg)
	}()

	select {
	case err := <-done:
		return err
	case <-sendCtx.Done():
		return &SendError{Kind: KindTransient, Err: sendCtx.Err()}
	}
}
