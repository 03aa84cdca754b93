package probe

import (
	"context"
	"time"
)

// Executor performs a single GET against the redemption endpoint.
type Executor interface {
	Execute(ctx context.Context, req RequestSpec, timeout time.Duration) Outcome
}

// RequestSpec is a fully built probe request for one code.
type RequestSpec struct {
	Code    string
	URL     string
	Headers map[string]string
}

// OutcomeKind tells a received response apart from a failure to get one.
type OutcomeKind string

const (
	OutcomeResponse       OutcomeKind = "response"
	OutcomeTransportError OutcomeKind = "transport_error"
)

// Outcome is the raw result of one probe.
type Outcome struct {
	Kind       OutcomeKind
	HTTPStatus int
	Body       string
	Title      string
	Reason     string
	Timeout    bool
	Elapsed    time.Duration
	Err        error
}

func (o Outcome) IsTransportError() bool {
	return o.Kind == OutcomeTransportError
}

func responseOutcome(status int, body, title string, elapsed time.Duration) Outcome {
	return Outcome{
		Kind:       OutcomeResponse,
		HTTPStatus: status,
		Body:       body,
		Title:      title,
		Elapsed:    elapsed,
	}
}

func transportOutcome(err error, elapsed time.Duration) Outcome {
	return Outcome{
		Kind:    OutcomeTransportError,
		Reason:  err.Error(),
		Timeout: IsTimeout(err),
		Elapsed: elapsed,
		Err:     err,
	}
}
