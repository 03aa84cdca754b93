package probe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultTimeout = 15 * time.Second
	maxRedirects   = 10
	tracerName     = "github.com/kursadbilgin/promocheck/internal/probe"
)

var _ Executor = (*RestyExecutor)(nil)

// RestyExecutor sends probes with a resty client. It never retries on its own.
type RestyExecutor struct {
	client *resty.Client
	tracer trace.Tracer
	now    func() time.Time
}

func NewRestyExecutor() (*RestyExecutor, error) {
	client := resty.New()
	client.SetRedirectPolicy(resty.FlexibleRedirectPolicy(maxRedirects))

	return NewRestyExecutorWithClient(client)
}

func NewRestyExecutorWithClient(client *resty.Client) (*RestyExecutor, error) {
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}
	client.SetRetryCount(0)

	return &RestyExecutor{
		client: client,
		tracer: otel.Tracer(tracerName),
		now:    time.Now,
	}, nil
}

func (e *RestyExecutor) Execute(ctx context.Context, req RequestSpec, timeout time.Duration) Outcome {
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	start := e.now()

	ctx, span := e.tracer.Start(ctx, "probe GET",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("probe.code", req.Code),
			attribute.String("http.url", req.URL),
		),
	)
	defer span.End()

	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	response, err := e.client.R().
		SetContext(probeCtx).
		SetHeaders(req.Headers).
		SetDoNotParseResponse(true).
		Get(req.URL)
	if err != nil {
		if response != nil && response.RawBody() != nil {
			_ = response.RawBody().Close()
		}
		return e.fail(span, start, &TransportError{
			URL:     req.URL,
			Message: "request failed",
			Timeout: deadlineHit(probeCtx, err),
			Cause:   err,
		})
	}
	if response == nil || response.RawResponse == nil {
		return e.fail(span, start, &TransportError{
			URL:     req.URL,
			Message: "empty response",
		})
	}

	rawBody := response.RawBody()
	defer rawBody.Close()

	body, err := readBody(rawBody, response.Header())
	if err != nil {
		return e.fail(span, start, &TransportError{
			URL:     req.URL,
			Message: "failed to read response body",
			Timeout: deadlineHit(probeCtx, err),
			Cause:   err,
		})
	}

	status := response.StatusCode()
	elapsed := e.now().Sub(start)
	title := pageTitle(body)

	span.SetAttributes(
		attribute.Int("http.status_code", status),
		attribute.Int("probe.body_bytes", len(body)),
		attribute.String("probe.title", title),
	)

	return responseOutcome(status, body, title, elapsed)
}

func (e *RestyExecutor) fail(span trace.Span, start time.Time, err *TransportError) Outcome {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(attribute.Bool("probe.timeout", err.Timeout))

	return transportOutcome(err, e.now().Sub(start))
}

func deadlineHit(ctx context.Context, err error) bool {
	return errors.Is(ctx.Err(), context.DeadlineExceeded) || IsTimeout(err)
}
