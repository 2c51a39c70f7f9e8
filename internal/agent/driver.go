package agent

import (
	"context"

	"github.com/haasonsaas/praxis/internal/backoff"
	"github.com/haasonsaas/praxis/internal/format"
	"github.com/haasonsaas/praxis/internal/llm"
	"github.com/haasonsaas/praxis/internal/observability"
)

// driver runs one provider stream with retries. Transient failures are
// retried with exponential backoff and jitter, up to maxRetries attempts
// total; client errors fail immediately.
//
// All attempts write to the same output channel, so a consumer may see
// partial chunks from a failed attempt replayed by the next one. The
// formatter is single-use, so each attempt formats through a fresh
// instance of the configured shape.
type driver struct {
	provider   llm.Provider
	shape      string
	maxRetries int
	policy     backoff.Policy

	log     *runLog
	logger  *observability.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer
}

// stream runs the request to completion, returning the assembled result
// of the first successful attempt.
func (d *driver) stream(ctx context.Context, req *llm.Request, out chan<- string, step int) (*format.Result, error) {
	var lastErr error
	for attempt := 0; attempt < d.maxRetries; attempt++ {
		result, err := d.attempt(ctx, req, out, attempt)
		if err == nil {
			return result, nil
		}
		lastErr = err

		kind := llm.KindOf(err)
		if !kind.Retryable() || attempt == d.maxRetries-1 {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		delay := backoff.Compute(d.policy, attempt)
		d.log.retry(step, string(kind), delay.Seconds())
		if d.metrics != nil {
			d.metrics.RecordRetry(string(kind))
		}
		d.logger.Warn(ctx, "stream attempt failed, retrying",
			"attempt", attempt+1,
			"error_kind", string(kind),
			"delay", delay.String(),
			"error", err)
		if err := backoff.SleepWithContext(ctx, delay); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

// attempt performs one provider stream and formats it onto out.
func (d *driver) attempt(ctx context.Context, req *llm.Request, out chan<- string, attempt int) (*format.Result, error) {
	ctx, span := d.tracer.TraceStream(ctx, d.provider.Name(), req.Model, attempt)
	defer span.End()

	events, err := d.provider.Stream(ctx, req)
	if err != nil {
		d.tracer.RecordError(span, err)
		return nil, err
	}

	formatter, err := format.New(d.shape)
	if err != nil {
		return nil, err
	}
	result, err := formatter.Format(ctx, events, out)
	if err != nil {
		d.tracer.RecordError(span, err)
		return nil, err
	}
	return result, nil
}
