package push

import (
	"context"
	"log/slog"

	"github.com/sourcegraph/conc/pool"

	milow "github.com/milow-app/milow-functions"
	"github.com/milow-app/milow-functions/metrics"
)

// BroadcastOptions tunes a fan-out.
type BroadcastOptions struct {
	// MaxConcurrency bounds in-flight sends. Zero means one goroutine per recipient.
	MaxConcurrency int
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
}

// Broadcast sends msg to every device token concurrently and waits for all
// of them. A failed delivery never aborts the others; the returned slice
// holds one outcome per token in input order.
func Broadcast(ctx context.Context, m milow.Messenger, tokens []string, msg milow.PushMessage, opts BroadcastOptions) []milow.Delivery {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	p := pool.NewWithResults[milow.Delivery]()
	if opts.MaxConcurrency > 0 {
		p = p.WithMaxGoroutines(opts.MaxConcurrency)
	}
	for _, token := range tokens {
		p.Go(func() milow.Delivery {
			err := m.Send(ctx, token, msg)
			if err != nil {
				logger.ErrorContext(ctx, "push delivery failed", "token", redact(token), "error", err)
			}
			opts.Metrics.RecordPushDelivery(err == nil)
			return milow.Delivery{Token: token, Err: err}
		})
	}
	results := p.Wait()

	// The pool returns results in completion order.
	byToken := make(map[string][]milow.Delivery, len(results))
	for _, d := range results {
		byToken[d.Token] = append(byToken[d.Token], d)
	}
	out := make([]milow.Delivery, 0, len(tokens))
	for _, token := range tokens {
		q := byToken[token]
		out = append(out, q[0])
		byToken[token] = q[1:]
	}
	return out
}

// Count returns how many deliveries succeeded and failed.
func Count(ds []milow.Delivery) (delivered, failed int) {
	for _, d := range ds {
		if d.OK() {
			delivered++
		} else {
			failed++
		}
	}
	return delivered, failed
}

func redact(token string) string {
	if len(token) <= 8 {
		return "***"
	}
	return token[:8] + "***"
}
