package store

import (
	"context"
	"time"

	"github.com/juju/clock"
	"github.com/juju/retry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"pickings/internal/logging"
	"pickings/internal/metrics"
)

// DefaultMaxRetries is the number of retries after the first throttled call.
const DefaultMaxRetries = 3

// Backoff returns the wait before retry n (1-based): 2^(n-1)+1 seconds,
// giving 2s, 3s, 5s for the first three retries.
func Backoff(_ time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(1<<uint(attempt-1)+1) * time.Second
}

// AccessorConfig tunes an Accessor.
type AccessorConfig struct {
	// MaxRetries bounds retries after a throttling error. Zero means DefaultMaxRetries.
	MaxRetries int
	// RequestsPerMinute paces calls before they reach the store. Zero disables pacing.
	RequestsPerMinute int
	Clock             clock.Clock
	Metrics           *metrics.Metrics
	Logger            *zerolog.Logger
}

// Accessor wraps a Store and retries throttled calls with bounded exponential
// backoff. Any other error, and the last error once retries run out, is
// returned unchanged.
type Accessor struct {
	next       Store
	maxRetries int
	limiter    *rate.Limiter
	clock      clock.Clock
	metrics    *metrics.Metrics
	logger     *zerolog.Logger
	tracer     trace.Tracer
}

var _ Store = (*Accessor)(nil)

// NewAccessor wraps next.
func NewAccessor(next Store, cfg AccessorConfig) *Accessor {
	a := &Accessor{
		next:       next,
		maxRetries: cfg.MaxRetries,
		clock:      cfg.Clock,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
		tracer:     otel.Tracer("pickings/store"),
	}
	if a.maxRetries <= 0 {
		a.maxRetries = DefaultMaxRetries
	}
	if a.clock == nil {
		a.clock = clock.WallClock
	}
	if a.logger == nil {
		a.logger = logging.WithModule("store")
	}
	if cfg.RequestsPerMinute > 0 {
		a.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}
	return a
}

// Do runs fn with the retry policy. It is exported so callers can wrap
// composite sequences of their own.
func (a *Accessor) Do(ctx context.Context, op, table string, fn func(ctx context.Context) error) error {
	ctx, span := a.tracer.Start(ctx, "store."+op, trace.WithAttributes(
		attribute.String("store.table", table),
	))
	defer span.End()

	start := a.clock.Now()
	var last error
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			if a.limiter != nil {
				if last = a.limiter.Wait(ctx); last != nil {
					return last
				}
			}
			last = fn(ctx)
			return last
		},
		IsFatalError: func(err error) bool {
			return !IsQuotaExceeded(err) || ctx.Err() != nil
		},
		NotifyFunc: func(err error, attempt int) {
			if attempt > a.maxRetries {
				return
			}
			a.metrics.StoreRetry(op)
			span.AddEvent("throttled", trace.WithAttributes(attribute.Int("attempt", attempt)))
			a.logger.Warn().
				Err(err).
				Str("op", op).
				Str("table", table).
				Int("attempt", attempt).
				Dur("wait", Backoff(0, attempt)).
				Msg("store throttled, backing off")
		},
		Attempts:    a.maxRetries + 1,
		Delay:       Backoff(0, 1),
		BackoffFunc: Backoff,
		Clock:       a.clock,
		Stop:        ctx.Done(),
	})
	if err != nil {
		// Callers see the store's own error, never retry's wrappers.
		switch {
		case ctx.Err() != nil && (retry.IsRetryStopped(err) || IsQuotaExceeded(last)):
			err = ctx.Err()
		case last != nil:
			err = last
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	a.metrics.StoreCall(op, err, a.clock.Now().Sub(start).Seconds())
	return err
}

// Header implements Store.
func (a *Accessor) Header(ctx context.Context, table string) (header []string, err error) {
	err = a.Do(ctx, "header", table, func(ctx context.Context) error {
		header, err = a.next.Header(ctx, table)
		return err
	})
	return header, err
}

// Find implements Store.
func (a *Accessor) Find(ctx context.Context, table string, q Query) (ref RowRef, err error) {
	err = a.Do(ctx, "find", table, func(ctx context.Context) error {
		ref, err = a.next.Find(ctx, table, q)
		return err
	})
	return ref, err
}

// ReadAll implements Store.
func (a *Accessor) ReadAll(ctx context.Context, table string) (rows []Row, err error) {
	err = a.Do(ctx, "read_all", table, func(ctx context.Context) error {
		rows, err = a.next.ReadAll(ctx, table)
		return err
	})
	return rows, err
}

// ReadRow implements Store.
func (a *Accessor) ReadRow(ctx context.Context, table string, ref RowRef) (row Row, err error) {
	err = a.Do(ctx, "read_row", table, func(ctx context.Context) error {
		row, err = a.next.ReadRow(ctx, table, ref)
		return err
	})
	return row, err
}

// AppendRow implements Store.
func (a *Accessor) AppendRow(ctx context.Context, table string, values []string) error {
	return a.Do(ctx, "append_row", table, func(ctx context.Context) error {
		return a.next.AppendRow(ctx, table, values)
	})
}

// AppendRows implements Store.
func (a *Accessor) AppendRows(ctx context.Context, table string, rows [][]string) error {
	return a.Do(ctx, "append_rows", table, func(ctx context.Context) error {
		return a.next.AppendRows(ctx, table, rows)
	})
}

// BatchUpdate implements Store.
func (a *Accessor) BatchUpdate(ctx context.Context, table string, cells []CellUpdate) error {
	return a.Do(ctx, "batch_update", table, func(ctx context.Context) error {
		return a.next.BatchUpdate(ctx, table, cells)
	})
}

// DeleteRow implements Store.
func (a *Accessor) DeleteRow(ctx context.Context, table string, ref RowRef) error {
	return a.Do(ctx, "delete_row", table, func(ctx context.Context) error {
		return a.next.DeleteRow(ctx, table, ref)
	})
}

// EnsureTable implements Store.
func (a *Accessor) EnsureTable(ctx context.Context, table string, header []string) error {
	return a.Do(ctx, "ensure_table", table, func(ctx context.Context) error {
		return a.next.EnsureTable(ctx, table, header)
	})
}
