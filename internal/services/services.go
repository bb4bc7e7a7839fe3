// Package services implements the folio registry, the detail ledger and the
// user registry over a tabular store.
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/juju/clock"
	"github.com/rs/zerolog"

	"pickings/internal/apperrors"
	"pickings/internal/logging"
	"pickings/internal/metrics"
	"pickings/internal/store"
)

// Options carries the collaborators shared by every registry.
type Options struct {
	Clock   clock.Clock
	Metrics *metrics.Metrics
	Logger  *zerolog.Logger
}

func (o Options) withDefaults(module string) Options {
	if o.Clock == nil {
		o.Clock = clock.WallClock
	}
	if o.Logger == nil {
		o.Logger = logging.WithModule(module)
	}
	return o
}

// locate finds the row matching q, translating a miss into a NotFound error
// carrying message.
func locate(ctx context.Context, st store.Store, table string, q store.Query, message string) (store.RowRef, error) {
	ref, err := st.Find(ctx, table, q)
	if errors.Is(err, store.ErrNotFound) {
		return 0, apperrors.New(apperrors.ErrNotFound, message)
	}
	if err != nil {
		return 0, fmt.Errorf("find %s in %s: %w", q.Value, table, err)
	}
	return ref, nil
}

// columns resolves the 1-based index of every name in the table header.
func columns(ctx context.Context, st store.Store, table string, names ...string) (map[string]int, error) {
	header, err := st.Header(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("read %s header: %w", table, err)
	}
	if missing := store.MissingColumns(header, names); len(missing) > 0 {
		return nil, fmt.Errorf("%s header is missing columns %v", table, missing)
	}
	idx := make(map[string]int, len(names))
	for _, name := range names {
		idx[name] = store.ColumnIndex(header, name)
	}
	return idx, nil
}

// logOutcome writes the one line every mutating call leaves behind.
func logOutcome(logger *zerolog.Logger, op string, err error) *zerolog.Event {
	switch {
	case err == nil:
		return logger.Info().Str("op", op)
	case apperrors.IsExpected(err):
		return logger.Warn().Str("op", op).Err(err)
	default:
		return logger.Error().Str("op", op).Err(err)
	}
}
